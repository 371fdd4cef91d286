package jobs

import (
	"sync"

	"powerbank-rental-backend/internal/config"
	"powerbank-rental-backend/internal/events"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
	"powerbank-rental-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	tx        repository.TxManager
	store     repository.Stores
	accounts  service.AccountService
	publisher events.Publisher
	config    *config.Config

	// held for the length of one battery tick
	tickMu sync.Mutex
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(
	tx repository.TxManager,
	store repository.Stores,
	accounts service.AccountService,
	publisher events.Publisher,
	cfg *config.Config,
) *JobRunner {
	return &JobRunner{
		tx:        tx,
		store:     store,
		accounts:  accounts,
		publisher: publisher,
		config:    cfg,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	log := logger.WithJob(jobName)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
		}
	}()

	log.Info("Starting job")
	jobFunc()
	log.Info("Job completed")
}
