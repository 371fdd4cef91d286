package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"powerbank-rental-backend/internal/config"
	"powerbank-rental-backend/internal/jobs"
	"powerbank-rental-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron    *cron.Cron
	jobs    *jobs.JobRunner
	cfg     config.SchedulerConfig
	mu      sync.Mutex
	running bool
	startup sync.WaitGroup
}

// cronLogger routes cron's own messages to the application logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// NewScheduler creates a new scheduler for the provided job runner, using the
// schedules of the runner's configuration. An invalid schedule expression is
// an error.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	cfg := jobRunner.Config().Scheduler

	// Create cron with UTC timezone and seconds precision; a tick still
	// running when the next one is due is skipped
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
		cfg:  cfg,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() error {
	if _, err := s.cron.AddFunc(s.cfg.BatteryTick, s.jobs.BatteryTick); err != nil {
		return fmt.Errorf("register BatteryTick job %q: %w", s.cfg.BatteryTick, err)
	}

	if s.cfg.ExpireMemberships != "" {
		if _, err := s.cron.AddFunc(s.cfg.ExpireMemberships, s.jobs.ExpireMemberships); err != nil {
			return fmt.Errorf("register ExpireMemberships job %q: %w", s.cfg.ExpireMemberships, err)
		}
	}

	logger.Info("All cron jobs registered successfully", "battery_tick", s.cfg.BatteryTick, "expire_memberships", s.cfg.ExpireMemberships)
	return nil
}

// Start begins the cron scheduler. Calling it on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		logger.Info("Cron scheduler already running")
		return
	}
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	s.running = true

	if s.cfg.RunOnStart {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.jobs.BatteryTick()
		}()
	}
	logger.Info("Cron scheduler started successfully")
}

// Stop prevents further ticks and waits for running ones to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.startup.Wait()
	s.running = false
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
