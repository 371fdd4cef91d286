package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"powerbank-rental-backend/internal/config"
	"powerbank-rental-backend/internal/db"
	"powerbank-rental-backend/internal/events"
	"powerbank-rental-backend/internal/jobs"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository/postgres"
	"powerbank-rental-backend/internal/scheduler"
	"powerbank-rental-backend/internal/security"
	"powerbank-rental-backend/internal/service"
	"powerbank-rental-backend/internal/utils"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'battery-tick', 'expire-memberships', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Power Bank Cronjob Runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	conn, err := db.Open(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Initialize Repositories
	store := postgres.NewStore(conn, cfg.LockTimeout())

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafka, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Error("Failed to initialize Kafka publisher", "error", err)
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
		publisher = kafka
	}
	defer publisher.Close()

	// Initialize Services
	retry := service.RetryPolicy{MaxRetries: cfg.Rental.MaxRetries, Backoff: cfg.RetryBackoff()}
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())
	accountSvc := service.NewAccountService(store, store.Stores(), tokenManager, utils.SystemClock(), publisher, retry)

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store, store.Stores(), accountSvc, publisher, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to create scheduler", "error", err)
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "battery-tick":
		jobRunner.BatteryTick()
	case "expire-memberships":
		jobRunner.ExpireMemberships()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - battery-tick\n")
		fmt.Printf("  - expire-memberships\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
