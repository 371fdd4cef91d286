package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "powerbank-rental-backend/internal/api/http"
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
	withScheduler := flag.Bool("scheduler", true, "Run the battery and membership jobs in this process")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Power Bank Rental Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	// Initialize Database
	ctx := context.Background()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Initialize Repositories
	store := postgres.NewStore(conn, cfg.LockTimeout())

	// Initialize event publishing
	publisher, err := newPublisher(cfg.Kafka)
	if err != nil {
		logger.Error("Failed to initialize event publisher", "error", err)
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}
	defer publisher.Close()

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())

	// Initialize Services
	retry := service.RetryPolicy{MaxRetries: cfg.Rental.MaxRetries, Backoff: cfg.RetryBackoff()}
	clock := utils.SystemClock()
	accountSvc := service.NewAccountService(store, store.Stores(), tokenManager, clock, publisher, retry)
	inventorySvc := service.NewInventoryService(store, store.Stores(), publisher)
	rentalSvc := service.NewRentalService(store, store.Stores(), clock, publisher, retry)
	jobRunner := jobs.NewJobRunner(store, store.Stores(), accountSvc, publisher, cfg)

	var cronScheduler *scheduler.Scheduler
	if *withScheduler {
		cronScheduler, err = scheduler.NewScheduler(jobRunner)
		if err != nil {
			logger.Error("Failed to create scheduler", "error", err)
			log.Fatalf("Failed to create scheduler: %v", err)
		}
		cronScheduler.Start()
	}

	// Set up HTTP server
	handler := httpapi.NewHandler(accountSvc, inventorySvc, rentalSvc, jobRunner)
	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      httpapi.NewRouter(handler, tokenManager, cfg.Server),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if cronScheduler != nil {
		cronScheduler.Stop()
	}
	logger.Info("Server stopped. Goodbye!")
}

func newPublisher(cfg config.KafkaConfig) (events.Publisher, error) {
	if !cfg.Enabled {
		logger.Info("Event publishing disabled")
		return events.NopPublisher{}, nil
	}
	logger.Info("Publishing events to Kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}
