package service

import (
	"context"
	"time"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
)

// RetryPolicy bounds how often an operation that lost a lock race is re-run.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func withRetry(ctx context.Context, op string, p RetryPolicy, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !domain.IsRetryable(err) || attempt >= p.MaxRetries {
			return err
		}
		logger.WarnContext(ctx, "Retrying after lock timeout", "operation", op, "attempt", attempt+1, "error", err)
		select {
		case <-time.After(p.Backoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return err
		}
	}
}
