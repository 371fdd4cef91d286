package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"powerbank-rental-backend/internal/domain"
)

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}
	timeout := fmt.Errorf("%w: device 1", domain.ErrLockTimeout)

	t.Run("Succeeds after lock timeouts", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, "test", policy, func() error {
			calls++
			if calls < 3 {
				return timeout
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Gives up", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, "test", policy, func() error {
			calls++
			return timeout
		})
		assert.ErrorIs(t, err, domain.ErrLockTimeout)
		assert.Equal(t, policy.MaxRetries+1, calls)
	})

	t.Run("Other errors are final", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, "test", policy, func() error {
			calls++
			return domain.ErrConflict
		})
		assert.True(t, errors.Is(err, domain.ErrConflict))
		assert.Equal(t, 1, calls)
	})

	t.Run("Cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := withRetry(cctx, "test", RetryPolicy{MaxRetries: 5, Backoff: time.Second}, func() error {
			calls++
			return timeout
		})
		assert.ErrorIs(t, err, domain.ErrLockTimeout)
		assert.Equal(t, 1, calls)
	})
}
