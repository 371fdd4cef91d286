package jobs

import (
	"context"

	"powerbank-rental-backend/internal/logger"
)

// ExpireMemberships downgrades lapsed VIP and SVIP accounts
func (jr *JobRunner) ExpireMemberships() {
	jr.runWithRecovery("ExpireMemberships", func() {
		n, err := jr.accounts.ExpireMemberships(context.Background())
		if err != nil {
			logger.Error("Failed to expire memberships", "error", err)
			return
		}
		logger.Info("Expired memberships", "count", n)
	})
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.BatteryTick()
	jr.ExpireMemberships()
}
