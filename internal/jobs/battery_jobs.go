package jobs

import (
	"context"
	"errors"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/events"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

const (
	drainPerTick  = 1
	chargePerTick = 1
)

// BatteryTickReport counts what one tick did. Drained includes Depleted and
// Charged includes Recovered.
type BatteryTickReport struct {
	Drained   int `json:"drained"`
	Depleted  int `json:"depleted"`
	Charged   int `json:"charged"`
	Recovered int `json:"recovered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	// Busy is set when another tick was still running and this one did
	// nothing.
	Busy bool `json:"busy,omitempty"`
}

type tickOutcome int

const (
	outcomeSkipped tickOutcome = iota
	outcomeDrained
	outcomeDepleted
	outcomeCharged
	outcomeRecovered
)

func (r *BatteryTickReport) record(o tickOutcome) {
	switch o {
	case outcomeSkipped:
		r.Skipped++
	case outcomeDrained:
		r.Drained++
	case outcomeDepleted:
		r.Drained++
		r.Depleted++
	case outcomeCharged:
		r.Charged++
	case outcomeRecovered:
		r.Charged++
		r.Recovered++
	}
}

// BatteryTick is the cron entry point for TickBatteries
func (jr *JobRunner) BatteryTick() {
	jr.runWithRecovery("BatteryTick", func() {
		report := jr.TickBatteries(context.Background())
		if report.Busy {
			logger.Warn("Battery tick skipped, previous tick still running")
			return
		}
		logger.Info("Battery tick finished",
			"drained", report.Drained,
			"depleted", report.Depleted,
			"charged", report.Charged,
			"recovered", report.Recovered,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	})
}

// TickBatteries drains every rented device and charges every parked one by
// one step. Both lists are taken before any row is touched, so a device
// depleted in this tick is not charged until the next one. Each device is
// updated in its own transaction; a failing row is logged and counted. At
// most one tick runs at a time per runner: a call that overlaps a running
// tick returns at once with Busy set.
func (jr *JobRunner) TickBatteries(ctx context.Context) BatteryTickReport {
	var report BatteryTickReport
	if !jr.tickMu.TryLock() {
		report.Busy = true
		return report
	}
	defer jr.tickMu.Unlock()

	inUse, err := jr.store.Devices.ListByStatus(ctx, domain.DeviceStatusInUse)
	if err != nil {
		logger.Error("Failed to list rented devices", "error", err)
		report.Failed++
	}
	parked, err := jr.store.Devices.ListByStatus(ctx, domain.DeviceStatusUnavailable)
	if err != nil {
		logger.Error("Failed to list unavailable devices", "error", err)
		report.Failed++
	}

	for _, d := range inUse {
		jr.tickDevice(ctx, d.ID, domain.DeviceStatusInUse, &report)
	}
	logger.Debug("Processed rented devices", "count", len(inUse))

	for _, d := range parked {
		jr.tickDevice(ctx, d.ID, domain.DeviceStatusUnavailable, &report)
	}
	logger.Debug("Processed charging devices", "count", len(parked))

	return report
}

func (jr *JobRunner) tickDevice(ctx context.Context, id int32, listed domain.DeviceStatus, report *BatteryTickReport) {
	if err := ctx.Err(); err != nil {
		report.Failed++
		return
	}

	var outcome tickOutcome
	var before, after int
	err := jr.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		outcome = outcomeSkipped
		d, err := st.Devices.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// a rental or return got there first
		if d.Status != listed {
			return nil
		}
		before = d.BatteryLevel

		switch listed {
		case domain.DeviceStatusInUse:
			after = domain.ClampBattery(d.BatteryLevel - drainPerTick)
			if err := st.Devices.UpdateBattery(ctx, id, after); err != nil {
				return err
			}
			outcome = outcomeDrained
			if after == domain.BatteryMin {
				if err := st.Devices.UpdateStatus(ctx, id, &listed, domain.DeviceStatusUnavailable); err != nil {
					return err
				}
				outcome = outcomeDepleted
			}
		case domain.DeviceStatusUnavailable:
			after = domain.ClampBattery(d.BatteryLevel + chargePerTick)
			if err := st.Devices.UpdateBattery(ctx, id, after); err != nil {
				return err
			}
			outcome = outcomeCharged
			if after >= domain.RechargeThreshold {
				if err := st.Devices.UpdateStatus(ctx, id, &listed, domain.DeviceStatusAvailable); err != nil {
					return err
				}
				outcome = outcomeRecovered
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// deleted since the listing
			report.record(outcomeSkipped)
			return
		}
		logger.Error("Failed to update device battery", "deviceID", id, "status", listed, "error", err)
		report.Failed++
		return
	}

	report.record(outcome)
	switch outcome {
	case outcomeDepleted:
		logger.Warn("Rented device battery depleted", "deviceID", id)
		jr.publishStatusChange(ctx, id, listed, domain.DeviceStatusUnavailable, after)
	case outcomeRecovered:
		jr.publishStatusChange(ctx, id, listed, domain.DeviceStatusAvailable, after)
	}
	if outcome != outcomeSkipped {
		logger.Debug("Updated device battery", "deviceID", id, "from", before, "to", after)
	}
}

func (jr *JobRunner) publishStatusChange(ctx context.Context, id int32, from, to domain.DeviceStatus, battery int) {
	change := events.StatusChange{DeviceID: id, From: from, To: to, Battery: battery, Reason: "battery"}
	e := events.New(events.DeviceStatusChanged, events.DeviceKey(id), change)
	if err := jr.publisher.Publish(ctx, e); err != nil {
		logger.Warn("Failed to publish event", "type", e.Type, "deviceID", id, "error", err)
	}
}
