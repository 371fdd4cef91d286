package memory

import (
	"context"
	"fmt"
	"time"

	"powerbank-rental-backend/internal/domain"
)

type deviceRepository struct {
	s  *Store
	tx *txn
}

func (t *txn) lockDevice(ctx context.Context, id int32) (domain.Device, error) {
	if err := t.lock(ctx, rowKey{kindDevice, id}); err != nil {
		return domain.Device{}, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	d, ok := lookup(t.s.devices, t.devices, id)
	if !ok {
		return domain.Device{}, fmt.Errorf("device %d: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

func (r *deviceRepository) Create(ctx context.Context, d *domain.Device) error {
	if !d.Status.Valid() {
		return fmt.Errorf("device status %d: %w", int(d.Status), domain.ErrInvalidArgument)
	}
	if d.BatteryLevel < domain.BatteryMin || d.BatteryLevel > domain.BatteryMax || !d.PricePerHour.IsPositive() {
		return fmt.Errorf("device values out of range: %w", domain.ErrInvalidArgument)
	}
	return r.s.write(r.tx, func(t *txn) error {
		id := r.s.deviceSeq.Add(1)
		if err := t.lock(ctx, rowKey{kindDevice, id}); err != nil {
			return err
		}
		now := time.Now()
		created := *d
		created.ID = id
		created.CreatedOn = now
		created.UpdatedOn = now
		t.devices[id] = &created
		*d = created
		return nil
	})
}

func (r *deviceRepository) GetByID(ctx context.Context, id int32) (*domain.Device, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := lookup(r.s.devices, r.tx.stagedDevices(), id)
	if !ok {
		return nil, fmt.Errorf("device %d: %w", id, domain.ErrNotFound)
	}
	return &d, nil
}

func (r *deviceRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Device, error) {
	var out domain.Device
	err := r.s.write(r.tx, func(t *txn) error {
		d, err := t.lockDevice(ctx, id)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *deviceRepository) ListByStatus(ctx context.Context, status domain.DeviceStatus) ([]domain.Device, error) {
	return r.Filter(ctx, domain.DeviceFilter{Status: &status})
}

func (r *deviceRepository) Filter(ctx context.Context, f domain.DeviceFilter) ([]domain.Device, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Device
	for _, d := range r.s.deviceView(r.tx) {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *deviceRepository) UpdateStatus(ctx context.Context, id int32, expected *domain.DeviceStatus, next domain.DeviceStatus) error {
	if !next.Valid() {
		return fmt.Errorf("device status %d: %w", int(next), domain.ErrInvalidArgument)
	}
	return r.s.write(r.tx, func(t *txn) error {
		d, err := t.lockDevice(ctx, id)
		if err != nil {
			return err
		}
		if expected != nil && d.Status != *expected {
			return fmt.Errorf("device %d is not %s: %w", id, *expected, domain.ErrConflict)
		}
		d.Status = next
		d.UpdatedOn = time.Now()
		t.devices[id] = &d
		return nil
	})
}

func (r *deviceRepository) UpdateBattery(ctx context.Context, id int32, level int) error {
	if level < domain.BatteryMin || level > domain.BatteryMax {
		return fmt.Errorf("battery level %d out of range: %w", level, domain.ErrInvalidArgument)
	}
	return r.s.write(r.tx, func(t *txn) error {
		d, err := t.lockDevice(ctx, id)
		if err != nil {
			return err
		}
		d.BatteryLevel = level
		d.UpdatedOn = time.Now()
		t.devices[id] = &d
		return nil
	})
}

func (r *deviceRepository) Update(ctx context.Context, in *domain.Device) error {
	if !in.Status.Valid() || in.BatteryLevel < domain.BatteryMin || in.BatteryLevel > domain.BatteryMax || !in.PricePerHour.IsPositive() {
		return fmt.Errorf("device values out of range: %w", domain.ErrInvalidArgument)
	}
	return r.s.write(r.tx, func(t *txn) error {
		d, err := t.lockDevice(ctx, in.ID)
		if err != nil {
			return err
		}
		d.Status = in.Status
		d.BatteryLevel = in.BatteryLevel
		d.PricePerHour = in.PricePerHour
		d.UpdatedOn = time.Now()
		t.devices[in.ID] = &d
		in.UpdatedOn = d.UpdatedOn
		return nil
	})
}

func (r *deviceRepository) Delete(ctx context.Context, id int32) error {
	return r.s.write(r.tx, func(t *txn) error {
		if _, err := t.lockDevice(ctx, id); err != nil {
			return err
		}
		t.devices[id] = nil
		return nil
	})
}
