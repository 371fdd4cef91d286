package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/events"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

type inventoryService struct {
	tx        repository.TxManager
	store     repository.Stores
	publisher events.Publisher
	log       *slog.Logger
}

func NewInventoryService(tx repository.TxManager, store repository.Stores, publisher events.Publisher) InventoryService {
	return &inventoryService{tx: tx, store: store, publisher: publisher, log: logger.WithService("inventory")}
}

func validateDevice(d *domain.Device) error {
	if d.BatteryLevel < domain.BatteryMin || d.BatteryLevel > domain.BatteryMax {
		return fmt.Errorf("battery level %d out of range: %w", d.BatteryLevel, domain.ErrInvalidArgument)
	}
	if !d.PricePerHour.IsPositive() {
		return fmt.Errorf("price per hour must be positive: %w", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *inventoryService) ListAvailable(ctx context.Context) ([]domain.Device, error) {
	return s.store.Devices.ListByStatus(ctx, domain.DeviceStatusAvailable)
}

func (s *inventoryService) FilterDevices(ctx context.Context, f domain.DeviceFilter) ([]domain.Device, error) {
	f.Brand = strings.TrimSpace(f.Brand)
	return s.store.Devices.Filter(ctx, f)
}

func (s *inventoryService) GetDevice(ctx context.Context, id int32) (*domain.Device, error) {
	return s.store.Devices.GetByID(ctx, id)
}

// AddDevice registers a device. Status defaults to Available; a device can
// only become InUse through a rental.
func (s *inventoryService) AddDevice(ctx context.Context, d *domain.Device) error {
	d.Brand = strings.TrimSpace(d.Brand)
	if d.Brand == "" {
		return fmt.Errorf("brand is required: %w", domain.ErrInvalidArgument)
	}
	if d.Status == 0 {
		d.Status = domain.DeviceStatusAvailable
	}
	if d.Status == domain.DeviceStatusInUse {
		return fmt.Errorf("new device cannot be in use: %w", domain.ErrInvalidArgument)
	}
	if err := validateDevice(d); err != nil {
		return err
	}
	if err := s.store.Devices.Create(ctx, d); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Device added", "deviceID", d.ID, "brand", d.Brand)
	return nil
}

// requireNoOpenOrder fails with ErrConflict while an order still holds the
// device, whatever the device's own status says.
func requireNoOpenOrder(ctx context.Context, st repository.Stores, deviceID int32) error {
	o, err := st.Orders.FindOpenByDevice(ctx, deviceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("device %d is held by open order %d: %w", deviceID, o.ID, domain.ErrConflict)
}

// UpdateDevice writes status, battery and price. The brand is kept. InUse is
// owned by the rental flow and cannot be entered or left here. Otherwise the
// status follows the device state machine, plus the manual Available ->
// Unavailable edge, and only while no order holds the device.
func (s *inventoryService) UpdateDevice(ctx context.Context, in *domain.Device) (*domain.Device, error) {
	if err := validateDevice(in); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("device status %d: %w", int(in.Status), domain.ErrInvalidArgument)
	}

	var updated domain.Device
	var prev domain.DeviceStatus
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		current, err := st.Devices.GetByIDForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}
		if in.Status != current.Status {
			if current.Status == domain.DeviceStatusInUse || in.Status == domain.DeviceStatusInUse {
				return fmt.Errorf("device %d status %s cannot be set to %s manually: %w", in.ID, current.Status, in.Status, domain.ErrConflict)
			}
			parked := current.Status == domain.DeviceStatusAvailable && in.Status == domain.DeviceStatusUnavailable
			if !parked && !current.Status.CanTransitionTo(in.Status) {
				return fmt.Errorf("device %d cannot move from %s to %s: %w", in.ID, current.Status, in.Status, domain.ErrConflict)
			}
			if err := requireNoOpenOrder(ctx, st, in.ID); err != nil {
				return err
			}
		}
		updated = *current
		updated.Status = in.Status
		updated.BatteryLevel = in.BatteryLevel
		updated.PricePerHour = in.PricePerHour
		prev = current.Status
		return st.Devices.Update(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	if prev != updated.Status {
		e := events.New(events.DeviceStatusChanged, events.DeviceKey(updated.ID), events.StatusChange{DeviceID: updated.ID, From: prev, To: updated.Status, Reason: "admin"})
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.WarnContext(ctx, "Failed to publish event", "type", e.Type, "error", err)
		}
	}
	return &updated, nil
}

// DeleteDevice removes a device that no order references. A device with
// rental history is retired by setting it Unavailable instead.
func (s *inventoryService) DeleteDevice(ctx context.Context, id int32) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		d, err := st.Devices.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d.Status == domain.DeviceStatusInUse {
			return fmt.Errorf("device %d is rented: %w", id, domain.ErrConflict)
		}
		if err := requireNoOpenOrder(ctx, st, id); err != nil {
			return err
		}
		return st.Devices.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Device deleted", "deviceID", id)
	return nil
}
