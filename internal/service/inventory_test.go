package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/events"
)

func TestInventoryService_AddDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := &domain.Device{Brand: "  Romoss ", BatteryLevel: 100, PricePerHour: dec("1.50")}
	require.NoError(t, f.inventory.AddDevice(ctx, d))
	assert.NotZero(t, d.ID)
	assert.Equal(t, "Romoss", d.Brand)
	assert.Equal(t, domain.DeviceStatusAvailable, d.Status)

	bad := []*domain.Device{
		{Brand: "", BatteryLevel: 50, PricePerHour: dec("1")},
		{Brand: "X", BatteryLevel: 101, PricePerHour: dec("1")},
		{Brand: "X", BatteryLevel: 50, PricePerHour: dec("0")},
		{Brand: "X", Status: domain.DeviceStatusInUse, BatteryLevel: 50, PricePerHour: dec("1")},
	}
	for _, b := range bad {
		assert.ErrorIs(t, f.inventory.AddDevice(ctx, b), domain.ErrInvalidArgument)
	}

	available, err := f.inventory.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 1)
}

func TestInventoryService_UpdateDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, domain.DeviceStatusAvailable, 80, "2.00")

	updated, err := f.inventory.UpdateDevice(ctx, &domain.Device{
		ID:           d.ID,
		Brand:        "ignored",
		Status:       domain.DeviceStatusUnavailable,
		BatteryLevel: 10,
		PricePerHour: dec("2.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Anker", updated.Brand)
	assert.Equal(t, domain.DeviceStatusUnavailable, updated.Status)
	assert.True(t, updated.PricePerHour.Equal(dec("2.50")))
	assert.Len(t, f.events.OfType(events.DeviceStatusChanged), 1)

	_, err = f.inventory.UpdateDevice(ctx, &domain.Device{ID: d.ID, Status: domain.DeviceStatusInUse, BatteryLevel: 10, PricePerHour: dec("2.50")})
	assert.ErrorIs(t, err, domain.ErrConflict)

	user := f.account(t, "renter", domain.MembershipVIP, "0")
	rented := f.device(t, domain.DeviceStatusAvailable, 80, "2.00")
	_, err = f.rentals.CreateRental(ctx, user.ID, rented.ID, "")
	require.NoError(t, err)

	_, err = f.inventory.UpdateDevice(ctx, &domain.Device{ID: rented.ID, Status: domain.DeviceStatusAvailable, BatteryLevel: 80, PricePerHour: dec("2.00")})
	assert.ErrorIs(t, err, domain.ErrConflict)

	// price change on a rented device keeps it in use
	kept, err := f.inventory.UpdateDevice(ctx, &domain.Device{ID: rented.ID, Status: domain.DeviceStatusInUse, BatteryLevel: 80, PricePerHour: dec("3.00")})
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusInUse, kept.Status)

	assert.ErrorIs(t, f.inventory.DeleteDevice(ctx, rented.ID), domain.ErrConflict)
	require.NoError(t, f.inventory.DeleteDevice(ctx, d.ID))
	_, err = f.inventory.GetDevice(ctx, d.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInventoryService_FilterDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.device(t, domain.DeviceStatusAvailable, 80, "2.00")
	f.device(t, domain.DeviceStatusAvailable, 20, "1.00")
	f.device(t, domain.DeviceStatusUnavailable, 5, "2.00")

	minBattery := 30
	devices, err := f.inventory.FilterDevices(ctx, domain.DeviceFilter{Brand: " ank ", MinBattery: &minBattery})
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	status := domain.DeviceStatusUnavailable
	devices, err = f.inventory.FilterDevices(ctx, domain.DeviceFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

// A rented device that ran flat is parked while its order stays open. The
// order keeps the device and its deposit pinned.
func TestInventoryService_ParkedDeviceWithOpenOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.account(t, "ivy", domain.MembershipCommon, "150.00")
	d := f.device(t, domain.DeviceStatusAvailable, 60, "2.00")

	_, err := f.rentals.CreateRental(ctx, user.ID, d.ID, "")
	require.NoError(t, err)
	assert.True(t, f.balance(t, user.ID).Equal(dec("51.00")))

	inUse := domain.DeviceStatusInUse
	require.NoError(t, f.store.Stores().Devices.UpdateStatus(ctx, d.ID, &inUse, domain.DeviceStatusUnavailable))

	t.Run("Delete refused", func(t *testing.T) {
		assert.ErrorIs(t, f.inventory.DeleteDevice(ctx, d.ID), domain.ErrConflict)
		_, err := f.inventory.GetDevice(ctx, d.ID)
		assert.NoError(t, err)
	})

	t.Run("Manual release refused", func(t *testing.T) {
		_, err := f.inventory.UpdateDevice(ctx, &domain.Device{ID: d.ID, Status: domain.DeviceStatusAvailable, BatteryLevel: 90, PricePerHour: dec("2.00")})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, domain.DeviceStatusUnavailable, f.deviceStatus(t, d.ID))

		other := f.account(t, "jack", domain.MembershipVIP, "10.00")
		_, err = f.rentals.CreateRental(ctx, other.ID, d.ID, "")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Price edit allowed", func(t *testing.T) {
		updated, err := f.inventory.UpdateDevice(ctx, &domain.Device{ID: d.ID, Status: domain.DeviceStatusUnavailable, BatteryLevel: 0, PricePerHour: dec("2.00")})
		require.NoError(t, err)
		assert.Equal(t, domain.DeviceStatusUnavailable, updated.Status)
	})

	f.clock.Advance(30 * time.Minute)
	receipt, err := f.rentals.ReturnDevice(ctx, user.ID, d.ID)
	require.NoError(t, err)
	assert.True(t, f.balance(t, user.ID).Equal(dec("150.00").Sub(receipt.ActualCost)), "deposit refunded")
	assert.Equal(t, domain.DeviceStatusAvailable, f.deviceStatus(t, d.ID))
}

func TestInventoryService_DeleteDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.account(t, "kim", domain.MembershipVIP, "10.00")
	used := f.device(t, domain.DeviceStatusAvailable, 60, "2.00")
	fresh := f.device(t, domain.DeviceStatusUnavailable, 5, "2.00")

	_, err := f.rentals.CreateRental(ctx, user.ID, used.ID, "")
	require.NoError(t, err)
	_, err = f.rentals.ReturnDevice(ctx, user.ID, used.ID)
	require.NoError(t, err)

	// closed orders still reference it
	assert.ErrorIs(t, f.inventory.DeleteDevice(ctx, used.ID), domain.ErrConflict)
	require.NoError(t, f.inventory.DeleteDevice(ctx, fresh.ID))
	assert.ErrorIs(t, f.inventory.DeleteDevice(ctx, fresh.ID), domain.ErrNotFound)

	history, err := f.rentals.ListOrderHistory(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestInventoryService_UpdateDevice_StatusEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.device(t, domain.DeviceStatusUnavailable, 50, "2.00")

	set := func(s domain.DeviceStatus) error {
		_, err := f.inventory.UpdateDevice(ctx, &domain.Device{ID: d.ID, Status: s, BatteryLevel: 50, PricePerHour: dec("2.00")})
		return err
	}
	require.NoError(t, set(domain.DeviceStatusAvailable))
	require.NoError(t, set(domain.DeviceStatusUnavailable))
	require.NoError(t, set(domain.DeviceStatusUnavailable))
	assert.ErrorIs(t, set(domain.DeviceStatusInUse), domain.ErrConflict)
	assert.ErrorIs(t, set(domain.DeviceStatus(9)), domain.ErrInvalidArgument)

	changes := f.events.OfType(events.DeviceStatusChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, events.DeviceKey(d.ID), changes[0].Key)
}
