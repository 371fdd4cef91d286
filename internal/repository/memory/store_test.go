package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository"
)

func seedDevice(t *testing.T, s *Store, status domain.DeviceStatus, battery int) *domain.Device {
	t.Helper()
	d := &domain.Device{
		Brand:        "Anker",
		Status:       status,
		BatteryLevel: battery,
		PricePerHour: decimal.RequireFromString("2.00"),
	}
	require.NoError(t, s.DeviceRepository.Create(context.Background(), d))
	return d
}

func seedAccount(t *testing.T, s *Store, name string, m domain.Membership, balance string) *domain.Account {
	t.Helper()
	a := &domain.Account{
		Username:   name,
		Phone:      name + "-phone",
		Membership: m,
		Balance:    decimal.RequireFromString(balance),
	}
	require.NoError(t, s.AccountRepository.Create(context.Background(), a))
	return a
}

func TestStore_CommitPublishesWrites(t *testing.T) {
	s := NewStore(time.Second)
	ctx := context.Background()
	d := seedDevice(t, s, domain.DeviceStatusAvailable, 80)

	err := s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if err := st.Devices.UpdateBattery(ctx, d.ID, 55); err != nil {
			return err
		}
		// Staged write visible inside the transaction only.
		inside, err := st.Devices.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, 55, inside.BatteryLevel)

		outside, err := s.DeviceRepository.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, 80, outside.BatteryLevel)
		return nil
	})
	require.NoError(t, err)

	got, err := s.DeviceRepository.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, got.BatteryLevel)
}

func TestStore_RollbackOnError(t *testing.T) {
	s := NewStore(time.Second)
	ctx := context.Background()
	a := seedAccount(t, s, "alice", domain.MembershipCommon, "100.00")
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		require.NoError(t, st.Accounts.AdjustBalance(ctx, a.ID, decimal.NewFromInt(-99)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.AccountRepository.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("100.00")))

	// Locks were released: a second transaction can take the row at once.
	err = s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		_, err := st.Accounts.GetByIDForUpdate(ctx, a.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestStore_RollbackOnPanic(t *testing.T) {
	s := NewStore(time.Second)
	ctx := context.Background()
	d := seedDevice(t, s, domain.DeviceStatusAvailable, 80)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			require.NoError(t, st.Devices.UpdateBattery(ctx, d.ID, 1))
			panic("kaboom")
		})
	})

	got, err := s.DeviceRepository.GetByIDForUpdate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, got.BatteryLevel)
}

func TestStore_LockTimeout(t *testing.T) {
	s := NewStore(30 * time.Millisecond)
	ctx := context.Background()
	d := seedDevice(t, s, domain.DeviceStatusAvailable, 80)

	held := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			if _, err := st.Devices.GetByIDForUpdate(ctx, d.ID); err != nil {
				return err
			}
			close(held)
			<-finish
			return nil
		})
	}()
	<-held

	err := s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		_, err := st.Devices.GetByIDForUpdate(ctx, d.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsRetryable(err))

	close(finish)
	require.NoError(t, <-done)
}

func TestStore_LockHonoursContext(t *testing.T) {
	s := NewStore(0)
	d := seedDevice(t, s, domain.DeviceStatusAvailable, 80)

	held := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(context.Background(), func(ctx context.Context, st repository.Stores) error {
			if _, err := st.Devices.GetByIDForUpdate(ctx, d.ID); err != nil {
				return err
			}
			close(held)
			<-finish
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		_, err := st.Devices.GetByIDForUpdate(ctx, d.ID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(finish)
	require.NoError(t, <-done)
}

func TestStore_ConcurrentAdjustmentsSerialize(t *testing.T) {
	s := NewStore(5 * time.Second)
	ctx := context.Background()
	a := seedAccount(t, s, "bob", domain.MembershipCommon, "0")

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
				acc, err := st.Accounts.GetByIDForUpdate(ctx, a.ID)
				if err != nil {
					return err
				}
				return st.Accounts.UpdateBalance(ctx, a.ID, acc.Balance.Add(decimal.NewFromInt(1)))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.AccountRepository.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(workers)), "balance %s", got.Balance)
}

func TestStore_Constraints(t *testing.T) {
	ctx := context.Background()

	t.Run("Duplicate username", func(t *testing.T) {
		s := NewStore(time.Second)
		seedAccount(t, s, "carol", domain.MembershipCommon, "0")
		err := s.AccountRepository.Create(ctx, &domain.Account{Username: "carol", Phone: "other", Membership: domain.MembershipCommon})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Single treasury", func(t *testing.T) {
		s := NewStore(time.Second)
		seedAccount(t, s, "admin", domain.MembershipAdmin, "0")
		err := s.AccountRepository.Create(ctx, &domain.Account{Username: "admin2", Phone: "p2", Membership: domain.MembershipAdmin})
		assert.ErrorIs(t, err, domain.ErrConflict)

		treasury, err := s.AccountRepository.GetTreasury(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "admin", treasury.Username)
	})

	t.Run("One open order per device", func(t *testing.T) {
		s := NewStore(time.Second)
		orders := s.OrderRepository
		require.NoError(t, orders.CreateOpen(ctx, &domain.Order{UserID: 1, DeviceID: 9, Brand: "Anker", RentalStartTime: time.Now()}))
		err := orders.CreateOpen(ctx, &domain.Order{UserID: 2, DeviceID: 9, Brand: "Anker", RentalStartTime: time.Now()})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Referenced rows cannot be deleted", func(t *testing.T) {
		s := NewStore(time.Second)
		d := seedDevice(t, s, domain.DeviceStatusUnavailable, 0)
		a := seedAccount(t, s, "dora", domain.MembershipCommon, "0")
		o := &domain.Order{UserID: a.ID, DeviceID: d.ID, Brand: "Anker", RentalStartTime: time.Now()}
		require.NoError(t, s.OrderRepository.CreateOpen(ctx, o))

		assert.ErrorIs(t, s.DeviceRepository.Delete(ctx, d.ID), domain.ErrConflict)
		assert.ErrorIs(t, s.AccountRepository.Delete(ctx, a.ID), domain.ErrConflict)
		_, err := s.DeviceRepository.GetByID(ctx, d.ID)
		require.NoError(t, err)

		// dropping the reference in the same transaction is fine
		require.NoError(t, s.OrderRepository.Close(ctx, o.ID, domain.OrderClosure{OrderCode: "ORD1", ReturnTime: time.Now()}))
		err = s.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			n, err := st.Orders.DeleteClosedByUser(ctx, a.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, int64(1), n)
			if err := st.Accounts.Delete(ctx, a.ID); err != nil {
				return err
			}
			return st.Devices.Delete(ctx, d.ID)
		})
		require.NoError(t, err)
		_, err = s.AccountRepository.GetByID(ctx, a.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAccountRepository_FilterAndUpdate(t *testing.T) {
	s := NewStore(time.Second)
	ctx := context.Background()
	seedAccount(t, s, "admin", domain.MembershipAdmin, "0")
	erin := seedAccount(t, s, "erin", domain.MembershipCommon, "5")
	seedAccount(t, s, "erik", domain.MembershipVIP, "5")

	common := domain.MembershipCommon
	got, err := s.AccountRepository.Filter(ctx, domain.AccountFilter{Keyword: "eri", Membership: &common})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, erin.ID, got[0].ID)

	erin.Username = "erik"
	assert.ErrorIs(t, s.AccountRepository.Update(ctx, erin), domain.ErrConflict)

	erin.Username = "erin2"
	erin.Balance = decimal.NewFromInt(40)
	require.NoError(t, s.AccountRepository.Update(ctx, erin))
	stored, err := s.AccountRepository.GetByUsername(ctx, "erin2")
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(40)))

	assert.ErrorIs(t, s.AccountRepository.Update(ctx, &domain.Account{ID: 999, Membership: common}), domain.ErrNotFound)
}

func TestOrderRepository_Lifecycle(t *testing.T) {
	s := NewStore(time.Second)
	ctx := context.Background()
	orders := s.OrderRepository
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	o := &domain.Order{UserID: 7, DeviceID: 3, Brand: "Xiaomi", RentalStartTime: start, Deposit: decimal.NewFromInt(99)}
	require.NoError(t, orders.CreateOpen(ctx, o))
	assert.NotZero(t, o.ID)
	assert.True(t, o.IsOpen())

	open, err := orders.FindOpenByDevice(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, o.ID, open.ID)

	err = orders.DeleteClosed(ctx, o.ID, 7)
	assert.ErrorIs(t, err, domain.ErrConflict)

	closure := domain.OrderClosure{
		DurationHours: 4,
		TotalCost:     decimal.RequireFromString("8.00"),
		OrderCode:     "ORD20240301140000000000700001",
		ReturnTime:    start.Add(4 * time.Hour),
	}
	require.NoError(t, orders.Close(ctx, o.ID, closure))
	assert.ErrorIs(t, orders.Close(ctx, o.ID, closure), domain.ErrConflict)

	_, err = orders.FindOpenByDevice(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	byCode, err := orders.GetByCode(ctx, closure.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, int64(4), byCode.RentalDurationHours)

	found, err := orders.Search(ctx, 7, "xiao")
	require.NoError(t, err)
	assert.Len(t, found, 1)
	found, err = orders.Search(ctx, 7, "8.00")
	require.NoError(t, err)
	assert.Len(t, found, 1)
	found, err = orders.Search(ctx, 8, "xiao")
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.ErrorIs(t, orders.DeleteClosed(ctx, o.ID, 8), domain.ErrNotFound)
	require.NoError(t, orders.DeleteClosed(ctx, o.ID, 7))
	_, err = orders.GetByID(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeviceRepository_UpdateStatusCompareAndSet(t *testing.T) {
	s := NewStore(time.Second)
	ctx := context.Background()
	d := seedDevice(t, s, domain.DeviceStatusAvailable, 80)

	expected := domain.DeviceStatusAvailable
	require.NoError(t, s.DeviceRepository.UpdateStatus(ctx, d.ID, &expected, domain.DeviceStatusInUse))
	assert.ErrorIs(t, s.DeviceRepository.UpdateStatus(ctx, d.ID, &expected, domain.DeviceStatusInUse), domain.ErrConflict)
	assert.ErrorIs(t, s.DeviceRepository.UpdateStatus(ctx, 999, nil, domain.DeviceStatusAvailable), domain.ErrNotFound)

	inUse, err := s.DeviceRepository.ListByStatus(ctx, domain.DeviceStatusInUse)
	require.NoError(t, err)
	assert.Len(t, inUse, 1)

	assert.ErrorIs(t, s.DeviceRepository.UpdateBattery(ctx, d.ID, 101), domain.ErrInvalidArgument)
}
