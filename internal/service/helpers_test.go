package service_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/events"
	"powerbank-rental-backend/internal/repository/memory"
	"powerbank-rental-backend/internal/security"
	"powerbank-rental-backend/internal/service"
	"powerbank-rental-backend/internal/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var phoneSeq atomic.Int32

type fixture struct {
	store     *memory.Store
	clock     *utils.FixedClock
	events    *events.Recorder
	tokens    security.TokenManager
	rentals   service.RentalService
	accounts  service.AccountService
	inventory service.InventoryService
	treasury  *domain.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPublisher(t, nil)
}

func newFixtureWithPublisher(t *testing.T, pub events.Publisher) *fixture {
	t.Helper()
	store := memory.NewStore(2 * time.Second)
	f := &fixture{
		store:  store,
		clock:  utils.NewFixedClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)),
		events: &events.Recorder{},
		tokens: security.NewTokenManager(testSecret, time.Hour),
	}
	if pub == nil {
		pub = f.events
	}
	retry := service.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}
	f.rentals = service.NewRentalService(store, store.Stores(), f.clock, pub, retry)
	f.accounts = service.NewAccountService(store, store.Stores(), f.tokens, f.clock, pub, retry)
	f.inventory = service.NewInventoryService(store, store.Stores(), pub)
	f.treasury = f.account(t, "treasury", domain.MembershipAdmin, "0")
	return f
}

func (f *fixture) account(t *testing.T, name string, m domain.Membership, balance string) *domain.Account {
	t.Helper()
	a := &domain.Account{
		Username:   name,
		Phone:      fmt.Sprintf("139%08d", phoneSeq.Add(1)),
		Membership: m,
		Balance:    decimal.RequireFromString(balance),
	}
	require.NoError(t, f.store.Stores().Accounts.Create(context.Background(), a))
	return a
}

func (f *fixture) device(t *testing.T, status domain.DeviceStatus, battery int, price string) *domain.Device {
	t.Helper()
	d := &domain.Device{
		Brand:        "Anker",
		Status:       status,
		BatteryLevel: battery,
		PricePerHour: decimal.RequireFromString(price),
	}
	require.NoError(t, f.store.Stores().Devices.Create(context.Background(), d))
	return d
}

func (f *fixture) balance(t *testing.T, id int32) decimal.Decimal {
	t.Helper()
	a, err := f.store.Stores().Accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func (f *fixture) deviceStatus(t *testing.T, id int32) domain.DeviceStatus {
	t.Helper()
	d, err := f.store.Stores().Devices.GetByID(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockPublisher is a testify mock for events.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}
