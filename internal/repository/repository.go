package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

// Row locks taken inside one transaction must follow this order:
// order -> renter account -> device -> treasury account.
// The ...ForUpdate methods block until the row lock is granted or the
// store's lock timeout elapses (domain.ErrLockTimeout).

type DeviceRepository interface {
	Create(ctx context.Context, d *domain.Device) error
	GetByID(ctx context.Context, id int32) (*domain.Device, error)
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Device, error)
	ListByStatus(ctx context.Context, status domain.DeviceStatus) ([]domain.Device, error)
	Filter(ctx context.Context, f domain.DeviceFilter) ([]domain.Device, error)
	// UpdateStatus sets the status to next. When expected is non-nil the write
	// only happens if the current status equals *expected, else ErrConflict.
	UpdateStatus(ctx context.Context, id int32, expected *domain.DeviceStatus, next domain.DeviceStatus) error
	UpdateBattery(ctx context.Context, id int32, level int) error
	// Update writes status, battery and price. Brand is immutable.
	Update(ctx context.Context, d *domain.Device) error
	Delete(ctx context.Context, id int32) error
}

type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id int32) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetTreasury(ctx context.Context, forUpdate bool) (*domain.Account, error)
	AdjustBalance(ctx context.Context, id int32, delta decimal.Decimal) error
	UpdateBalance(ctx context.Context, id int32, balance decimal.Decimal) error
	UpdateMembership(ctx context.Context, id int32, m domain.Membership, expiry *time.Time) error
	ListExpiredMemberships(ctx context.Context, now time.Time) ([]domain.Account, error)
	Filter(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error)
	// Update writes username, phone, membership, expiry and balance.
	Update(ctx context.Context, a *domain.Account) error
	Delete(ctx context.Context, id int32) error
}

type OrderRepository interface {
	CreateOpen(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int32) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, id int32) (*domain.Order, error)
	GetByCode(ctx context.Context, code string) (*domain.Order, error)
	FindOpenByDevice(ctx context.Context, deviceID int32) (*domain.Order, error)
	// Close fills in the return fields of an open order; a closed order
	// yields ErrConflict.
	Close(ctx context.Context, id int32, c domain.OrderClosure) error
	ListByUser(ctx context.Context, userID int32) ([]domain.Order, error)
	ListOpenByUser(ctx context.Context, userID int32) ([]domain.Order, error)
	Search(ctx context.Context, userID int32, keyword string) ([]domain.Order, error)
	// DeleteClosed removes a closed order owned by userID.
	DeleteClosed(ctx context.Context, id, userID int32) error
	// DeleteClosedByUser removes every closed order of userID and reports
	// how many went.
	DeleteClosedByUser(ctx context.Context, userID int32) (int64, error)
}

// Stores groups the repositories bound to one transaction.
type Stores struct {
	Devices  DeviceRepository
	Accounts AccountRepository
	Orders   OrderRepository
}

// TxManager runs fn inside one transaction. fn's error rolls back every write
// made through the Stores it was given and releases all row locks; a nil
// return commits.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
