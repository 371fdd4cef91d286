package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/utils"
)

type RentalService interface {
	// CreateRental opens an order for deviceID. brand defaults to the
	// device's brand when empty.
	CreateRental(ctx context.Context, userID, deviceID int32, brand string) (*domain.Order, error)
	// ReturnRental closes an order with caller-supplied hours, cost and code.
	ReturnRental(ctx context.Context, req ReturnRequest) (*ReturnReceipt, error)
	// ReturnDevice meters the open rental of deviceID up to now and closes it.
	ReturnDevice(ctx context.Context, userID, deviceID int32) (*ReturnReceipt, error)
	QuoteReturn(ctx context.Context, userID, orderID int32) (*ReturnQuote, error)
	ListCurrentRentals(ctx context.Context, userID int32) ([]domain.Order, error)
	ListOrderHistory(ctx context.Context, userID int32) ([]domain.Order, error)
	SearchOrders(ctx context.Context, userID int32, keyword string) ([]domain.Order, error)
	GetOrderByCode(ctx context.Context, userID int32, code string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, userID, orderID int32) error
}

type AccountService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (string, *domain.Account, error)
	GetAccount(ctx context.Context, userID int32) (*domain.Account, error)
	Recharge(ctx context.Context, userID int32, amount decimal.Decimal) (*domain.Account, error)
	UpgradeMembership(ctx context.Context, userID int32, planCode string) (*domain.Account, error)
	ListPlans() []utils.MembershipPlan
	ExpireMemberships(ctx context.Context) (int, error)

	// ListAccounts backs the operator console: every account, or those
	// matching a membership tier and/or a username/phone keyword.
	ListAccounts(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, in AccountUpdate) (*domain.Account, error)
	// DeleteAccount removes a renter with no open rental, along with its
	// closed orders. The treasury cannot be deleted.
	DeleteAccount(ctx context.Context, id int32) error
}

type InventoryService interface {
	ListAvailable(ctx context.Context) ([]domain.Device, error)
	FilterDevices(ctx context.Context, f domain.DeviceFilter) ([]domain.Device, error)
	GetDevice(ctx context.Context, id int32) (*domain.Device, error)
	AddDevice(ctx context.Context, d *domain.Device) error
	UpdateDevice(ctx context.Context, d *domain.Device) (*domain.Device, error)
	DeleteDevice(ctx context.Context, id int32) error
}

// ReturnRequest carries an already-metered return. UserID 0 skips the
// ownership check (admin close).
type ReturnRequest struct {
	UserID    int32
	OrderID   int32
	DeviceID  int32
	Hours     int64
	TotalCost decimal.Decimal
	OrderCode string
}

type ReturnReceipt struct {
	Order      domain.Order    `json:"order"`
	ActualCost decimal.Decimal `json:"actual_cost"`
	Balance    decimal.Decimal `json:"balance"`
}

type ReturnQuote struct {
	OrderID    int32           `json:"order_id"`
	Hours      int64           `json:"hours"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	ActualCost decimal.Decimal `json:"actual_cost"`
	Deposit    decimal.Decimal `json:"deposit"`
	QuotedAt   time.Time       `json:"quoted_at"`
}

// AccountUpdate is an operator edit. Nil fields keep their value.
type AccountUpdate struct {
	ID               int32
	Username         *string
	Phone            *string
	Membership       *domain.Membership
	MembershipExpiry *time.Time
	Balance          *decimal.Decimal
}

type RegisterRequest struct {
	Username        string
	Phone           string
	Password        string
	ConfirmPassword string
}
