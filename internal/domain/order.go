package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one rental. It is created open by a rental and closed exactly once
// by the matching return.
type Order struct {
	ID                  int32           `json:"id"`
	UserID              int32           `json:"user_id"`
	DeviceID            int32           `json:"device_id"`
	Brand               string          `json:"brand"`
	RentalStartTime     time.Time       `json:"rental_start_time"`
	RentalDurationHours int64           `json:"rental_duration_hours"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	OrderCode           *string         `json:"order_code,omitempty"`
	ReturnTime          *time.Time      `json:"return_time,omitempty"`
	Deposit             decimal.Decimal `json:"deposit"`
}

func (o *Order) IsOpen() bool {
	return o.RentalDurationHours == 0 && o.ReturnTime == nil
}

// OrderClosure carries the values written when an order is closed.
type OrderClosure struct {
	DurationHours int64
	TotalCost     decimal.Decimal
	OrderCode     string
	ReturnTime    time.Time
}
