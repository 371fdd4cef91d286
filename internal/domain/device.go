package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	BatteryMin = 0
	BatteryMax = 100
	// RechargeThreshold is the battery level at which an Unavailable device
	// is put back into service.
	RechargeThreshold = 30
)

type DeviceStatus int

const (
	DeviceStatusAvailable DeviceStatus = iota + 1
	DeviceStatusInUse
	DeviceStatusUnavailable
)

func (s DeviceStatus) String() string {
	switch s {
	case DeviceStatusAvailable:
		return "AVAILABLE"
	case DeviceStatusInUse:
		return "IN_USE"
	case DeviceStatusUnavailable:
		return "UNAVAILABLE"
	}
	return fmt.Sprintf("DeviceStatus(%d)", int(s))
}

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusAvailable, DeviceStatusInUse, DeviceStatusUnavailable:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal state
// machine edge. Unavailable -> Available covers both recharge and the return
// of a device whose battery died mid-rental.
func (s DeviceStatus) CanTransitionTo(next DeviceStatus) bool {
	switch s {
	case DeviceStatusAvailable:
		return next == DeviceStatusInUse
	case DeviceStatusInUse:
		return next == DeviceStatusAvailable || next == DeviceStatusUnavailable
	case DeviceStatusUnavailable:
		return next == DeviceStatusAvailable
	}
	return false
}

// ParseDeviceStatus accepts the canonical upper-case names as well as the
// camel-case spellings used by older clients ("InUse").
func ParseDeviceStatus(v string) (DeviceStatus, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), "_", "")) {
	case "AVAILABLE":
		return DeviceStatusAvailable, nil
	case "INUSE":
		return DeviceStatusInUse, nil
	case "UNAVAILABLE":
		return DeviceStatusUnavailable, nil
	}
	return 0, fmt.Errorf("%w: unknown device status %q", ErrInvalidArgument, v)
}

func (s DeviceStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid device status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *DeviceStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseDeviceStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s DeviceStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid device status %d", int(s))
	}
	return s.String(), nil
}

func (s *DeviceStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	}
	return fmt.Errorf("cannot scan %T into DeviceStatus", src)
}

type Device struct {
	ID           int32           `json:"id"`
	Brand        string          `json:"brand"`
	Status       DeviceStatus    `json:"status"`
	BatteryLevel int             `json:"battery_level"`
	PricePerHour decimal.Decimal `json:"price_per_hour"`
	CreatedOn    time.Time       `json:"created_on"`
	UpdatedOn    time.Time       `json:"updated_on"`
}

// DeviceFilter narrows a device listing. Nil fields are not applied.
type DeviceFilter struct {
	Status     *DeviceStatus
	Brand      string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	MinBattery *int
	MaxBattery *int
}

func (f DeviceFilter) Matches(d Device) bool {
	if f.Status != nil && d.Status != *f.Status {
		return false
	}
	if f.Brand != "" && !strings.Contains(strings.ToLower(d.Brand), strings.ToLower(f.Brand)) {
		return false
	}
	if f.MinPrice != nil && d.PricePerHour.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && d.PricePerHour.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.MinBattery != nil && d.BatteryLevel < *f.MinBattery {
		return false
	}
	if f.MaxBattery != nil && d.BatteryLevel > *f.MaxBattery {
		return false
	}
	return true
}

func ClampBattery(level int) int {
	if level < BatteryMin {
		return BatteryMin
	}
	if level > BatteryMax {
		return BatteryMax
	}
	return level
}
