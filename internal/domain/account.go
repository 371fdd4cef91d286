package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Membership int

const (
	MembershipCommon Membership = iota + 1
	MembershipVIP
	MembershipSVIP
	MembershipAdmin
)

func (m Membership) String() string {
	switch m {
	case MembershipCommon:
		return "COMMON"
	case MembershipVIP:
		return "VIP"
	case MembershipSVIP:
		return "SVIP"
	case MembershipAdmin:
		return "ADMIN"
	}
	return fmt.Sprintf("Membership(%d)", int(m))
}

func (m Membership) Valid() bool {
	switch m {
	case MembershipCommon, MembershipVIP, MembershipSVIP, MembershipAdmin:
		return true
	}
	return false
}

// IsPremium reports whether the tier rents without a deposit.
func (m Membership) IsPremium() bool {
	return m == MembershipVIP || m == MembershipSVIP
}

func ParseMembership(v string) (Membership, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "COMMON":
		return MembershipCommon, nil
	case "VIP":
		return MembershipVIP, nil
	case "SVIP":
		return MembershipSVIP, nil
	case "ADMIN":
		return MembershipAdmin, nil
	}
	return 0, fmt.Errorf("%w: unknown membership %q", ErrInvalidArgument, v)
}

func (m Membership) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid membership %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Membership) UnmarshalText(b []byte) error {
	parsed, err := ParseMembership(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Membership) Value() (driver.Value, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid membership %d", int(m))
	}
	return m.String(), nil
}

func (m *Membership) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return m.UnmarshalText([]byte(v))
	case []byte:
		return m.UnmarshalText(v)
	}
	return fmt.Errorf("cannot scan %T into Membership", src)
}

// Account is a renter or the single Admin treasury account.
type Account struct {
	ID               int32           `json:"id"`
	Username         string          `json:"username"`
	Phone            string          `json:"phone"`
	PasswordHash     string          `json:"-"`
	Membership       Membership      `json:"membership"`
	Balance          decimal.Decimal `json:"balance"`
	MembershipExpiry *time.Time      `json:"membership_expiry,omitempty"`
	CreatedOn        time.Time       `json:"created_on"`
}

func (a *Account) IsTreasury() bool {
	return a.Membership == MembershipAdmin
}

// AccountFilter narrows an account listing. Keyword matches a substring of
// the username or phone.
type AccountFilter struct {
	Membership *Membership
	Keyword    string
}

func (f AccountFilter) Matches(a Account) bool {
	if f.Membership != nil && a.Membership != *f.Membership {
		return false
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		if !strings.Contains(strings.ToLower(a.Username), kw) && !strings.Contains(a.Phone, kw) {
			return false
		}
	}
	return true
}
