package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

var ErrUnsupportedMembership = errors.New("membership tier cannot rent")

var (
	// CommonDeposit is held from Common renters for the length of a rental.
	CommonDeposit = decimal.RequireFromString("99.00")

	vipRate  = decimal.RequireFromString("0.8")
	svipRate = decimal.RequireFromString("0.5")
)

// Deposit returns the deposit a renter of tier m must leave. Only renting
// tiers are defined; Admin and unknown tiers are rejected.
func Deposit(m domain.Membership) (decimal.Decimal, error) {
	switch m {
	case domain.MembershipCommon:
		return CommonDeposit, nil
	case domain.MembershipVIP, domain.MembershipSVIP:
		return decimal.Zero, nil
	case domain.MembershipAdmin:
		// the treasury account never rents
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedMembership, m)
	}
	return decimal.Zero, fmt.Errorf("%w: unknown tier %d", ErrUnsupportedMembership, int(m))
}

// RequiresDeposit reports whether the tier pays a deposit at rental start.
func RequiresDeposit(m domain.Membership) bool {
	return !m.IsPremium()
}

// ActualCost applies the membership discount to a metered total.
func ActualCost(total decimal.Decimal, m domain.Membership) decimal.Decimal {
	switch m {
	case domain.MembershipSVIP:
		return total.Mul(svipRate)
	case domain.MembershipVIP:
		return total.Mul(vipRate)
	case domain.MembershipCommon, domain.MembershipAdmin:
		return total
	}
	return total
}

// ReturnBalance is the renter balance after a return: the deposit comes back
// and the discounted cost is charged.
func ReturnBalance(balance, deposit, actualCost decimal.Decimal) decimal.Decimal {
	return balance.Add(deposit).Sub(actualCost)
}

func SufficientFunds(balance, required decimal.Decimal) bool {
	return balance.GreaterThanOrEqual(required)
}

// MeteredHours returns the number of whole hours between start and end,
// charging at least one hour.
func MeteredHours(start, end time.Time) int64 {
	hours := int64(end.Sub(start) / time.Hour)
	if hours < 1 {
		return 1
	}
	return hours
}

func MeteredCost(hours int64, pricePerHour decimal.Decimal) decimal.Decimal {
	return pricePerHour.Mul(decimal.NewFromInt(hours))
}

// MembershipPlan is a purchasable membership upgrade.
type MembershipPlan struct {
	Code       string            `json:"code"`
	Membership domain.Membership `json:"membership"`
	Months     int               `json:"months"`
	Fee        decimal.Decimal   `json:"fee"`
}

var membershipPlans = []MembershipPlan{
	{Code: "VIP_MONTHLY", Membership: domain.MembershipVIP, Months: 1, Fee: decimal.NewFromInt(25)},
	{Code: "VIP_YEARLY", Membership: domain.MembershipVIP, Months: 12, Fee: decimal.NewFromInt(150)},
	{Code: "SVIP_MONTHLY", Membership: domain.MembershipSVIP, Months: 1, Fee: decimal.NewFromInt(30)},
	{Code: "SVIP_YEARLY", Membership: domain.MembershipSVIP, Months: 12, Fee: decimal.NewFromInt(180)},
}

func MembershipPlans() []MembershipPlan {
	out := make([]MembershipPlan, len(membershipPlans))
	copy(out, membershipPlans)
	return out
}

func FindMembershipPlan(code string) (MembershipPlan, error) {
	for _, p := range membershipPlans {
		if strings.EqualFold(p.Code, code) {
			return p, nil
		}
	}
	return MembershipPlan{}, fmt.Errorf("%w: unknown membership plan %q", domain.ErrInvalidArgument, code)
}
