package utils

import (
	"testing"
	"time"

	"powerbank-rental-backend/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeposit(t *testing.T) {
	t.Run("Common pays the standard deposit", func(t *testing.T) {
		d, err := Deposit(domain.MembershipCommon)
		require.NoError(t, err)
		assert.True(t, d.Equal(dec("99.00")))
	})

	t.Run("VIP and SVIP pay nothing", func(t *testing.T) {
		for _, m := range []domain.Membership{domain.MembershipVIP, domain.MembershipSVIP} {
			d, err := Deposit(m)
			require.NoError(t, err)
			assert.True(t, d.IsZero(), m.String())
		}
	})

	t.Run("Admin is rejected", func(t *testing.T) {
		_, err := Deposit(domain.MembershipAdmin)
		assert.ErrorIs(t, err, ErrUnsupportedMembership)
	})

	t.Run("Unknown tier is rejected", func(t *testing.T) {
		_, err := Deposit(domain.Membership(42))
		assert.ErrorIs(t, err, ErrUnsupportedMembership)
	})
}

func TestActualCost(t *testing.T) {
	tests := []struct {
		name       string
		total      string
		membership domain.Membership
		expected   string
	}{
		{"SVIP half price", "6.00", domain.MembershipSVIP, "3.00"},
		{"VIP twenty percent off", "10.00", domain.MembershipVIP, "8.00"},
		{"Common full price", "7.50", domain.MembershipCommon, "7.50"},
		{"Zero stays zero", "0", domain.MembershipSVIP, "0"},
		{"VIP fractional", "3.33", domain.MembershipVIP, "2.664"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActualCost(dec(tt.total), tt.membership)
			assert.True(t, got.Equal(dec(tt.expected)), "got %s want %s", got, tt.expected)
		})
	}
}

func TestActualCostNeverExceedsTotal(t *testing.T) {
	members := []domain.Membership{domain.MembershipCommon, domain.MembershipVIP, domain.MembershipSVIP}
	for cents := int64(0); cents <= 50000; cents += 137 {
		total := decimal.New(cents, -2)
		for _, m := range members {
			got := ActualCost(total, m)
			assert.True(t, got.LessThanOrEqual(total))
			assert.False(t, got.IsNegative())
		}
	}
}

func TestReturnBalance(t *testing.T) {
	// SVIP, balance 200, no deposit, 6.00 metered at half price
	got := ReturnBalance(dec("200"), decimal.Zero, ActualCost(dec("6.00"), domain.MembershipSVIP))
	assert.True(t, got.Equal(dec("197")))

	// Common: deposit was taken at rental start and comes back here
	got = ReturnBalance(dec("1.00"), dec("99.00"), dec("4.00"))
	assert.True(t, got.Equal(dec("96.00")))
}

func TestSufficientFunds(t *testing.T) {
	assert.True(t, SufficientFunds(dec("99.00"), dec("99.00")))
	assert.True(t, SufficientFunds(dec("100"), dec("99.00")))
	assert.False(t, SufficientFunds(dec("50"), dec("99.00")))
	assert.True(t, SufficientFunds(decimal.Zero, decimal.Zero))
}

func TestMeteredHours(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		elapsed  time.Duration
		expected int64
	}{
		{"Under an hour charges one", 10 * time.Minute, 1},
		{"Exactly one hour", time.Hour, 1},
		{"Partial hours are truncated", 2*time.Hour + 59*time.Minute, 2},
		{"Three hours", 3 * time.Hour, 3},
		{"Clock skew charges one", -time.Minute, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MeteredHours(start, start.Add(tt.elapsed)))
		})
	}
}

func TestMeteredCost(t *testing.T) {
	assert.True(t, MeteredCost(3, dec("2.0")).Equal(dec("6.0")))
	assert.True(t, MeteredCost(1, dec("1.25")).Equal(dec("1.25")))
}

func TestFindMembershipPlan(t *testing.T) {
	p, err := FindMembershipPlan("svip_yearly")
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipSVIP, p.Membership)
	assert.Equal(t, 12, p.Months)
	assert.True(t, p.Fee.Equal(dec("180")))

	_, err = FindMembershipPlan("GOLD")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Len(t, MembershipPlans(), 4)
}

func TestOrderCodeGenerator(t *testing.T) {
	clock := NewFixedClock(time.Date(2024, 3, 9, 7, 5, 4, 12_000_000, time.UTC))
	gen := NewOrderCodeGenerator(clock)
	gen.intn = func(int) int { return 42 }

	assert.Equal(t, "ORD20240309070504012"+"2345"+"00042", gen.Generate(12345))
	assert.Equal(t, "ORD20240309070504012"+"0007"+"00042", gen.Generate(7))
	assert.Len(t, gen.Generate(1), 3+17+4+5)
}
