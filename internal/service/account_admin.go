package service

import (
	"context"
	"fmt"
	"strings"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

func (s *accountService) ListAccounts(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	f.Keyword = strings.TrimSpace(f.Keyword)
	if f.Membership != nil && !f.Membership.Valid() {
		return nil, fmt.Errorf("membership %d: %w", int(*f.Membership), domain.ErrInvalidArgument)
	}
	return s.store.Accounts.Filter(ctx, f)
}

// applyAccountUpdate merges in onto a. The treasury keeps its tier and its
// balance, which only moves through rentals and plan fees.
func applyAccountUpdate(a *domain.Account, in AccountUpdate) error {
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validateUsername(username); err != nil {
			return err
		}
		a.Username = username
	}
	if in.Phone != nil {
		if err := validatePhone(*in.Phone); err != nil {
			return err
		}
		a.Phone = *in.Phone
	}
	if in.Balance != nil && !in.Balance.Equal(a.Balance) {
		if a.IsTreasury() {
			return fmt.Errorf("treasury balance cannot be edited: %w", domain.ErrForbidden)
		}
		if in.Balance.IsNegative() {
			return fmt.Errorf("balance cannot be negative: %w", domain.ErrInvalidArgument)
		}
		a.Balance = *in.Balance
	}
	if in.Membership != nil && *in.Membership != a.Membership {
		if a.IsTreasury() {
			return fmt.Errorf("treasury account cannot change tier: %w", domain.ErrForbidden)
		}
		if !in.Membership.Valid() || *in.Membership == domain.MembershipAdmin {
			return fmt.Errorf("membership %s cannot be assigned: %w", *in.Membership, domain.ErrInvalidArgument)
		}
		a.Membership = *in.Membership
	}
	if in.MembershipExpiry != nil {
		expiry := *in.MembershipExpiry
		a.MembershipExpiry = &expiry
	}
	if !a.Membership.IsPremium() {
		a.MembershipExpiry = nil
	}
	return nil
}

func (s *accountService) UpdateAccount(ctx context.Context, in AccountUpdate) (*domain.Account, error) {
	var account *domain.Account
	err := withRetry(ctx, "update account", s.retry, func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			a, err := st.Accounts.GetByIDForUpdate(ctx, in.ID)
			if err != nil {
				return err
			}
			if err := applyAccountUpdate(a, in); err != nil {
				return err
			}
			if err := st.Accounts.Update(ctx, a); err != nil {
				return err
			}
			account = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Account updated by operator", "accountID", account.ID, "membership", account.Membership, "balance", account.Balance.StringFixed(2))
	return account, nil
}

func (s *accountService) DeleteAccount(ctx context.Context, id int32) error {
	var removed int64
	err := withRetry(ctx, "delete account", s.retry, func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			a, err := st.Accounts.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if a.IsTreasury() {
				return fmt.Errorf("treasury account cannot be deleted: %w", domain.ErrForbidden)
			}
			open, err := st.Orders.ListOpenByUser(ctx, id)
			if err != nil {
				return err
			}
			if len(open) > 0 {
				return fmt.Errorf("account %d has %d open rentals: %w", id, len(open), domain.ErrConflict)
			}
			if removed, err = st.Orders.DeleteClosedByUser(ctx, id); err != nil {
				return err
			}
			return st.Accounts.Delete(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Account deleted", "accountID", id, "ordersRemoved", removed)
	return nil
}
