package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

type accountRepository struct {
	s  *Store
	tx *txn
}

func (t *txn) lockAccount(ctx context.Context, id int32) (domain.Account, error) {
	if err := t.lock(ctx, rowKey{kindAccount, id}); err != nil {
		return domain.Account{}, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := lookup(t.s.accounts, t.accounts, id)
	if !ok {
		return domain.Account{}, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	if !a.Membership.Valid() {
		return fmt.Errorf("membership %d: %w", int(a.Membership), domain.ErrInvalidArgument)
	}
	return r.s.write(r.tx, func(t *txn) error {
		id := r.s.accountSeq.Add(1)
		if err := t.lock(ctx, rowKey{kindAccount, id}); err != nil {
			return err
		}
		created := *a
		created.ID = id
		created.CreatedOn = time.Now()
		t.accounts[id] = &created
		*a = created
		return nil
	})
}

func (r *accountRepository) GetByID(ctx context.Context, id int32) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := lookup(r.s.accounts, r.tx.stagedAccounts(), id)
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (r *accountRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Account, error) {
	var out domain.Account
	err := r.s.write(r.tx, func(t *txn) error {
		a, err := t.lockAccount(ctx, id)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accountView(r.tx) {
		if a.Username == username {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("account %q: %w", username, domain.ErrNotFound)
}

func (r *accountRepository) treasuryID() (int32, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accountView(r.tx) {
		if a.Membership == domain.MembershipAdmin {
			return a.ID, true
		}
	}
	return 0, false
}

func (r *accountRepository) GetTreasury(ctx context.Context, forUpdate bool) (*domain.Account, error) {
	id, ok := r.treasuryID()
	if !ok {
		return nil, fmt.Errorf("treasury account: %w", domain.ErrNotFound)
	}
	if forUpdate {
		return r.GetByIDForUpdate(ctx, id)
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepository) AdjustBalance(ctx context.Context, id int32, delta decimal.Decimal) error {
	return r.s.write(r.tx, func(t *txn) error {
		a, err := t.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		a.Balance = a.Balance.Add(delta)
		t.accounts[id] = &a
		return nil
	})
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id int32, balance decimal.Decimal) error {
	return r.s.write(r.tx, func(t *txn) error {
		a, err := t.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		a.Balance = balance
		t.accounts[id] = &a
		return nil
	})
}

func (r *accountRepository) UpdateMembership(ctx context.Context, id int32, m domain.Membership, expiry *time.Time) error {
	if !m.Valid() {
		return fmt.Errorf("membership %d: %w", int(m), domain.ErrInvalidArgument)
	}
	return r.s.write(r.tx, func(t *txn) error {
		a, err := t.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		a.Membership = m
		a.MembershipExpiry = expiry
		t.accounts[id] = &a
		return nil
	})
}

func (r *accountRepository) ListExpiredMemberships(ctx context.Context, now time.Time) ([]domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Account
	for _, a := range r.s.accountView(r.tx) {
		if a.Membership.IsPremium() && a.MembershipExpiry != nil && a.MembershipExpiry.Before(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *accountRepository) Filter(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Account
	for _, a := range r.s.accountView(r.tx) {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *accountRepository) Update(ctx context.Context, in *domain.Account) error {
	if !in.Membership.Valid() {
		return fmt.Errorf("membership %d: %w", int(in.Membership), domain.ErrInvalidArgument)
	}
	return r.s.write(r.tx, func(t *txn) error {
		a, err := t.lockAccount(ctx, in.ID)
		if err != nil {
			return err
		}
		a.Username = in.Username
		a.Phone = in.Phone
		a.Membership = in.Membership
		a.MembershipExpiry = in.MembershipExpiry
		a.Balance = in.Balance
		t.accounts[in.ID] = &a
		*in = a
		return nil
	})
}

func (r *accountRepository) Delete(ctx context.Context, id int32) error {
	return r.s.write(r.tx, func(t *txn) error {
		if _, err := t.lockAccount(ctx, id); err != nil {
			return err
		}
		t.accounts[id] = nil
		return nil
	})
}
