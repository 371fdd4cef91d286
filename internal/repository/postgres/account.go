package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

const accountColumns = `id, username, phone, password_hash, membership, balance, membership_expiry, created_on`

type accountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) repository.AccountRepository {
	return &accountRepository{db: db}
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	if err := row.Scan(&a.ID, &a.Username, &a.Phone, &a.PasswordHash, &a.Membership, &a.Balance, &a.MembershipExpiry, &a.CreatedOn); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (username, phone, password_hash, membership, balance, membership_expiry, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	a.CreatedOn = time.Now()
	err := r.db.QueryRowContext(ctx, query, a.Username, a.Phone, a.PasswordHash, a.Membership, a.Balance, a.MembershipExpiry, a.CreatedOn).Scan(&a.ID)
	return mapError("create account", err)
}

func (r *accountRepository) GetByID(ctx context.Context, id int32) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError("get account", err)
	}
	return a, nil
}

func (r *accountRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("lock account", query, "account_id", id)
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError("lock account", err)
	}
	return a, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, mapError("get account by username", err)
	}
	return a, nil
}

func (r *accountRepository) GetTreasury(ctx context.Context, forUpdate bool) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE membership = $1 ORDER BY id LIMIT 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, domain.MembershipAdmin))
	if err != nil {
		return nil, mapError("get treasury", err)
	}
	return a, nil
}

func (r *accountRepository) AdjustBalance(ctx context.Context, id int32, delta decimal.Decimal) error {
	query := `UPDATE accounts SET balance = balance + $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return mapError("adjust balance", err)
	}
	return requireRow(res, "adjust balance", id)
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id int32, balance decimal.Decimal) error {
	query := `UPDATE accounts SET balance = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, balance, id)
	if err != nil {
		return mapError("update balance", err)
	}
	return requireRow(res, "update balance", id)
}

func (r *accountRepository) UpdateMembership(ctx context.Context, id int32, m domain.Membership, expiry *time.Time) error {
	query := `UPDATE accounts SET membership = $1, membership_expiry = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, m, expiry, id)
	if err != nil {
		return mapError("update membership", err)
	}
	return requireRow(res, "update membership", id)
}

func (r *accountRepository) ListExpiredMemberships(ctx context.Context, now time.Time) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
	          WHERE membership IN ($1, $2) AND membership_expiry IS NOT NULL AND membership_expiry < $3
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, domain.MembershipVIP, domain.MembershipSVIP, now)
	if err != nil {
		return nil, mapError("list expired memberships", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapError("scan account", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list expired memberships", err)
	}
	return accounts, nil
}

func (r *accountRepository) Filter(ctx context.Context, f domain.AccountFilter) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	args := []any{}
	argIdx := 1
	if f.Membership != nil {
		query += fmt.Sprintf(" AND membership = $%d", argIdx)
		args = append(args, *f.Membership)
		argIdx++
	}
	if f.Keyword != "" {
		query += fmt.Sprintf(" AND (username ILIKE $%d OR phone LIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+f.Keyword+"%")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list accounts", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapError("scan account", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list accounts", err)
	}
	return accounts, nil
}

func (r *accountRepository) Update(ctx context.Context, a *domain.Account) error {
	query := `UPDATE accounts SET username = $1, phone = $2, membership = $3, membership_expiry = $4, balance = $5
	          WHERE id = $6`
	res, err := r.db.ExecContext(ctx, query, a.Username, a.Phone, a.Membership, a.MembershipExpiry, a.Balance, a.ID)
	if err != nil {
		return mapError("update account", err)
	}
	return requireRow(res, "update account", a.ID)
}

func (r *accountRepository) Delete(ctx context.Context, id int32) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return mapDeleteError("delete account", err)
	}
	return requireRow(res, "delete account", id)
}
