package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"

	_ "github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repository can run
// either standalone or inside WithinTx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	repository.DeviceRepository
	repository.AccountRepository
	repository.OrderRepository
}

func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{
		db:                db,
		lockTimeout:       lockTimeout,
		DeviceRepository:  NewDeviceRepository(db),
		AccountRepository: NewAccountRepository(db),
		OrderRepository:   NewOrderRepository(db),
	}
}

func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Devices:  s.DeviceRepository,
		Accounts: s.AccountRepository,
		Orders:   s.OrderRepository,
	}
}

// WithinTx runs fn in a READ COMMITTED transaction with a bounded lock wait.
// Row locks taken with SELECT ... FOR UPDATE are released on commit or
// rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Stores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin tx", err)
	}
	// no-op once committed
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return mapError("set lock_timeout", err)
		}
	}

	st := repository.Stores{
		Devices:  NewDeviceRepository(tx),
		Accounts: NewAccountRepository(tx),
		Orders:   NewOrderRepository(tx),
	}
	if err := fn(ctx, st); err != nil {
		logger.Debug("Rolling back transaction", "error", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}
