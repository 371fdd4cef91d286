package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"powerbank-rental-backend/internal/domain"
)

// SQLSTATE codes mapped onto domain error kinds.
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
)

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
			return fmt.Errorf("%w: %s: %w", domain.ErrLockTimeout, op, err)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s: %w", domain.ErrConflict, op, err)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s: %w", domain.ErrNotFound, op, err)
		case codeCheckViolation:
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidArgument, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

// mapDeleteError is mapError for DELETE statements, where a foreign key
// violation means the row is still referenced rather than missing.
func mapDeleteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation {
		return fmt.Errorf("%w: %s: still referenced: %w", domain.ErrConflict, op, err)
	}
	return mapError(op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func requireRow(res sql.Result, op string, id int32) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, domain.ErrNotFound)
	}
	return nil
}
