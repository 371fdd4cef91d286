package domain

import "errors"

// Error kinds shared by stores and services. Callers match them with
// errors.Is; the underlying cause stays wrapped alongside.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLockTimeout         = errors.New("lock wait timeout")
	ErrPersistence         = errors.New("persistence failure")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
)

// IsRetryable reports whether the operation may succeed if attempted again
// unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
