package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert would violate a unique
	// constraint (e.g. a second record for the same provider task id).
	ErrDuplicate = errors.New("record already exists")

	// ErrUpdateFailed is returned when an update cannot be applied.
	ErrUpdateFailed = errors.New("update failed")

	// ErrLedgerRecordNotFound indicates that no ledger record exists for
	// the given provider task id.
	ErrLedgerRecordNotFound = fmt.Errorf("%w: ledger record", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
