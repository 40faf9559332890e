package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// Precondition failures; the caller must re-authenticate, not retry.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnverified      = errors.New("user not verified")

	// ErrVersionConflict is returned by a ledger store when the expected
	// version no longer matches. The controller retries it internally;
	// callers see ErrConflict once retries are exhausted.
	ErrVersionConflict = errors.New("version conflict")
	ErrConflict        = errors.New("concurrent update conflict")

	// ErrDuplicateTransaction marks a transaction ID already present in the
	// append-only log; the submission is a no-op.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// Transient I/O failures, safe for the caller to retry because writes
	// are version-guarded.
	ErrTimeout     = errors.New("operation timed out")
	ErrUnavailable = errors.New("store unavailable")
)

// InvalidTransactionError rejects a transaction that fails validation. Never
// retried; surfaced verbatim for user correction.
type InvalidTransactionError struct {
	Reason string
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s", e.Reason)
}

// InsufficientHoldingsError rejects a sell that exceeds the open position.
// Carries enough detail for the UI to explain the failure.
type InsufficientHoldingsError struct {
	Symbol    string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings in %s: requested %s, available %s",
		e.Symbol, e.Requested, e.Available)
}
