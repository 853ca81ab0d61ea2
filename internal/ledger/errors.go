package ledger

import "errors"

var (
	// ErrInsufficientFunds is a normal business outcome: the conditional
	// decrement matched no row because the balance could not cover the
	// amount. Callers branch on it, nothing is logged as a fault.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound means the referenced account does not exist.
	// This is a precondition failure, not a balance problem.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateEntry means an entry with the same idempotency key was
	// already recorded; the operation was a no-op.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrInvalidAmount rejects zero or negative amounts before they reach
	// the store.
	ErrInvalidAmount = errors.New("amount must be positive")
)
