package port

import (
	"context"

	"github.com/example/portfolio-ledger/internal/domain"
)

// Ledger is the durable, per-user store of portfolio documents and the
// append-only transaction log. The engine assumes at-least-once delivery on
// the change stream and no server-side transactions beyond the
// compare-and-write contract.
type Ledger interface {
	// Load returns the current portfolio; an unknown user gets an empty
	// portfolio at version 0.
	Load(ctx context.Context, userID string) (domain.Portfolio, error)

	// Write persists p only if the stored version still equals
	// expectedVersion, bumping the version and appending tx to the log in
	// the same step. Returns domain.ErrVersionConflict on a stale version
	// and domain.ErrDuplicateTransaction when tx.ID was already logged.
	Write(ctx context.Context, p domain.Portfolio, expectedVersion int64, tx domain.Transaction) error

	// Subscribe streams portfolio changes for one user, replaying the
	// current state first. The channel closes when ctx is cancelled.
	Subscribe(ctx context.Context, userID string) (<-chan domain.Portfolio, error)

	// Transactions returns the newest entries of the user's log, most
	// recent first.
	Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}
