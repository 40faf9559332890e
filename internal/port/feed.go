package port

import (
	"context"

	"github.com/example/portfolio-ledger/internal/domain"
)

// MarketFeed is the read-only boundary to the external price producer. The
// engine never writes through it; cadence and transport belong to the feed.
type MarketFeed interface {
	// Snapshot returns the latest known symbol -> quote mapping.
	Snapshot(ctx context.Context) (domain.MarketSnapshot, error)

	// Subscribe streams refreshed snapshots. A single subscription is held
	// by the synchronization controller and fanned out from there; the
	// channel closes when ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan domain.MarketSnapshot, error)
}
