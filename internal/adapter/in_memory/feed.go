package in_memory

import (
	"context"
	"sync"
	"time"

	"github.com/example/portfolio-ledger/internal/domain"
	"github.com/example/portfolio-ledger/internal/port"
)

// Feed is a pushable market feed: tests and local runs inject quotes through
// Push and the engine consumes them like any other feed.
type Feed struct {
	mu     sync.Mutex
	latest domain.MarketSnapshot
	subs   map[chan domain.MarketSnapshot]struct{}
}

var _ port.MarketFeed = (*Feed)(nil)

func NewFeed() *Feed {
	return &Feed{
		latest: domain.NewMarketSnapshot(),
		subs:   make(map[chan domain.MarketSnapshot]struct{}),
	}
}

// Push layers quotes over the latest snapshot and broadcasts the result.
func (f *Feed) Push(quotes ...domain.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = f.latest.Merge(quotes, time.Now())
	for ch := range f.subs {
		deliverSnapshot(ch, f.latest)
	}
}

func (f *Feed) Snapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *Feed) Subscribe(ctx context.Context) (<-chan domain.MarketSnapshot, error) {
	f.mu.Lock()
	ch := make(chan domain.MarketSnapshot, 1)
	f.subs[ch] = struct{}{}
	ch <- f.latest
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func deliverSnapshot(ch chan domain.MarketSnapshot, s domain.MarketSnapshot) {
	select {
	case ch <- s:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
