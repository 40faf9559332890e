package in_memory

import (
	"context"
	"sync"
	"time"

	"github.com/example/portfolio-ledger/internal/domain"
	"github.com/example/portfolio-ledger/internal/port"
)

// Ledger keeps versioned portfolio documents and transaction logs in memory.
// Used by tests and by the server when no database is configured.
type Ledger struct {
	mu   sync.Mutex
	docs map[string]domain.Portfolio
	logs map[string][]domain.Transaction
	seen map[string]struct{}
	subs map[string]map[chan domain.Portfolio]struct{}
}

var _ port.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		docs: make(map[string]domain.Portfolio),
		logs: make(map[string][]domain.Transaction),
		seen: make(map[string]struct{}),
		subs: make(map[string]map[chan domain.Portfolio]struct{}),
	}
}

func (l *Ledger) Load(ctx context.Context, userID string) (domain.Portfolio, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(userID), nil
}

func (l *Ledger) loadLocked(userID string) domain.Portfolio {
	if p, ok := l.docs[userID]; ok {
		return p.Clone()
	}
	return domain.NewPortfolio(userID)
}

func (l *Ledger) Write(ctx context.Context, p domain.Portfolio, expectedVersion int64, tx domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var current int64
	if doc, ok := l.docs[p.UserID]; ok {
		current = doc.Version
	}
	if current != expectedVersion {
		return domain.ErrVersionConflict
	}
	if _, dup := l.seen[tx.ID]; dup {
		return domain.ErrDuplicateTransaction
	}

	stored := p.Clone()
	stored.Version = expectedVersion + 1
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	l.docs[p.UserID] = stored
	l.logs[p.UserID] = append(l.logs[p.UserID], tx)
	l.seen[tx.ID] = struct{}{}

	for ch := range l.subs[p.UserID] {
		deliver(ch, stored.Clone())
	}
	return nil
}

func (l *Ledger) Subscribe(ctx context.Context, userID string) (<-chan domain.Portfolio, error) {
	l.mu.Lock()
	ch := make(chan domain.Portfolio, 1)
	if l.subs[userID] == nil {
		l.subs[userID] = make(map[chan domain.Portfolio]struct{})
	}
	l.subs[userID][ch] = struct{}{}
	// replay current state before any further deltas
	ch <- l.loadLocked(userID)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs[userID], ch)
		l.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	log := l.logs[userID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	out := make([]domain.Transaction, 0, limit)
	for i := len(log) - 1; i >= len(log)-limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

// deliver pushes latest-wins: a slow subscriber loses intermediate states,
// never blocks the writer. All sends happen under the ledger mutex so the
// drain-then-send pair cannot race another sender.
func deliver(ch chan domain.Portfolio, p domain.Portfolio) {
	select {
	case ch <- p:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}
