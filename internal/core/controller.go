// Package core implements the synchronization controller: the bridge between
// the pure aggregator and live, possibly-concurrent I/O against the ledger
// store and the market feed.
package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/portfolio-ledger/internal/domain"
	"github.com/example/portfolio-ledger/internal/ledger"
	"github.com/example/portfolio-ledger/internal/port"
)

const (
	// maxConflictRetries bounds the internal re-read/re-apply loop before a
	// version conflict is surfaced as ErrConflict.
	maxConflictRetries = 3

	defaultSubmitTimeout = 5 * time.Second
)

type Controller struct {
	store  port.Ledger
	feed   port.MarketFeed
	logger *zap.Logger

	submitTimeout time.Duration

	// latest market snapshot, replaced wholesale on every feed push
	market atomic.Pointer[domain.MarketSnapshot]

	mu      sync.Mutex
	userMus map[string]*sync.Mutex

	subMu sync.Mutex
	subs  map[chan domain.MarketSnapshot]struct{}
}

func NewController(store port.Ledger, feed port.MarketFeed, logger *zap.Logger) *Controller {
	return &Controller{
		store:         store,
		feed:          feed,
		logger:        logger,
		submitTimeout: defaultSubmitTimeout,
		userMus:       make(map[string]*sync.Mutex),
		subs:          make(map[chan domain.MarketSnapshot]struct{}),
	}
}

// Run owns the single upstream feed subscription and fans pushes out to all
// market subscribers. It returns when ctx is cancelled or the feed closes.
func (c *Controller) Run(ctx context.Context) error {
	if snap, err := c.feed.Snapshot(ctx); err == nil {
		c.market.Store(&snap)
	}
	updates, err := c.feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			// last received snapshot wins, no ordering needed beyond that
			c.market.Store(&snap)
			c.broadcast(snap)
		}
	}
}

func (c *Controller) broadcast(snap domain.MarketSnapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		deliverLatest(ch, snap)
	}
}

// SubmitTransaction reads the current portfolio, applies the transaction and
// writes the result under the version guard. Only version conflicts are
// retried; every other error passes through unchanged. Returns the merged
// view of the accepted state.
func (c *Controller) SubmitTransaction(ctx context.Context, ident domain.Identity, tx domain.Transaction) (domain.PortfolioView, error) {
	if err := ident.Check(); err != nil {
		return domain.PortfolioView{}, err
	}
	tx.UserID = ident.UserID
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.At.IsZero() {
		tx.At = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	// Serialize per user: submission N+1 must not read state until N's write
	// has been accepted or rejected.
	mu := c.userMu(ident.UserID)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		current, err := c.store.Load(ctx, ident.UserID)
		if err != nil {
			return domain.PortfolioView{}, c.transient(ctx, err)
		}
		next, err := ledger.Apply(current, tx)
		if err != nil {
			// aggregator errors are terminal and the store stays unwritten
			return domain.PortfolioView{}, err
		}
		err = c.store.Write(ctx, next, current.Version, tx)
		switch {
		case err == nil:
			next.Version = current.Version + 1
			c.logger.Debug("transaction accepted",
				zap.String("user", ident.UserID),
				zap.String("tx", tx.ID),
				zap.Int64("version", next.Version))
			return domain.NewPortfolioView(next, c.marketNow(ctx)), nil
		case errors.Is(err, domain.ErrVersionConflict):
			c.logger.Debug("version conflict, retrying",
				zap.String("user", ident.UserID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, domain.ErrDuplicateTransaction):
			// already applied once; report the current state, never
			// double-count
			view, verr := c.view(ctx, ident.UserID)
			if verr != nil {
				return domain.PortfolioView{}, verr
			}
			return view, domain.ErrDuplicateTransaction
		default:
			return domain.PortfolioView{}, c.transient(ctx, err)
		}
	}
	return domain.PortfolioView{}, domain.ErrConflict
}

// Portfolio returns the one-shot merged view for the HTTP read path.
func (c *Controller) Portfolio(ctx context.Context, ident domain.Identity) (domain.PortfolioView, error) {
	if err := ident.Check(); err != nil {
		return domain.PortfolioView{}, err
	}
	return c.view(ctx, ident.UserID)
}

// History reads the append-only transaction log, newest first.
func (c *Controller) History(ctx context.Context, ident domain.Identity, limit int) ([]domain.Transaction, error) {
	if err := ident.Check(); err != nil {
		return nil, err
	}
	txs, err := c.store.Transactions(ctx, ident.UserID, limit)
	if err != nil {
		return nil, c.transient(ctx, err)
	}
	return txs, nil
}

// Subscribe emits the merged view now and again on every ledger or market
// change for this user. Cancelling ctx releases both underlying streams; the
// returned channel then closes without a trailing emission.
func (c *Controller) Subscribe(ctx context.Context, ident domain.Identity) (<-chan domain.PortfolioView, error) {
	if err := ident.Check(); err != nil {
		return nil, err
	}
	ledgerCh, err := c.store.Subscribe(ctx, ident.UserID)
	if err != nil {
		return nil, c.transient(ctx, err)
	}
	marketCh := c.addMarketSub(ctx)

	out := make(chan domain.PortfolioView, 1)
	go func() {
		defer close(out)
		var (
			portfolio domain.Portfolio
			seeded    bool
		)
		emit := func() {
			if !seeded {
				return
			}
			deliverView(out, domain.NewPortfolioView(portfolio, c.marketNow(ctx)))
		}
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-ledgerCh:
				if !ok {
					return
				}
				portfolio = p
				seeded = true
				emit()
			case _, ok := <-marketCh:
				if !ok {
					return
				}
				emit()
			}
		}
	}()
	return out, nil
}

// Market returns the latest observed snapshot.
func (c *Controller) Market(ctx context.Context, ident domain.Identity) (domain.MarketSnapshot, error) {
	if err := ident.Check(); err != nil {
		return domain.MarketSnapshot{}, err
	}
	return c.marketNow(ctx), nil
}

// MarketAsOf reports the timestamp of the snapshot a merged view built right
// now would use. Callers holding a cached view compare against it to decide
// whether the cache is still current.
func (c *Controller) MarketAsOf(ctx context.Context) time.Time {
	return c.marketNow(ctx).AsOf
}

// SubscribeMarket fans the single upstream feed subscription out to any
// number of consumers, replaying the latest snapshot first.
func (c *Controller) SubscribeMarket(ctx context.Context, ident domain.Identity) (<-chan domain.MarketSnapshot, error) {
	if err := ident.Check(); err != nil {
		return nil, err
	}
	return c.addMarketSub(ctx), nil
}

func (c *Controller) addMarketSub(ctx context.Context) chan domain.MarketSnapshot {
	ch := make(chan domain.MarketSnapshot, 1)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	if snap := c.market.Load(); snap != nil {
		ch <- *snap
	}
	c.subMu.Unlock()

	go func() {
		<-ctx.Done()
		c.subMu.Lock()
		delete(c.subs, ch)
		c.subMu.Unlock()
		close(ch)
	}()
	return ch
}

func (c *Controller) view(ctx context.Context, userID string) (domain.PortfolioView, error) {
	p, err := c.store.Load(ctx, userID)
	if err != nil {
		return domain.PortfolioView{}, c.transient(ctx, err)
	}
	return domain.NewPortfolioView(p, c.marketNow(ctx)), nil
}

// marketNow returns the last pushed snapshot, asking the feed directly only
// before the first push has been observed.
func (c *Controller) marketNow(ctx context.Context) domain.MarketSnapshot {
	if snap := c.market.Load(); snap != nil {
		return *snap
	}
	if snap, err := c.feed.Snapshot(ctx); err == nil {
		c.market.Store(&snap)
		return snap
	}
	return domain.NewMarketSnapshot()
}

func (c *Controller) userMu(userID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.userMus[userID]
	if !ok {
		mu = &sync.Mutex{}
		c.userMus[userID] = mu
	}
	return mu
}

// transient maps I/O failures onto the retryable part of the error taxonomy.
func (c *Controller) transient(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Warn("store unavailable", zap.Error(err))
	return domain.ErrUnavailable
}

func deliverView(ch chan domain.PortfolioView, v domain.PortfolioView) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func deliverLatest(ch chan domain.MarketSnapshot, s domain.MarketSnapshot) {
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
