package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/portfolio-ledger/internal/domain"
	"github.com/example/portfolio-ledger/internal/port"
)

// Feed consumes quote messages from a kafka topic and maintains the merged
// market snapshot. Run must be started before the controller subscribes.
type Feed struct {
	reader *kafka.Reader
	logger *zap.Logger

	mu     sync.Mutex
	latest domain.MarketSnapshot
	subs   map[chan domain.MarketSnapshot]struct{}
}

var _ port.MarketFeed = (*Feed)(nil)

func NewFeed(brokers, topic, groupID string, logger *zap.Logger) *Feed {
	return &Feed{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  []string{brokers},
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
			MaxWait:  500 * time.Millisecond,
		}),
		logger: logger,
		latest: domain.NewMarketSnapshot(),
		subs:   make(map[chan domain.MarketSnapshot]struct{}),
	}
}

func (f *Feed) Run(ctx context.Context) error {
	defer f.reader.Close()
	for {
		m, err := f.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}
		var q domain.Quote
		if err := json.Unmarshal(m.Value, &q); err != nil {
			f.logger.Warn("bad quote message", zap.Error(err))
			continue
		}
		if q.Symbol == "" {
			f.logger.Warn("quote without symbol dropped")
			continue
		}
		if q.AsOf.IsZero() {
			q.AsOf = time.Now().UTC()
		}
		f.publish(q)
		f.logger.Debug("quote applied", zap.String("symbol", q.Symbol))
	}
}

func (f *Feed) publish(q domain.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = f.latest.Merge([]domain.Quote{q}, q.AsOf)
	for ch := range f.subs {
		select {
		case ch <- f.latest:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f.latest:
			default:
			}
		}
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
