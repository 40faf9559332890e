package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/portfolio-ledger/internal/domain"
	"github.com/example/portfolio-ledger/internal/port"
)

// RedisFeed reads the market mapping the external price producer maintains in
// a redis hash and follows its refresh signal on a pub/sub channel. The
// engine never writes either key.
type RedisFeed struct {
	client  *redis.Client
	hashKey string
	channel string
}

var _ port.MarketFeed = (*RedisFeed)(nil)

func NewRedisFeed(addr, password string, db int) *RedisFeed {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisFeed{
		client:  rdb,
		hashKey: "market:quotes",
		channel: "market:updates",
	}
}

func (f *RedisFeed) Close() error { return f.client.Close() }

func (f *RedisFeed) Snapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	fields, err := f.client.HGetAll(ctx, f.hashKey).Result()
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("redis: read market hash: %w", err)
	}
	snap := domain.NewMarketSnapshot()
	for sym, raw := range fields {
		var q domain.Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			continue
		}
		if q.Symbol == "" {
			q.Symbol = sym
		}
		snap.Quotes[sym] = q
		if q.AsOf.After(snap.AsOf) {
			snap.AsOf = q.AsOf
		}
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now()
	}
	return snap, nil
}

func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan domain.MarketSnapshot, error) {
	sub := f.client.Subscribe(ctx, f.channel)
	// force the subscription before returning so no push is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", f.channel, err)
	}

	ch := make(chan domain.MarketSnapshot, 1)
	go func() {
		defer close(ch)
		defer sub.Close()

		if snap, err := f.Snapshot(ctx); err == nil {
			select {
			case ch <- snap:
			case <-ctx.Done():
				return
			}
		}
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snap, err := f.Snapshot(ctx)
				if err != nil {
					continue
				}
				select {
				case ch <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
