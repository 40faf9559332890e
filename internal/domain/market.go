package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the feed-owned last traded price of one instrument. Read-only to
// the engine.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// MarketSnapshot is the process-wide symbol -> quote mapping. It is replaced
// wholesale on every feed push, never mutated field by field, so readers may
// hold a snapshot without locking.
type MarketSnapshot struct {
	Quotes map[string]Quote `json:"quotes"`
	AsOf   time.Time        `json:"as_of"`
}

func NewMarketSnapshot() MarketSnapshot {
	return MarketSnapshot{Quotes: make(map[string]Quote)}
}

// Merge returns a new snapshot with the given quotes layered over the
// receiver. The receiver is left untouched.
func (s MarketSnapshot) Merge(quotes []Quote, asOf time.Time) MarketSnapshot {
	out := MarketSnapshot{Quotes: make(map[string]Quote, len(s.Quotes)+len(quotes)), AsOf: asOf}
	for sym, q := range s.Quotes {
		out.Quotes[sym] = q
	}
	for _, q := range quotes {
		out.Quotes[q.Symbol] = q
	}
	return out
}
