package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a user's open position in one instrument. AvgCost is the
// weighted-average purchase price across all open buys; it is never derived
// from market price. A flat position (zero quantity) carries a zero AvgCost.
type Holding struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Portfolio is one user's holdings keyed by symbol, plus the version counter
// used for compare-and-write.
type Portfolio struct {
	UserID    string             `json:"user_id"`
	Holdings  map[string]Holding `json:"holdings"`
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewPortfolio(userID string) Portfolio {
	return Portfolio{UserID: userID, Holdings: make(map[string]Holding)}
}

// Clone returns a deep copy so that callers can mutate the result without
// touching the original.
func (p Portfolio) Clone() Portfolio {
	out := p
	out.Holdings = make(map[string]Holding, len(p.Holdings))
	for sym, h := range p.Holdings {
		out.Holdings[sym] = h
	}
	return out
}
