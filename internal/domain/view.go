package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// HoldingView is a holding joined with the latest quote. Priced is false when
// the feed has no quote for the symbol yet; market fields are then zero.
type HoldingView struct {
	Holding
	Priced        bool            `json:"priced"`
	Price         decimal.Decimal `json:"price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioView is the merged, derived state published to consumers. It is
// computed at read time and never stored: cost basis stays ledger-owned,
// prices stay feed-owned.
type PortfolioView struct {
	UserID        string          `json:"user_id"`
	Version       int64           `json:"version"`
	Holdings      []HoldingView   `json:"holdings"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarketAsOf    time.Time       `json:"market_as_of"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewPortfolioView joins a portfolio with a market snapshot. Symbols present
// only in the snapshot never produce entries.
func NewPortfolioView(p Portfolio, m MarketSnapshot) PortfolioView {
	v := PortfolioView{
		UserID:     p.UserID,
		Version:    p.Version,
		Holdings:   make([]HoldingView, 0, len(p.Holdings)),
		MarketAsOf: m.AsOf,
		UpdatedAt:  p.UpdatedAt,
	}
	for _, h := range p.Holdings {
		hv := HoldingView{Holding: h, CostBasis: h.Quantity.Mul(h.AvgCost)}
		if q, ok := m.Quotes[h.Symbol]; ok {
			hv.Priced = true
			hv.Price = q.Price
			hv.MarketValue = h.Quantity.Mul(q.Price)
			hv.UnrealizedPnL = hv.MarketValue.Sub(hv.CostBasis)
		}
		v.Holdings = append(v.Holdings, hv)
		v.TotalValue = v.TotalValue.Add(hv.MarketValue)
		v.TotalCost = v.TotalCost.Add(hv.CostBasis)
		v.RealizedPnL = v.RealizedPnL.Add(h.RealizedPnL)
		v.UnrealizedPnL = v.UnrealizedPnL.Add(hv.UnrealizedPnL)
	}
	sort.Slice(v.Holdings, func(i, j int) bool { return v.Holdings[i].Symbol < v.Holdings[j].Symbol })
	return v
}
