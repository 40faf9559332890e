package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type SubmitTransactionRequest struct {
	// TransactionID is the idempotency key; generated when omitted.
	TransactionID string          `json:"transaction_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	At            time.Time       `json:"at"`
}

type SubmitTransactionResponse struct {
	TransactionID string    `json:"transaction_id"`
	Duplicate     bool      `json:"duplicate,omitempty"`
	Portfolio     Portfolio `json:"portfolio"`
}

type Holding struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Priced        bool            `json:"priced"`
	Price         decimal.Decimal `json:"price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

type Portfolio struct {
	UserID        string          `json:"user_id"`
	Version       int64           `json:"version"`
	Holdings      []Holding       `json:"holdings"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarketAsOf    time.Time       `json:"market_as_of"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

type MarketSnapshot struct {
	Quotes []Quote   `json:"quotes"`
	AsOf   time.Time `json:"as_of"`
}

type Transaction struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	At        time.Time       `json:"at"`
}

type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}
