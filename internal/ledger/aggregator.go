// Package ledger holds the pure cost-basis accounting rule. It knows nothing
// about storage or the market feed; Apply is deterministic and side-effect
// free.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/example/portfolio-ledger/internal/domain"
)

// Apply merges one transaction into a portfolio and returns the next
// portfolio state. The input portfolio is never mutated; on error it is
// returned unchanged (no partial application).
//
// BUY moves the average cost to the quantity-weighted mean of the old
// position and the new lot. SELL realizes PnL against the average cost and
// leaves the basis of the remaining shares unchanged; a position sold flat
// has its basis cleared.
func Apply(p domain.Portfolio, tx domain.Transaction) (domain.Portfolio, error) {
	if err := validate(tx); err != nil {
		return p, err
	}

	next := p.Clone()
	h := next.Holdings[tx.Symbol]
	h.Symbol = tx.Symbol

	switch tx.Side {
	case domain.Buy:
		newQty := h.Quantity.Add(tx.Quantity)
		oldCost := h.Quantity.Mul(h.AvgCost)
		newCost := oldCost.Add(tx.Quantity.Mul(tx.UnitPrice))
		h.AvgCost = newCost.Div(newQty)
		h.Quantity = newQty

	case domain.Sell:
		if tx.Quantity.GreaterThan(h.Quantity) {
			return p, &domain.InsufficientHoldingsError{
				Symbol:    tx.Symbol,
				Requested: tx.Quantity,
				Available: h.Quantity,
			}
		}
		h.RealizedPnL = h.RealizedPnL.Add(tx.Quantity.Mul(tx.UnitPrice.Sub(h.AvgCost)))
		h.Quantity = h.Quantity.Sub(tx.Quantity)
		if h.Quantity.IsZero() {
			h.AvgCost = decimal.Zero
		}
	}

	next.Holdings[tx.Symbol] = h
	next.UpdatedAt = tx.At
	return next, nil
}

func validate(tx domain.Transaction) error {
	switch {
	case tx.Symbol == "":
		return &domain.InvalidTransactionError{Reason: "symbol is required"}
	case tx.Side != domain.Buy && tx.Side != domain.Sell:
		return &domain.InvalidTransactionError{Reason: "side must be BUY or SELL"}
	case !tx.Quantity.IsPositive():
		return &domain.InvalidTransactionError{Reason: "quantity must be > 0"}
	case !tx.Quantity.IsInteger():
		return &domain.InvalidTransactionError{Reason: "quantity must be a whole number of shares"}
	case !tx.UnitPrice.IsPositive():
		return &domain.InvalidTransactionError{Reason: "unit price must be > 0"}
	}
	return nil
}
