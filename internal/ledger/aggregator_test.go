package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/portfolio-ledger/internal/domain"
)

func dec(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

func tx(side domain.Side, qty, price int64) domain.Transaction {
	return domain.Transaction{
		ID:        "tx-test",
		UserID:    "u1",
		Symbol:    "AAPL",
		Side:      side,
		Quantity:  dec(qty),
		UnitPrice: dec(price),
		At:        time.Now(),
	}
}

func holding(t *testing.T, p domain.Portfolio, symbol string) domain.Holding {
	t.Helper()
	h, ok := p.Holdings[symbol]
	if !ok {
		t.Fatalf("expected holding for %s, got none", symbol)
	}
	return h
}

func TestBuyIntoEmptyPortfolio(t *testing.T) {
	p, err := Apply(domain.NewPortfolio("u1"), tx(domain.Buy, 10, 100))
	if err != nil {
		t.Fatalf("apply buy: %v", err)
	}
	h := holding(t, p, "AAPL")
	if !h.Quantity.Equal(dec(10)) || !h.AvgCost.Equal(dec(100)) {
		t.Fatalf("unexpected holding: %+v", h)
	}
}

func TestBuyAveragesCost(t *testing.T) {
	p, err := Apply(domain.NewPortfolio("u1"), tx(domain.Buy, 10, 100))
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}
	p, err = Apply(p, tx(domain.Buy, 10, 200))
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}
	h := holding(t, p, "AAPL")
	if !h.Quantity.Equal(dec(20)) || !h.AvgCost.Equal(dec(150)) {
		t.Fatalf("expected qty 20 avg 150, got %+v", h)
	}
}

func TestSellRealizesPnLAndKeepsBasis(t *testing.T) {
	p := domain.NewPortfolio("u1")
	p.Holdings["AAPL"] = domain.Holding{Symbol: "AAPL", Quantity: dec(20), AvgCost: dec(150)}

	p, err := Apply(p, tx(domain.Sell, 5, 180))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	h := holding(t, p, "AAPL")
	if !h.Quantity.Equal(dec(15)) {
		t.Fatalf("expected qty 15, got %s", h.Quantity)
	}
	if !h.AvgCost.Equal(dec(150)) {
		t.Fatalf("sell must not move avg cost, got %s", h.AvgCost)
	}
	if !h.RealizedPnL.Equal(dec(150)) {
		t.Fatalf("expected realized PnL 150, got %s", h.RealizedPnL)
	}
}

func TestSellOverPositionFailsUnchanged(t *testing.T) {
	p := domain.NewPortfolio("u1")
	p.Holdings["AAPL"] = domain.Holding{Symbol: "AAPL", Quantity: dec(15), AvgCost: dec(150)}

	got, err := Apply(p, tx(domain.Sell, 20, 180))
	var ih *domain.InsufficientHoldingsError
	if !errors.As(err, &ih) {
		t.Fatalf("expected InsufficientHoldingsError, got %v", err)
	}
	if ih.Symbol != "AAPL" || !ih.Requested.Equal(dec(20)) || !ih.Available.Equal(dec(15)) {
		t.Fatalf("error detail mismatch: %+v", ih)
	}
	h := holding(t, got, "AAPL")
	if !h.Quantity.Equal(dec(15)) || !h.AvgCost.Equal(dec(150)) {
		t.Fatalf("portfolio changed on failed sell: %+v", h)
	}
}

func TestSellToZeroClearsBasis(t *testing.T) {
	p := domain.NewPortfolio("u1")
	p.Holdings["AAPL"] = domain.Holding{Symbol: "AAPL", Quantity: dec(10), AvgCost: dec(120)}

	p, err := Apply(p, tx(domain.Sell, 10, 130))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	h := holding(t, p, "AAPL")
	if !h.Quantity.IsZero() {
		t.Fatalf("expected flat position, got %s", h.Quantity)
	}
	if !h.AvgCost.IsZero() {
		t.Fatalf("flat position must carry zero basis, got %s", h.AvgCost)
	}
	if !h.RealizedPnL.Equal(dec(100)) {
		t.Fatalf("expected realized PnL 100, got %s", h.RealizedPnL)
	}
}

// Two buys in either order match one merged buy; an interleaved sell breaks
// that equivalence because it realizes PnL against the basis at sale time.
func TestBuySequenceAssociativity(t *testing.T) {
	a, _ := Apply(domain.NewPortfolio("u1"), tx(domain.Buy, 10, 100))
	a, _ = Apply(a, tx(domain.Buy, 30, 200))

	b, _ := Apply(domain.NewPortfolio("u1"), tx(domain.Buy, 30, 200))
	b, _ = Apply(b, tx(domain.Buy, 10, 100))

	merged, _ := Apply(domain.NewPortfolio("u1"), domain.Transaction{
		ID: "tx-merged", UserID: "u1", Symbol: "AAPL", Side: domain.Buy,
		Quantity: dec(40), UnitPrice: decimal.NewFromInt(175), At: time.Now(),
	})

	for name, p := range map[string]domain.Portfolio{"ab": a, "ba": b, "merged": merged} {
		h := holding(t, p, "AAPL")
		if !h.Quantity.Equal(dec(40)) || !h.AvgCost.Equal(dec(175)) {
			t.Fatalf("%s: expected qty 40 avg 175, got %+v", name, h)
		}
	}

	withSell, _ := Apply(domain.NewPortfolio("u1"), tx(domain.Buy, 10, 100))
	withSell, _ = Apply(withSell, tx(domain.Sell, 5, 150))
	withSell, _ = Apply(withSell, tx(domain.Buy, 30, 200))
	h := holding(t, withSell, "AAPL")
	if h.AvgCost.Equal(dec(175)) {
		t.Fatalf("interleaved sell should break buy-merge equivalence, got avg %s", h.AvgCost)
	}
	if !h.Quantity.Equal(dec(35)) {
		t.Fatalf("expected qty 35, got %s", h.Quantity)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	p := domain.NewPortfolio("u1")
	p.Holdings["AAPL"] = domain.Holding{Symbol: "AAPL", Quantity: dec(10), AvgCost: dec(100)}

	if _, err := Apply(p, tx(domain.Buy, 10, 200)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	h := holding(t, p, "AAPL")
	if !h.Quantity.Equal(dec(10)) || !h.AvgCost.Equal(dec(100)) {
		t.Fatalf("input portfolio mutated: %+v", h)
	}
}

func TestAverageCostStaysExactOverManyBuys(t *testing.T) {
	// 100.07 is not representable in binary floating point; recomputing the
	// weighted average thousands of times must not drift off it.
	price := decimal.RequireFromString("100.07")
	p := domain.NewPortfolio("u1")
	var err error
	for i := 0; i < 5000; i++ {
		buy := domain.Transaction{
			ID: "tx-test", UserID: "u1", Symbol: "AAPL", Side: domain.Buy,
			Quantity: dec(3), UnitPrice: price, At: time.Now(),
		}
		if p, err = Apply(p, buy); err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
	}
	h := holding(t, p, "AAPL")
	if !h.AvgCost.Equal(price) {
		t.Fatalf("expected exact avg %s after 5000 buys, got %s", price, h.AvgCost)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		tx   domain.Transaction
	}{
		{"zero quantity", tx(domain.Buy, 0, 100)},
		{"negative quantity", tx(domain.Buy, -5, 100)},
		{"zero price", tx(domain.Buy, 10, 0)},
		{"negative price", tx(domain.Sell, 10, -1)},
		{"missing symbol", domain.Transaction{Side: domain.Buy, Quantity: dec(1), UnitPrice: dec(1)}},
		{"bad side", domain.Transaction{Symbol: "AAPL", Side: "SHORT", Quantity: dec(1), UnitPrice: dec(1)}},
		{"fractional quantity", domain.Transaction{Symbol: "AAPL", Side: domain.Buy,
			Quantity: decimal.RequireFromString("1.5"), UnitPrice: dec(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(domain.NewPortfolio("u1"), tc.tx)
			var ve *domain.InvalidTransactionError
			if !errors.As(err, &ve) {
				t.Fatalf("expected InvalidTransactionError, got %v", err)
			}
		})
	}
}
