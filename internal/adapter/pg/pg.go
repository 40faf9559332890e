package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/portfolio-ledger/internal/domain"
	"github.com/example/portfolio-ledger/internal/port"
)

var _ port.Ledger = (*PgLedger)(nil)

// notifyChannel carries the user id of every accepted write so that
// subscribers can reload only their own document.
const notifyChannel = "portfolio_changes"

type PgLedger struct {
	pool *pgxpool.Pool
}

// call Close when finished working with the database.
func NewPgLedger(ctx context.Context, dsn string) (*PgLedger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgLedger{pool: pool}, nil
}

func (p *PgLedger) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgLedger) Load(ctx context.Context, userID string) (domain.Portfolio, error) {
	var doc []byte
	var version int64
	err := p.pool.QueryRow(ctx, `
SELECT doc, version FROM portfolios WHERE user_id = $1
`, userID).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewPortfolio(userID), nil
	}
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("pg: load portfolio: %w", err)
	}
	var out domain.Portfolio
	if err := json.Unmarshal(doc, &out); err != nil {
		return domain.Portfolio{}, fmt.Errorf("pg: decode portfolio: %w", err)
	}
	out.UserID = userID
	out.Version = version
	return out, nil
}

// Write appends the transaction and swaps the portfolio document in one
// database transaction. The version predicate makes the write a
// compare-and-swap; the log's primary key makes it idempotent per tx ID.
func (p *PgLedger) Write(ctx context.Context, pf domain.Portfolio, expectedVersion int64, tx domain.Transaction) error {
	stored := pf
	stored.Version = expectedVersion + 1
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("pg: encode portfolio: %w", err)
	}

	dbtx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer dbtx.Rollback(ctx)

	res, err := dbtx.Exec(ctx, `
INSERT INTO transactions(id, user_id, symbol, side, quantity, unit_price, at)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`, tx.ID, tx.UserID, tx.Symbol, string(tx.Side), tx.Quantity.String(), tx.UnitPrice.String(), tx.At)
	if err != nil {
		return fmt.Errorf("pg: append transaction: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrDuplicateTransaction
	}

	if expectedVersion == 0 {
		res, err = dbtx.Exec(ctx, `
INSERT INTO portfolios(user_id, doc, version, updated_at)
VALUES($1,$2,1,NOW())
ON CONFLICT (user_id) DO NOTHING
`, pf.UserID, doc)
	} else {
		res, err = dbtx.Exec(ctx, `
UPDATE portfolios
SET doc = $2, version = version + 1, updated_at = NOW()
WHERE user_id = $1 AND version = $3
`, pf.UserID, doc, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("pg: write portfolio: %w", err)
	}
	if res.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	if _, err := dbtx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, pf.UserID); err != nil {
		return fmt.Errorf("pg: notify: %w", err)
	}
	return dbtx.Commit(ctx)
}

// Subscribe holds a dedicated connection on LISTEN and reloads the document
// whenever a notification for this user arrives. Current state is delivered
// before any notification is waited on.
func (p *PgLedger) Subscribe(ctx context.Context, userID string) (<-chan domain.Portfolio, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: acquire listener conn: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pg: listen: %w", err)
	}

	ch := make(chan domain.Portfolio, 1)
	go func() {
		defer close(ch)
		defer conn.Release()

		current, err := p.Load(ctx, userID)
		if err == nil {
			select {
			case ch <- current:
			case <-ctx.Done():
				return
			}
		}
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			if n.Payload != userID {
				continue
			}
			pf, err := p.Load(ctx, userID)
			if err != nil {
				continue
			}
			select {
			case ch <- pf:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *PgLedger) Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, symbol, side, quantity::text, unit_price::text, at
FROM transactions
WHERE user_id = $1
ORDER BY at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: query transactions: %w", err)
	}
	defer rows.Close()

	var res []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var side, qty, price string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &side, &qty, &price, &t.At); err != nil {
			return nil, fmt.Errorf("pg: scan transaction: %w", err)
		}
		t.Side = domain.Side(side)
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("pg: bad quantity %q: %w", qty, err)
		}
		if t.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("pg: bad unit price %q: %w", price, err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
