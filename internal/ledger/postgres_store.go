package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists the ledger in PostgreSQL.
// The schema lives in migrations/00001_create_transactions.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Append(ctx context.Context, tx *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, ts, sender, recipient, points, flagged, risk_level, reason, rule)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		tx.ID,
		tx.Timestamp,
		tx.Sender,
		tx.Recipient,
		tx.Points,
		tx.Flagged,
		tx.RiskLevel,
		tx.Reason,
		tx.Rule,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) SenderCountSince(ctx context.Context, sender string, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions WHERE sender = $1 AND ts >= $2
	`, sender, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sender transactions: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) SenderPointsSince(ctx context.Context, sender string, since time.Time) (int64, error) {
	var sum int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM transactions WHERE sender = $1 AND ts >= $2
	`, sender, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum sender points: %w", err)
	}
	return sum, nil
}

func (p *PostgresStore) PointsBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var sum int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM transactions WHERE ts >= $1 AND ts < $2
	`, from, to).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum points: %w", err)
	}
	return sum, nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter, limit int, opts ...ListOption) ([]*Transaction, error) {
	o := applyListOpts(opts)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Sender != "" {
		where = append(where, "sender = "+arg(f.Sender))
	}
	if f.Recipient != "" {
		where = append(where, "recipient = "+arg(f.Recipient))
	}
	if f.FlaggedOnly {
		where = append(where, "flagged")
	}
	if o.cursor != nil {
		ts, id := arg(o.cursor.Timestamp), arg(o.cursor.TxID)
		where = append(where, fmt.Sprintf("(ts, id) < (%s, %s)", ts, id))
	}

	query := `SELECT id, ts, sender, recipient, points, flagged, risk_level, reason, rule FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if limit > 0 {
		query += " LIMIT " + arg(limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.Timestamp, &tx.Sender, &tx.Recipient, &tx.Points,
			&tx.Flagged, &tx.RiskLevel, &tx.Reason, &tx.Rule); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, &tx)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Summary(ctx context.Context) (*Summary, error) {
	return p.summarize(ctx, `
		SELECT risk_level, COUNT(*), COALESCE(SUM(points), 0), COUNT(*) FILTER (WHERE flagged)
		FROM transactions
		GROUP BY risk_level
	`)
}

func (p *PostgresStore) SummarySince(ctx context.Context, since time.Time) (*Summary, error) {
	return p.summarize(ctx, `
		SELECT risk_level, COUNT(*), COALESCE(SUM(points), 0), COUNT(*) FILTER (WHERE flagged)
		FROM transactions
		WHERE ts >= $1
		GROUP BY risk_level
	`, since)
}

func (p *PostgresStore) summarize(ctx context.Context, query string, args ...any) (*Summary, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	s := newSummary()
	for rows.Next() {
		var level string
		var count, points, flagged int64
		if err := rows.Scan(&level, &count, &points, &flagged); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.ByRiskLevel[level] = count
		s.TotalTransactions += count
		s.TotalPoints += points
		s.FlaggedCount += flagged
	}
	return s, rows.Err()
}

func (p *PostgresStore) ReceivedByRecipient(ctx context.Context) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT recipient, SUM(points) FROM transactions WHERE NOT flagged GROUP BY recipient
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum received points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var recipient string
		var sum int64
		if err := rows.Scan(&recipient, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan received points: %w", err)
		}
		out[recipient] = sum
	}
	return out, rows.Err()
}

func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
