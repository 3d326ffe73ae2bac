// Package ledger records every transfer attempt, clean or flagged.
//
// The ledger is append-only: rows are never updated or deleted. Risk
// windows are answered by scanning the live table on every call.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/fairshare/internal/idgen"
	"github.com/mbd888/fairshare/internal/pagination"
)

var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicateID        = errors.New("transaction id already recorded")
)

// Risk levels as stored.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Transaction is one ledger row.
type Transaction struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Points    int64     `json:"points"`
	Flagged   bool      `json:"flagged"`
	RiskLevel string    `json:"riskLevel"`
	Reason    string    `json:"reason"`
	Rule      string    `json:"rule,omitempty"`
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Sender      string
	Recipient   string
	FlaggedOnly bool
}

func (f Filter) match(tx *Transaction) bool {
	if f.Sender != "" && tx.Sender != f.Sender {
		return false
	}
	if f.Recipient != "" && tx.Recipient != f.Recipient {
		return false
	}
	if f.FlaggedOnly && !tx.Flagged {
		return false
	}
	return true
}

// Summary aggregates the whole ledger.
type Summary struct {
	TotalTransactions int64            `json:"totalTransactions"`
	FlaggedCount      int64            `json:"flaggedCount"`
	TotalPoints       int64            `json:"totalPoints"`
	ByRiskLevel       map[string]int64 `json:"byRiskLevel"`
}

// ListOption configures optional parameters for list queries.
type ListOption func(*listOpts)

type listOpts struct {
	cursor *pagination.Cursor
}

func applyListOpts(opts []ListOption) listOpts {
	var o listOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithCursor resumes a newest-first listing after c. A nil cursor starts
// from the newest row.
func WithCursor(c *pagination.Cursor) ListOption {
	return func(o *listOpts) { o.cursor = c }
}

// CursorFor returns the cursor that resumes a listing after tx.
func CursorFor(tx *Transaction) *pagination.Cursor {
	return &pagination.Cursor{Timestamp: tx.Timestamp, TxID: tx.ID}
}

// after reports whether tx sorts after the cursor in newest-first order.
func (o listOpts) after(tx *Transaction) bool {
	return o.cursor == nil || o.cursor.Follows(tx.Timestamp, tx.ID)
}

// Store persists ledger rows. Time bounds are inclusive at from and
// exclusive at to.
type Store interface {
	Append(ctx context.Context, tx *Transaction) error
	SenderCountSince(ctx context.Context, sender string, since time.Time) (int, error)
	SenderPointsSince(ctx context.Context, sender string, since time.Time) (int64, error)
	PointsBetween(ctx context.Context, from, to time.Time) (int64, error)
	List(ctx context.Context, f Filter, limit int, opts ...ListOption) ([]*Transaction, error)
	Summary(ctx context.Context) (*Summary, error)
	SummarySince(ctx context.Context, since time.Time) (*Summary, error)
	ReceivedByRecipient(ctx context.Context) (map[string]int64, error)
	Count(ctx context.Context) (int64, error)
}

// Ledger stamps and validates rows before they reach the store, and
// answers calendar-day questions in its time zone.
type Ledger struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over store. Timestamps are recorded in loc.
func New(store Store, loc *time.Location, opts ...Option) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	l := &Ledger{store: store, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location returns the ledger's time zone.
func (l *Ledger) Location() *time.Location { return l.loc }

// Now returns the current time in the ledger's zone.
func (l *Ledger) Now() time.Time { return l.now().In(l.loc) }

// Stamp converts t to a ledger timestamp: ledger zone, minute resolution.
func (l *Ledger) Stamp(t time.Time) time.Time {
	return t.In(l.loc).Truncate(time.Minute)
}

// Append validates tx, assigns an ID if missing, stamps the timestamp
// (now when zero) and records it.
func (l *Ledger) Append(ctx context.Context, tx *Transaction) error {
	if tx.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidTransaction)
	}
	if tx.Sender == "" || tx.Recipient == "" {
		return fmt.Errorf("%w: sender and recipient are required", ErrInvalidTransaction)
	}
	switch tx.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	case "":
		tx.RiskLevel = RiskLow
	default:
		return fmt.Errorf("%w: unknown risk level %q", ErrInvalidTransaction, tx.RiskLevel)
	}

	if tx.ID == "" {
		tx.ID = idgen.WithPrefix("tx_")
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = l.now()
	}
	tx.Timestamp = l.Stamp(tx.Timestamp)

	if err := l.store.Append(ctx, tx); err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// SenderCountSince counts rows from sender at or after since.
func (l *Ledger) SenderCountSince(ctx context.Context, sender string, since time.Time) (int, error) {
	return l.store.SenderCountSince(ctx, sender, since)
}

// SenderPointsSince sums points from sender at or after since.
func (l *Ledger) SenderPointsSince(ctx context.Context, sender string, since time.Time) (int64, error) {
	return l.store.SenderPointsSince(ctx, sender, since)
}

// DayVolume sums the points of every row, from any sender, on the calendar
// date of day in the ledger's zone.
func (l *Ledger) DayVolume(ctx context.Context, day time.Time) (int64, error) {
	start, end := l.dayBounds(day)
	return l.store.PointsBetween(ctx, start, end)
}

func (l *Ledger) dayBounds(day time.Time) (time.Time, time.Time) {
	d := day.In(l.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, l.loc)
	return start, start.AddDate(0, 0, 1)
}

// List returns rows newest first, timestamps in the ledger's zone.
func (l *Ledger) List(ctx context.Context, f Filter, limit int, opts ...ListOption) ([]*Transaction, error) {
	rows, err := l.store.List(ctx, f, limit, opts...)
	if err != nil {
		return nil, err
	}
	for _, tx := range rows {
		tx.Timestamp = tx.Timestamp.In(l.loc)
	}
	return rows, nil
}

// ParseCursor decodes a client cursor into the ledger zone. It fails with
// pagination.ErrInvalidCursor for anything Encode did not produce.
func (l *Ledger) ParseCursor(s string) (*pagination.Cursor, error) {
	return pagination.Decode(s, l.loc)
}

// Summary aggregates the whole ledger.
func (l *Ledger) Summary(ctx context.Context) (*Summary, error) {
	return l.store.Summary(ctx)
}

// SummarySince aggregates rows at or after since.
func (l *Ledger) SummarySince(ctx context.Context, since time.Time) (*Summary, error) {
	return l.store.SummarySince(ctx, since)
}

// ReceivedByRecipient sums clean-transfer points per recipient.
func (l *Ledger) ReceivedByRecipient(ctx context.Context) (map[string]int64, error) {
	return l.store.ReceivedByRecipient(ctx)
}

// Count returns the number of rows.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	return l.store.Count(ctx)
}

// newSummary returns a zeroed summary with every risk level present.
func newSummary() *Summary {
	return &Summary{ByRiskLevel: map[string]int64{RiskLow: 0, RiskMedium: 0, RiskHigh: 0}}
}
