//go:build integration

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fairshare/internal/testutil"
)

func TestPostgresStore_WindowsAndDay(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	l := newTestLedger(NewPostgresStore(db))
	ctx := context.Background()

	cutoff := testNow.Add(-10 * time.Minute).Truncate(time.Minute)
	appendAt(t, l, "v", 100, cutoff)
	appendAt(t, l, "v", 200, cutoff.Add(-time.Minute))
	appendAt(t, l, "w", 400, cutoff)
	appendAt(t, l, "w", 800, testNow.Add(-24*time.Hour))

	n, err := l.SenderCountSince(ctx, "v", cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sum, err := l.SenderPointsSince(ctx, "v", cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(100), sum)

	day, err := l.DayVolume(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(700), day)

	recent, err := l.SummarySince(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), recent.TotalTransactions)
	assert.Equal(t, int64(500), recent.TotalPoints)
}

func TestPostgresStore_SummaryListAndDuplicates(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	l := newTestLedger(NewPostgresStore(db))
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, &Transaction{ID: "tx_a", Sender: "a", Recipient: "Alice", Points: 100}))
	require.NoError(t, l.Append(ctx, &Transaction{ID: "tx_b", Sender: "b", Recipient: "Alice", Points: 60000,
		Flagged: true, RiskLevel: RiskHigh, Reason: "Exceeds daily limit", Rule: "daily_limit"}))
	assert.ErrorIs(t, l.Append(ctx, &Transaction{ID: "tx_a", Sender: "a", Recipient: "Alice", Points: 1}), ErrDuplicateID)

	s, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TotalTransactions)
	assert.Equal(t, int64(1), s.FlaggedCount)
	assert.Equal(t, int64(60100), s.TotalPoints)
	assert.Equal(t, int64(1), s.ByRiskLevel[RiskHigh])

	received, err := l.ReceivedByRecipient(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Alice": 100}, received)

	rows, err := l.List(ctx, Filter{FlaggedOnly: true}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "daily_limit", rows[0].Rule)
	assert.Equal(t, singapore, rows[0].Timestamp.Location())

	page, err := l.List(ctx, Filter{}, 10, WithCursor(CursorFor(rows[0])))
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "tx_a", page[0].ID)
}
