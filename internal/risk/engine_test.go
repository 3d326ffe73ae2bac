package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type historyRow struct {
	sender string
	points int64
	at     time.Time
}

// sliceHistory is a History over an in-memory slice with the same
// inclusive-window semantics as the ledger stores.
type sliceHistory struct {
	rows   []historyRow
	sinces []time.Time
	err    error
}

func (h *sliceHistory) add(sender string, points int64, at time.Time) {
	h.rows = append(h.rows, historyRow{sender: sender, points: points, at: at.Truncate(time.Minute)})
}

func (h *sliceHistory) SenderCountSince(_ context.Context, sender string, since time.Time) (int, error) {
	h.sinces = append(h.sinces, since)
	if h.err != nil {
		return 0, h.err
	}
	n := 0
	for _, r := range h.rows {
		if r.sender == sender && !r.at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (h *sliceHistory) SenderPointsSince(_ context.Context, sender string, since time.Time) (int64, error) {
	h.sinces = append(h.sinces, since)
	if h.err != nil {
		return 0, h.err
	}
	var sum int64
	for _, r := range h.rows {
		if r.sender == sender && !r.at.Before(since) {
			sum += r.points
		}
	}
	return sum, nil
}

func (h *sliceHistory) DayVolume(_ context.Context, day time.Time) (int64, error) {
	if h.err != nil {
		return 0, h.err
	}
	y, m, d := day.Date()
	var sum int64
	for _, r := range h.rows {
		ry, rm, rd := r.at.In(day.Location()).Date()
		if ry == y && rm == m && rd == d {
			sum += r.points
		}
	}
	return sum, nil
}

func newTestEngine(h History) *Engine {
	return NewEngine(h, WithEngineClock(func() time.Time { return testNow }))
}

func newUnverifiedThresholds() Thresholds {
	return ComputeThresholds(profileAged("new", 5), DefaultPolicy(), testNow)
}

func oldCreatorThresholds() Thresholds {
	return ComputeThresholds(profileAged("creator", 400), DefaultPolicy(), testNow)
}

func TestEvaluate_ScenarioA_NewUserAboveFraud(t *testing.T) {
	e := newTestEngine(&sliceHistory{})
	th := newUnverifiedThresholds()
	require.Equal(t, int64(30000), th.Fraud)

	a, err := e.Evaluate(context.Background(), "newbie", 50000, th)
	require.NoError(t, err)

	assert.True(t, a.Flagged)
	assert.Equal(t, LevelHigh, a.Level)
	// The 10-minute value check (50000 >= 50000) runs after the fraud check and wins.
	assert.Equal(t, "window_value", a.Rule)
	assert.Equal(t, "Suspicious value in 10 minutes ($500.00)", a.Reason)
}

func TestEvaluate_ScenarioB_CreatorAboveSuspicious(t *testing.T) {
	e := newTestEngine(&sliceHistory{})
	th := oldCreatorThresholds()

	a, err := e.Evaluate(context.Background(), "star", 40000, th)
	require.NoError(t, err)

	assert.True(t, a.Flagged)
	assert.Equal(t, LevelMedium, a.Level)
	assert.Equal(t, "suspicious_threshold", a.Rule)
	assert.Equal(t, "Above suspicious threshold ($350.00)", a.Reason)
}

func TestEvaluate_ScenarioC_Spam(t *testing.T) {
	h := &sliceHistory{}
	for i := 0; i < 50; i++ {
		h.add("spammer", 10, testNow.Add(-time.Duration(i%9)*time.Minute))
	}
	e := newTestEngine(h)

	a, err := e.Evaluate(context.Background(), "spammer", 10, oldCreatorThresholds())
	require.NoError(t, err)

	assert.True(t, a.Flagged)
	assert.Equal(t, LevelHigh, a.Level)
	assert.Equal(t, "spam", a.Rule)
	assert.Equal(t, "Spam detected: 50 gifts in 10 minutes", a.Reason)
}

func TestEvaluate_ScenarioC_FortyNinePriorIsClean(t *testing.T) {
	h := &sliceHistory{}
	for i := 0; i < 49; i++ {
		h.add("spammer", 10, testNow)
	}
	e := newTestEngine(h)

	a, err := e.Evaluate(context.Background(), "spammer", 10, oldCreatorThresholds())
	require.NoError(t, err)
	assert.False(t, a.Flagged)
}

func TestEvaluate_ScenarioD_ExactlySuspiciousIsClean(t *testing.T) {
	e := newTestEngine(&sliceHistory{})
	th := newUnverifiedThresholds()

	a, err := e.Evaluate(context.Background(), "newbie", th.Suspicious, th)
	require.NoError(t, err)

	assert.False(t, a.Flagged)
	assert.Equal(t, LevelLow, a.Level)
	assert.Empty(t, a.Reason)
	assert.Empty(t, a.Rule)
}

func TestEvaluate_HourlyLimit(t *testing.T) {
	h := &sliceHistory{}
	// 55,000 spread 20..50 minutes ago: outside the 10-minute window, inside the hour.
	for i := 0; i < 11; i++ {
		h.add("steady", 5000, testNow.Add(-time.Duration(20+3*i)*time.Minute))
	}
	e := newTestEngine(h)

	a, err := e.Evaluate(context.Background(), "steady", 6000, newUnverifiedThresholds())
	require.NoError(t, err)

	assert.True(t, a.Flagged)
	assert.Equal(t, "Exceeds hourly limit", a.Reason)
	assert.Equal(t, LevelHigh, a.Level)
}

func TestEvaluate_HourlyLimitIsStrict(t *testing.T) {
	h := &sliceHistory{}
	h.add("steady", 30000, testNow.Add(-30*time.Minute))
	h.add("steady", 29000, testNow.Add(-40*time.Minute))
	e := newTestEngine(h)

	// 59,000 + 1,000 == 60,000 hourly limit: not exceeded.
	a, err := e.Evaluate(context.Background(), "steady", 1000, newUnverifiedThresholds())
	require.NoError(t, err)
	assert.False(t, a.Flagged)
}

func TestEvaluate_DailyLimitCountsAllSenders(t *testing.T) {
	h := &sliceHistory{}
	h.add("someone_else", 299000, testNow.Add(-3*time.Hour))
	h.add("someone_else", 400000, testNow.Add(-30*time.Hour)) // yesterday
	e := newTestEngine(h)

	a, err := e.Evaluate(context.Background(), "innocent", 2000, newUnverifiedThresholds())
	require.NoError(t, err)

	assert.True(t, a.Flagged)
	assert.Equal(t, "daily_limit", a.Rule)
	assert.Equal(t, "Exceeds daily limit", a.Reason)
}

func TestEvaluate_LastTrippedCheckWins(t *testing.T) {
	h := &sliceHistory{}
	h.add("other", 850000, testNow.Add(-2*time.Hour))
	e := newTestEngine(h)
	th := oldCreatorThresholds()

	// Above suspicious (medium) and over the daily limit (high): daily runs last.
	a, err := e.Evaluate(context.Background(), "star", 36000, th)
	require.NoError(t, err)

	assert.Equal(t, LevelHigh, a.Level)
	assert.Equal(t, "Exceeds daily limit", a.Reason)
}

func TestEvaluate_WindowCutoffsAreMinuteTruncated(t *testing.T) {
	h := &sliceHistory{}
	e := newTestEngine(h)

	_, err := e.Evaluate(context.Background(), "v", 10, oldCreatorThresholds())
	require.NoError(t, err)

	tenMin := testNow.Add(-10 * time.Minute).Truncate(time.Minute)
	hour := testNow.Add(-time.Hour).Truncate(time.Minute)
	assert.Equal(t, []time.Time{tenMin, tenMin, hour}, h.sinces)
}

func TestEvaluate_RowAtCutoffIsInsideWindow(t *testing.T) {
	h := &sliceHistory{}
	cutoff := testNow.Add(-10 * time.Minute).Truncate(time.Minute)
	h.add("edge", 49000, cutoff)
	h.add("edge", 40000, cutoff.Add(-time.Minute))
	e := newTestEngine(h)

	a, err := e.Evaluate(context.Background(), "edge", 1000, oldCreatorThresholds())
	require.NoError(t, err)

	// 49,000 at the cutoff counts; the row a minute earlier does not.
	assert.Equal(t, "window_value", a.Rule)
	assert.Equal(t, "Suspicious value in 10 minutes ($500.00)", a.Reason)
}

func TestEvaluate_HistoryErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	e := newTestEngine(&sliceHistory{err: boom})

	_, err := e.Evaluate(context.Background(), "v", 10, oldCreatorThresholds())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "spam")
}

func TestEvaluate_CustomChecks(t *testing.T) {
	e := NewEngine(&sliceHistory{}, WithChecks(&ThresholdCheck{}))

	a, err := e.Evaluate(context.Background(), "v", 1_000_000, oldCreatorThresholds())
	require.NoError(t, err)
	assert.Equal(t, "fraud_threshold", a.Rule)
	assert.Equal(t, "Above fraud threshold ($875.00)", a.Reason)
}
