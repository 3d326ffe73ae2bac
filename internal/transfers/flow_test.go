package transfers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fairshare/internal/ledger"
)

func appendAt(t *testing.T, f *fixture, ago time.Duration, points int64, level string, flagged bool) {
	t.Helper()
	err := f.ledger.Append(context.Background(), &ledger.Transaction{
		Timestamp: testNow.Add(-ago),
		Sender:    "viewer_1",
		Recipient: "Alice",
		Points:    points,
		RiskLevel: level,
		Flagged:   flagged,
	})
	require.NoError(t, err)
}

func TestFlow_EmptyWindowScoresFull(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Flow(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultFlowHours, r.WindowHours)
	assert.True(t, r.Since.Equal(testNow.Add(-24*time.Hour)))
	assert.Zero(t, r.Count)
	assert.Zero(t, r.AveragePoints)
	assert.Equal(t, 100.0, r.SuccessRate)
	assert.Equal(t, 100.0, r.RiskScore)
	assert.Equal(t, 100.0, r.FundSafetyScore)
	assert.NotNil(t, r.Alerts)
	assert.Empty(t, r.Alerts)
}

func TestFlow_Scores(t *testing.T) {
	f := newFixture(t)
	appendAt(t, f, 2*time.Hour, 1000, ledger.RiskLow, false)
	appendAt(t, f, 3*time.Hour, 1000, ledger.RiskLow, false)
	appendAt(t, f, 4*time.Hour, 2000, ledger.RiskMedium, true)
	appendAt(t, f, 5*time.Hour, 4000, ledger.RiskHigh, true)
	appendAt(t, f, 30*time.Hour, 900000, ledger.RiskLow, false)

	r, err := f.svc.Flow(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, int64(4), r.Count)
	assert.Equal(t, int64(8000), r.TotalPoints)
	assert.Equal(t, 2000.0, r.AveragePoints)
	assert.Equal(t, int64(2), r.FlaggedCount)
	assert.Equal(t, 50.0, r.SuccessRate)
	// 100 - (2*25 + 25)
	assert.Equal(t, 25.0, r.RiskScore)
	assert.Equal(t, 95.0, r.FundSafetyScore)
	assert.Empty(t, r.Alerts)
}

func TestFlow_WindowBounds(t *testing.T) {
	f := newFixture(t)
	appendAt(t, f, 30*time.Minute, 700, ledger.RiskLow, false)
	appendAt(t, f, 2*time.Hour, 300, ledger.RiskLow, false)

	r, err := f.svc.Flow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Count)
	assert.Equal(t, int64(700), r.TotalPoints)
	assert.Equal(t, 100.0, r.FundSafetyScore)

	for _, hours := range []int{-1, MaxFlowHours + 1} {
		_, err := f.svc.Flow(context.Background(), hours)
		assert.ErrorIs(t, err, ErrInvalidWindow, "hours=%d", hours)
	}
}

func TestAnalyzeFlow_Alerts(t *testing.T) {
	limits := DefaultFlowLimits()

	tests := []struct {
		name  string
		sum   ledger.Summary
		kinds []string
	}{
		{
			name:  "at every limit",
			sum:   ledger.Summary{TotalTransactions: 500, TotalPoints: 1_000_000},
			kinds: nil,
		},
		{
			name:  "flow over limit",
			sum:   ledger.Summary{TotalTransactions: 400, TotalPoints: 1_000_400},
			kinds: []string{AlertHighFlow},
		},
		{
			name:  "large average",
			sum:   ledger.Summary{TotalTransactions: 2, TotalPoints: 10_002},
			kinds: []string{AlertLargeAverage},
		},
		{
			name:  "everything",
			sum:   ledger.Summary{TotalTransactions: 501, TotalPoints: 3_000_000},
			kinds: []string{AlertHighFlow, AlertLargeAverage, AlertHighFrequency},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sum.ByRiskLevel = map[string]int64{ledger.RiskLow: tt.sum.TotalTransactions}
			r := analyzeFlow(&tt.sum, limits)

			var kinds []string
			for _, a := range r.Alerts {
				kinds = append(kinds, a.Kind)
				assert.NotEmpty(t, a.Message)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestAnalyzeFlow_RiskScoreFloorsAtZero(t *testing.T) {
	sum := &ledger.Summary{
		TotalTransactions: 4,
		FlaggedCount:      4,
		TotalPoints:       200000,
		ByRiskLevel:       map[string]int64{ledger.RiskHigh: 3, ledger.RiskMedium: 1},
	}
	r := analyzeFlow(sum, DefaultFlowLimits())

	assert.Zero(t, r.RiskScore)
	assert.Zero(t, r.SuccessRate)
	assert.Equal(t, 95.0, r.FundSafetyScore)
}

func TestHandler_Flow(t *testing.T) {
	r, f := newTestRouter(t)
	appendAt(t, f, time.Hour, 6000, ledger.RiskLow, false)

	w := do(r, http.MethodGet, "/v1/transfers/flow", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Flow FlowReport `json:"flow"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 24, body.Flow.WindowHours)
	assert.Equal(t, int64(1), body.Flow.Count)
	require.Len(t, body.Flow.Alerts, 1)
	assert.Equal(t, AlertLargeAverage, body.Flow.Alerts[0].Kind)

	for _, q := range []string{"abc", "0", "721"} {
		w := do(r, http.MethodGet, "/v1/transfers/flow?hours="+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Contains(t, w.Body.String(), "invalid_hours")
	}
}
