package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/fairshare/internal/ledger"
)

var ErrInvalidWindow = errors.New("flow window must be between 1 and 720 hours")

const (
	DefaultFlowHours = 24
	MaxFlowHours     = 720
)

// Flow alert kinds.
const (
	AlertHighFlow      = "high_fund_flow"
	AlertLargeAverage  = "large_average_transfer"
	AlertHighFrequency = "high_transfer_volume"
)

// FlowLimits are the alert thresholds for a flow window. An alert fires
// when a figure is strictly above its limit.
type FlowLimits struct {
	TotalPoints   int64
	AveragePoints float64
	Count         int64
	// FundSafetyFloor is the lowest fund-safety score reported.
	FundSafetyFloor float64
}

// DefaultFlowLimits returns the production alert limits.
func DefaultFlowLimits() FlowLimits {
	return FlowLimits{
		TotalPoints:     1_000_000,
		AveragePoints:   5000,
		Count:           500,
		FundSafetyFloor: 95,
	}
}

// FlowAlert is one anomaly in a flow window.
type FlowAlert struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// FlowReport describes point movement over a trailing window. Every
// attempted transfer counts toward flow, flagged or not. Scores are
// percentages in [0, 100]; an empty window scores 100 throughout.
type FlowReport struct {
	WindowHours     int              `json:"windowHours"`
	Since           time.Time        `json:"since"`
	TotalPoints     int64            `json:"totalPoints"`
	AveragePoints   float64          `json:"averagePoints"`
	Count           int64            `json:"count"`
	FlaggedCount    int64            `json:"flaggedCount"`
	ByRiskLevel     map[string]int64 `json:"byRiskLevel"`
	SuccessRate     float64          `json:"successRate"`
	RiskScore       float64          `json:"riskManagementScore"`
	FundSafetyScore float64          `json:"fundSafetyScore"`
	Alerts          []FlowAlert      `json:"alerts"`
}

// WithFlowLimits overrides DefaultFlowLimits.
func WithFlowLimits(limits FlowLimits) Option {
	return func(s *Service) { s.flowLimits = limits }
}

// Flow reports the trailing window of hours ending now.
func (s *Service) Flow(ctx context.Context, hours int) (*FlowReport, error) {
	if hours == 0 {
		hours = DefaultFlowHours
	}
	if hours < 1 || hours > MaxFlowHours {
		return nil, ErrInvalidWindow
	}

	since := s.ledger.Now().Add(-time.Duration(hours) * time.Hour)
	sum, err := s.ledger.SummarySince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize flow: %w", err)
	}
	report := analyzeFlow(sum, s.flowLimits)
	report.WindowHours = hours
	report.Since = since
	return report, nil
}

func analyzeFlow(sum *ledger.Summary, limits FlowLimits) *FlowReport {
	r := &FlowReport{
		TotalPoints:     sum.TotalPoints,
		Count:           sum.TotalTransactions,
		FlaggedCount:    sum.FlaggedCount,
		ByRiskLevel:     sum.ByRiskLevel,
		SuccessRate:     100,
		RiskScore:       100,
		FundSafetyScore: 100,
		Alerts:          []FlowAlert{},
	}
	if r.Count == 0 {
		return r
	}

	n := float64(r.Count)
	r.AveragePoints = round2(float64(r.TotalPoints) / n)
	r.SuccessRate = round2(float64(r.Count-r.FlaggedCount) / n * 100)

	high := float64(sum.ByRiskLevel[ledger.RiskHigh]) / n * 100
	medium := float64(sum.ByRiskLevel[ledger.RiskMedium]) / n * 100
	r.RiskScore = round2(max(0, 100-(2*high+medium)))
	r.FundSafetyScore = max(limits.FundSafetyFloor, r.SuccessRate)

	if r.TotalPoints > limits.TotalPoints {
		r.Alerts = append(r.Alerts, FlowAlert{
			Kind:    AlertHighFlow,
			Message: fmt.Sprintf("%d points moved in the window", r.TotalPoints),
		})
	}
	if r.AveragePoints > limits.AveragePoints {
		r.Alerts = append(r.Alerts, FlowAlert{
			Kind:    AlertLargeAverage,
			Message: fmt.Sprintf("average transfer is %.0f points", r.AveragePoints),
		})
	}
	if r.Count > limits.Count {
		r.Alerts = append(r.Alerts, FlowAlert{
			Kind:    AlertHighFrequency,
			Message: fmt.Sprintf("%d transfers in the window", r.Count),
		})
	}
	return r
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
