// Package transfers runs a point transfer through the risk pipeline and
// records the outcome.
//
// Send resolves the sender's trust profile, derives its thresholds,
// evaluates the transfer against recent ledger history, appends the result
// to the ledger and updates the profile. Flagged transfers are recorded too;
// they never move points.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"

	"github.com/mbd888/fairshare/internal/ledger"
	"github.com/mbd888/fairshare/internal/logging"
	"github.com/mbd888/fairshare/internal/metrics"
	"github.com/mbd888/fairshare/internal/pagination"
	"github.com/mbd888/fairshare/internal/realtime"
	"github.com/mbd888/fairshare/internal/risk"
	"github.com/mbd888/fairshare/internal/syncutil"
	"github.com/mbd888/fairshare/internal/traces"
)

var (
	ErrInvalidPoints  = errors.New("points must be positive")
	ErrInvalidRequest = errors.New("sender and recipient are required")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// SendRequest is a transfer of points from a viewer to a creator.
type SendRequest struct {
	Sender    string `json:"sender" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
	Points    int64  `json:"points"`
}

// Result is the outcome of Send. Success is false whenever the transfer
// was flagged.
type Result struct {
	Success     bool                `json:"success"`
	Transaction *ledger.Transaction `json:"transaction"`
	Thresholds  risk.Thresholds     `json:"thresholds"`
}

// ProfileView is a profile together with its current thresholds.
type ProfileView struct {
	Profile    *risk.Profile   `json:"profile"`
	Thresholds risk.Thresholds `json:"thresholds"`
}

// ListQuery filters and pages the ledger.
type ListQuery struct {
	Sender      string
	Recipient   string
	FlaggedOnly bool
	Limit       int
	Cursor      string
}

// Page is one page of ledger rows, newest first.
type Page struct {
	Transactions []*ledger.Transaction `json:"transactions"`
	NextCursor   string                `json:"nextCursor,omitempty"`
	HasMore      bool                  `json:"hasMore"`
}

// Broadcaster publishes transfer outcomes.
type Broadcaster interface {
	BroadcastTransfer(tx realtime.Transfer)
}

// Service runs transfers. One mutex serializes the whole
// resolve-evaluate-append-update sequence, so window sums always see every
// earlier transfer. A caller whose context ends while queued gives up.
type Service struct {
	mu       *syncutil.ContextMutex
	resolver *risk.Resolver
	engine   *risk.Engine
	ledger   *ledger.Ledger
	profiles risk.ProfileStore
	events   Broadcaster

	flowLimits FlowLimits
}

// Option configures a Service.
type Option func(*Service)

// WithBroadcaster publishes every outcome to b.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.events = b }
}

// NewService wires the pipeline. The ledger's clock is the pipeline clock.
func NewService(resolver *risk.Resolver, engine *risk.Engine, l *ledger.Ledger, profiles risk.ProfileStore, opts ...Option) *Service {
	s := &Service{
		mu:       syncutil.NewContextMutex(),
		resolver: resolver,
		engine:   engine,
		ledger:   l,
		profiles: profiles,

		flowLimits: DefaultFlowLimits(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send evaluates and records one transfer.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Result, error) {
	if req.Points <= 0 {
		return nil, ErrInvalidPoints
	}
	if req.Sender == "" || req.Recipient == "" {
		return nil, ErrInvalidRequest
	}

	ctx, span := traces.StartSpan(ctx, "transfers.Send",
		traces.Sender(req.Sender),
		traces.Recipient(req.Recipient),
		traces.Points(req.Points),
	)
	defer span.End()

	timer := prometheus.NewTimer(metrics.EvaluationDuration)
	result, err := s.send(ctx, req)
	timer.ObserveDuration()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tx := result.Transaction
	span.SetAttributes(traces.Flagged(tx.Flagged), traces.RiskLevel(tx.RiskLevel), traces.Rule(tx.Rule))
	s.record(ctx, tx)
	return result, nil
}

func (s *Service) send(ctx context.Context, req SendRequest) (*Result, error) {
	unlock, err := s.mu.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.ledger.Now()
	policy := s.engine.Policy()

	profile, err := s.resolver.ResolveAt(ctx, req.Sender, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender: %w", err)
	}
	th := risk.ComputeThresholds(profile, policy, now)

	assessment, err := s.engine.EvaluateAt(ctx, req.Sender, req.Points, th, now)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate transfer: %w", err)
	}

	tx := &ledger.Transaction{
		Timestamp: now,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Points:    req.Points,
		Flagged:   assessment.Flagged,
		RiskLevel: string(assessment.Level),
		Reason:    assessment.Reason,
		Rule:      assessment.Rule,
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		return nil, err
	}

	// The ledger row stands even if the profile write fails.
	if tx.Flagged {
		profile.FlaggedCount++
	} else {
		profile.TotalGifts += tx.Points
		at := tx.Timestamp
		profile.LastGiftTime = &at
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update sender profile: %w", err)
	}

	return &Result{Success: !tx.Flagged, Transaction: tx, Thresholds: th}, nil
}

// record emits metrics, the realtime event and the log line for an outcome.
func (s *Service) record(ctx context.Context, tx *ledger.Transaction) {
	metrics.TransfersTotal.WithLabelValues(tx.RiskLevel).Inc()
	metrics.LedgerRows.Inc()

	logger := logging.L(ctx).With(
		"tx_id", tx.ID,
		"sender", tx.Sender,
		"recipient", tx.Recipient,
		"points", tx.Points,
		"risk_level", tx.RiskLevel,
	)
	if tx.Flagged {
		metrics.FlagsTotal.WithLabelValues(tx.Rule).Inc()
		logger.Warn("transfer flagged", "rule", tx.Rule, "reason", tx.Reason)
	} else {
		metrics.PointsTransferred.Add(float64(tx.Points))
		logger.Info("transfer recorded")
	}

	if s.events != nil {
		s.events.BroadcastTransfer(realtime.Transfer{
			ID:        tx.ID,
			Timestamp: tx.Timestamp,
			Sender:    tx.Sender,
			Recipient: tx.Recipient,
			Points:    tx.Points,
			Flagged:   tx.Flagged,
			RiskLevel: tx.RiskLevel,
			Reason:    tx.Reason,
			Rule:      tx.Rule,
		})
	}
}

// Profile resolves userID and returns the profile with its current
// thresholds. The derived trust level is persisted.
func (s *Service) Profile(ctx context.Context, userID string) (*ProfileView, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	unlock, err := s.mu.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.ledger.Now()
	p, err := s.resolver.ResolveAt(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}
	th := risk.ComputeThresholds(p, s.engine.Policy(), now)
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &ProfileView{Profile: p, Thresholds: th}, nil
}

// List pages through the ledger, newest first.
func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	cursor, err := s.ledger.ParseCursor(q.Cursor)
	if err != nil {
		return nil, err
	}

	rows, err := s.ledger.List(ctx, ledger.Filter{
		Sender:      q.Sender,
		Recipient:   q.Recipient,
		FlaggedOnly: q.FlaggedOnly,
	}, limit+1, ledger.WithCursor(cursor))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	rows, next, more := pagination.ComputePage(rows, limit, func(tx *ledger.Transaction) pagination.Cursor {
		return *ledger.CursorFor(tx)
	})
	if rows == nil {
		rows = []*ledger.Transaction{}
	}
	return &Page{Transactions: rows, NextCursor: next, HasMore: more}, nil
}

// Summary aggregates the whole ledger.
func (s *Service) Summary(ctx context.Context) (*ledger.Summary, error) {
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ledger: %w", err)
	}
	return sum, nil
}

// RefreshGauges sets the ledger and profile gauges from the stores.
func (s *Service) RefreshGauges(ctx context.Context) error {
	rows, err := s.ledger.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count ledger rows: %w", err)
	}
	profiles, err := s.profiles.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count profiles: %w", err)
	}
	metrics.LedgerRows.Set(float64(rows))
	metrics.TrustProfiles.Set(float64(profiles))
	return nil
}

// StartGaugeCollector refreshes gauges every interval until ctx is done.
func (s *Service) StartGaugeCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshGauges(ctx); err != nil {
				logging.L(ctx).Warn("gauge refresh failed", "error", err)
			}
		}
	}
}
