package risk

import (
	"context"
	"fmt"
	"time"
)

// Engine runs the ordered checks against a candidate transfer.
type Engine struct {
	history History
	policy  Policy
	checks  []Check
	now     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithChecks replaces the default check list.
func WithChecks(checks ...Check) EngineOption {
	return func(e *Engine) { e.checks = checks }
}

// WithEnginePolicy overrides DefaultPolicy.
func WithEnginePolicy(p Policy) EngineOption {
	return func(e *Engine) { e.policy = p }
}

// WithEngineClock overrides time.Now.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine reading windows from history.
func NewEngine(history History, opts ...EngineOption) *Engine {
	e := &Engine{
		history: history,
		policy:  DefaultPolicy(),
		checks:  DefaultChecks(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy { return e.policy }

// Evaluate classifies a transfer of points from sender at the current time.
func (e *Engine) Evaluate(ctx context.Context, sender string, points int64, th Thresholds) (*Assessment, error) {
	return e.EvaluateAt(ctx, sender, points, th, e.now())
}

// EvaluateAt classifies a transfer as of now. Every check runs; the last
// one that trips owns the level and reason. Points are not validated here.
func (e *Engine) EvaluateAt(ctx context.Context, sender string, points int64, th Thresholds, now time.Time) (*Assessment, error) {
	in := &CheckInput{
		Sender:     sender,
		Points:     points,
		Thresholds: th,
		Policy:     e.policy,
		Now:        now,
		History:    e.history,
	}

	result := &Assessment{Level: LevelLow}
	for _, check := range e.checks {
		f, err := check.Evaluate(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", check.Name(), err)
		}
		if f == nil {
			continue
		}
		result.Flagged = true
		result.Level = f.Level
		result.Reason = f.Reason
		result.Rule = f.Rule
	}
	return result, nil
}
