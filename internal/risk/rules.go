package risk

import (
	"context"
	"fmt"
	"time"
)

// Finding is a tripped check.
type Finding struct {
	Level  Level
	Rule   string
	Reason string
}

// CheckInput carries the parameters for one evaluation.
type CheckInput struct {
	Sender     string
	Points     int64
	Thresholds Thresholds
	Policy     Policy
	Now        time.Time
	History    History
}

// cutoff returns the inclusive lower bound of a trailing window. Ledger
// timestamps carry minute resolution, so the cutoff does too.
func (in *CheckInput) cutoff(window time.Duration) time.Time {
	return in.Now.Add(-window).Truncate(time.Minute)
}

// Check is one step of the ordered evaluation. A nil Finding means the
// check did not trip.
type Check interface {
	Name() string
	Evaluate(ctx context.Context, in *CheckInput) (*Finding, error)
}

// DefaultChecks returns the built-in checks in evaluation order.
func DefaultChecks() []Check {
	return []Check{
		&ThresholdCheck{},
		&SpamCheck{},
		&WindowValueCheck{},
		&HourlyLimitCheck{},
		&DailyLimitCheck{},
	}
}

// ---------------------------------------------------------------------------
// ThresholdCheck: single-transfer size against the fraud, then suspicious, limit
// ---------------------------------------------------------------------------

type ThresholdCheck struct{}

func (c *ThresholdCheck) Name() string { return "threshold" }

func (c *ThresholdCheck) Evaluate(_ context.Context, in *CheckInput) (*Finding, error) {
	switch {
	case in.Points > in.Thresholds.Fraud:
		return &Finding{
			Level:  LevelHigh,
			Rule:   "fraud_threshold",
			Reason: fmt.Sprintf("Above fraud threshold (%s)", FormatUSD(in.Thresholds.Fraud)),
		}, nil
	case in.Points > in.Thresholds.Suspicious:
		return &Finding{
			Level:  LevelMedium,
			Rule:   "suspicious_threshold",
			Reason: fmt.Sprintf("Above suspicious threshold (%s)", FormatUSD(in.Thresholds.Suspicious)),
		}, nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// SpamCheck: too many transfers from one sender in a short window
// ---------------------------------------------------------------------------

type SpamCheck struct{}

func (c *SpamCheck) Name() string { return "spam" }

func (c *SpamCheck) Evaluate(ctx context.Context, in *CheckInput) (*Finding, error) {
	n, err := in.History.SenderCountSince(ctx, in.Sender, in.cutoff(in.Policy.SpamWindow))
	if err != nil {
		return nil, err
	}
	if n < in.Policy.SpamCount {
		return nil, nil
	}
	return &Finding{
		Level:  LevelHigh,
		Rule:   c.Name(),
		Reason: fmt.Sprintf("Spam detected: %d gifts in %s", n, humanWindow(in.Policy.SpamWindow)),
	}, nil
}

// ---------------------------------------------------------------------------
// WindowValueCheck: absolute value sent in a short window, not trust-scaled
// ---------------------------------------------------------------------------

type WindowValueCheck struct{}

func (c *WindowValueCheck) Name() string { return "window_value" }

func (c *WindowValueCheck) Evaluate(ctx context.Context, in *CheckInput) (*Finding, error) {
	sum, err := in.History.SenderPointsSince(ctx, in.Sender, in.cutoff(in.Policy.ValueWindow))
	if err != nil {
		return nil, err
	}
	total := sum + in.Points
	if total < in.Policy.ValueLimit {
		return nil, nil
	}
	return &Finding{
		Level:  LevelHigh,
		Rule:   c.Name(),
		Reason: fmt.Sprintf("Suspicious value in %s (%s)", humanWindow(in.Policy.ValueWindow), FormatUSD(total)),
	}, nil
}

// ---------------------------------------------------------------------------
// HourlyLimitCheck: trailing-hour total against the trust-scaled hourly limit
// ---------------------------------------------------------------------------

type HourlyLimitCheck struct{}

func (c *HourlyLimitCheck) Name() string { return "hourly_limit" }

func (c *HourlyLimitCheck) Evaluate(ctx context.Context, in *CheckInput) (*Finding, error) {
	sum, err := in.History.SenderPointsSince(ctx, in.Sender, in.cutoff(in.Policy.HourlyWindow))
	if err != nil {
		return nil, err
	}
	if sum+in.Points <= in.Thresholds.Hourly {
		return nil, nil
	}
	return &Finding{Level: LevelHigh, Rule: c.Name(), Reason: "Exceeds hourly limit"}, nil
}

// ---------------------------------------------------------------------------
// DailyLimitCheck: calendar-day volume against the trust-scaled daily limit.
// The volume covers every sender on the ledger, not only this one.
// ---------------------------------------------------------------------------

type DailyLimitCheck struct{}

func (c *DailyLimitCheck) Name() string { return "daily_limit" }

func (c *DailyLimitCheck) Evaluate(ctx context.Context, in *CheckInput) (*Finding, error) {
	sum, err := in.History.DayVolume(ctx, in.Now)
	if err != nil {
		return nil, err
	}
	if sum+in.Points <= in.Thresholds.Daily {
		return nil, nil
	}
	return &Finding{Level: LevelHigh, Rule: c.Name(), Reason: "Exceeds daily limit"}, nil
}

// humanWindow renders 10m as "10 minutes" and 1h as "1 hour".
func humanWindow(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d%time.Minute == 0:
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	default:
		return d.String()
	}
}
