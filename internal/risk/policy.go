package risk

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PointsPerDollar is the fixed display conversion.
const PointsPerDollar = 100

// Limits are the four trust-scaled limits, in points.
type Limits struct {
	Suspicious int64 `yaml:"suspicious"`
	Fraud      int64 `yaml:"fraud"`
	Hourly     int64 `yaml:"hourly"`
	Daily      int64 `yaml:"daily"`
}

// DayRange is an inclusive range of days used for the account-age draw.
type DayRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Policy holds every table and constant used by the risk pipeline.
type Policy struct {
	BaseLimits Limits `yaml:"base_limits"`

	// Accounts younger than NewAccountDays are "new"; younger than
	// EstablishedDays are "established"; everything else is "old".
	NewAccountDays  int `yaml:"new_account_days"`
	EstablishedDays int `yaml:"established_days"`

	AgeMultipliers          map[string]float64 `yaml:"age_multipliers"`
	VerificationMultipliers map[string]float64 `yaml:"verification_multipliers"`

	TrustedAtOrAbove    float64 `yaml:"trusted_at_or_above"`
	SuspiciousAtOrBelow float64 `yaml:"suspicious_at_or_below"`

	SpamWindow   time.Duration `yaml:"spam_window"`
	SpamCount    int           `yaml:"spam_count"`
	ValueWindow  time.Duration `yaml:"value_window"`
	ValueLimit   int64         `yaml:"value_limit"` // absolute, not trust-scaled
	HourlyWindow time.Duration `yaml:"hourly_window"`

	// AccountAgeDays maps a registry account type to its simulated age range.
	// Types missing from the map use DefaultAccountAgeDays.
	AccountAgeDays        map[string]DayRange `yaml:"account_age_days"`
	DefaultAccountAgeDays DayRange            `yaml:"default_account_age_days"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		BaseLimits: Limits{
			Suspicious: 20000, // $200
			Fraud:      50000, // $500
			Hourly:     100000,
			Daily:      500000,
		},
		NewAccountDays:  30,
		EstablishedDays: 180,
		AgeMultipliers: map[string]float64{
			AgeNew:         0.5,
			AgeEstablished: 1.0,
			AgeOld:         1.5,
		},
		VerificationMultipliers: map[string]float64{
			VerificationUnverified: 0.7,
			VerificationVerified:   1.0,
			VerificationCreator:    2.0,
		},
		TrustedAtOrAbove:    1.5,
		SuspiciousAtOrBelow: 0.6,
		SpamWindow:          10 * time.Minute,
		SpamCount:           50,
		ValueWindow:         10 * time.Minute,
		ValueLimit:          50000,
		HourlyWindow:        time.Hour,
		AccountAgeDays: map[string]DayRange{
			AccountNew:      {Min: 1, Max: 30},
			AccountExisting: {Min: 31, Max: 180},
			AccountVerified: {Min: 181, Max: 365},
		},
		DefaultAccountAgeDays: DayRange{Min: 365, Max: 1095},
	}
}

// LoadPolicyFile reads a YAML policy. Keys absent from the file keep their
// default values.
func LoadPolicyFile(path string) (Policy, error) {
	p := DefaultPolicy()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read risk policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse risk policy: %w", err)
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// normalize lowercases map keys so YAML authors can use any case. Keys the
// file spelled in another case override the lowercase defaults.
func (p *Policy) normalize() {
	p.AgeMultipliers = lowerKeys(p.AgeMultipliers)
	p.VerificationMultipliers = lowerKeys(p.VerificationMultipliers)
	p.AccountAgeDays = lowerKeys(p.AccountAgeDays)
}

func lowerKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		if k == strings.ToLower(k) {
			out[k] = v
		}
	}
	for k, v := range m {
		if k != strings.ToLower(k) {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

// Validate rejects policies the pipeline cannot run with.
func (p Policy) Validate() error {
	if p.BaseLimits.Suspicious <= 0 || p.BaseLimits.Fraud <= 0 || p.BaseLimits.Hourly <= 0 || p.BaseLimits.Daily <= 0 {
		return fmt.Errorf("%w: base limits must be positive", ErrInvalidPolicy)
	}
	if p.NewAccountDays <= 0 || p.EstablishedDays <= p.NewAccountDays {
		return fmt.Errorf("%w: age buckets must satisfy 0 < new_account_days < established_days", ErrInvalidPolicy)
	}
	for _, k := range []string{AgeNew, AgeEstablished, AgeOld} {
		if p.AgeMultipliers[k] <= 0 {
			return fmt.Errorf("%w: missing age multiplier %q", ErrInvalidPolicy, k)
		}
	}
	for _, k := range []string{VerificationUnverified, VerificationVerified, VerificationCreator} {
		if p.VerificationMultipliers[k] <= 0 {
			return fmt.Errorf("%w: missing verification multiplier %q", ErrInvalidPolicy, k)
		}
	}
	if p.SuspiciousAtOrBelow >= p.TrustedAtOrAbove {
		return fmt.Errorf("%w: suspicious_at_or_below must be below trusted_at_or_above", ErrInvalidPolicy)
	}
	if p.SpamWindow <= 0 || p.ValueWindow <= 0 || p.HourlyWindow <= 0 {
		return fmt.Errorf("%w: windows must be positive", ErrInvalidPolicy)
	}
	if p.SpamCount <= 0 || p.ValueLimit <= 0 {
		return fmt.Errorf("%w: spam_count and value_limit must be positive", ErrInvalidPolicy)
	}
	for k, r := range p.AccountAgeDays {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("%w: bad day range for %q", ErrInvalidPolicy, k)
		}
	}
	if d := p.DefaultAccountAgeDays; d.Min < 0 || d.Max < d.Min {
		return fmt.Errorf("%w: bad default day range", ErrInvalidPolicy)
	}
	return nil
}

// ageRange returns the day range for a registry account type.
func (p Policy) ageRange(accountType string) DayRange {
	if r, ok := p.AccountAgeDays[strings.ToLower(accountType)]; ok {
		return r
	}
	return p.DefaultAccountAgeDays
}

// FormatUSD renders points as dollars with two decimals, e.g. 30000 -> "$300.00".
func FormatUSD(points int64) string {
	return "$" + decimal.New(points, -2).StringFixed(2)
}
