// Package risk implements trust-scaled risk checks for point transfers.
//
// A transfer flows through three stages before it reaches the ledger:
// the Resolver produces (or reuses) the sender's trust profile, ComputeThresholds
// turns that profile into absolute limits, and the Engine runs an ordered list
// of checks against those limits and the sender's recent ledger history.
// Checks never short-circuit; the last check that trips decides the outcome.
package risk

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProfileNotFound = errors.New("risk: profile not found")
	ErrInvalidPolicy   = errors.New("risk: invalid policy")
)

// Level is the risk classification attached to every ledger row.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Account age buckets.
const (
	AgeNew         = "new"
	AgeEstablished = "established"
	AgeOld         = "old"
)

// Verification buckets. Registry account types are folded into these.
const (
	VerificationUnverified = "unverified"
	VerificationVerified   = "verified"
	VerificationCreator    = "creator"
)

// Trust levels derived from the combined multiplier.
const (
	TrustTrusted    = "trusted"
	TrustNormal     = "normal"
	TrustSuspicious = "suspicious"
)

// Registry account types.
const (
	AccountNew      = "new"
	AccountExisting = "existing"
	AccountVerified = "verified"
	AccountCreator  = "creator"
)

// Profile is a viewer's trust profile. It is created lazily on first
// reference and lives as long as the ProfileStore holding it.
type Profile struct {
	UserID           string     `json:"userId"`
	AccountType      string     `json:"accountType"`
	AccountCreatedAt time.Time  `json:"accountCreatedAt"`
	FirstSeen        time.Time  `json:"firstSeen"`
	TrustLevel       string     `json:"trustLevel"`
	TotalGifts       int64      `json:"totalGifts"`
	FlaggedCount     int        `json:"flaggedCount"`
	LastGiftTime     *time.Time `json:"lastGiftTime,omitempty"`
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.LastGiftTime != nil {
		t := *p.LastGiftTime
		c.LastGiftTime = &t
	}
	return &c
}

// Thresholds are the dynamic limits derived from a profile. Never stored.
type Thresholds struct {
	Suspicious             int64   `json:"suspicious"`
	Fraud                  int64   `json:"fraud"`
	Hourly                 int64   `json:"hourly"`
	Daily                  int64   `json:"daily"`
	AccountAge             string  `json:"accountAge"`
	AgeDays                int     `json:"ageDays"`
	Verification           string  `json:"verification"`
	AgeMultiplier          float64 `json:"ageMultiplier"`
	VerificationMultiplier float64 `json:"verificationMultiplier"`
	CombinedMultiplier     float64 `json:"combinedMultiplier"`
	TrustLevel             string  `json:"trustLevel"`
}

// Assessment is the evaluator's verdict for a single transfer.
type Assessment struct {
	Flagged bool   `json:"flagged"`
	Level   Level  `json:"riskLevel"`
	Reason  string `json:"reason"`
	Rule    string `json:"rule,omitempty"`
}

// ViewerRecord is what the registry knows about a viewer.
type ViewerRecord struct {
	AccountType string
	TotalGifts  int64
	TrustLevel  string
}

// Registry looks up viewers by exact name.
type Registry interface {
	LookupViewer(name string) (ViewerRecord, bool)
}

// ProfileStore holds trust profiles.
//
// Create stores p unless a profile with the same UserID already exists, in
// which case the existing profile is returned and p is discarded. This keeps
// the account-age draw a one-time event even with several resolvers racing.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Create(ctx context.Context, p *Profile) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Count(ctx context.Context) (int, error)
}

// History is the read side of the ledger the checks need. Windows are
// inclusive: a row whose timestamp equals since is counted.
type History interface {
	SenderCountSince(ctx context.Context, sender string, since time.Time) (int, error)
	SenderPointsSince(ctx context.Context, sender string, since time.Time) (int64, error)
	DayVolume(ctx context.Context, day time.Time) (int64, error)
}
