package risk

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// RandSource is the subset of *rand.Rand the resolver draws from.
type RandSource interface {
	IntN(n int) int
}

// Resolver produces trust profiles, creating them on first reference.
type Resolver struct {
	store    ProfileStore
	registry Registry
	policy   Policy
	now      func() time.Time

	mu  sync.Mutex // guards rng
	rng RandSource
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRand injects the random source used for the account-age draw.
func WithRand(rng RandSource) ResolverOption {
	return func(r *Resolver) { r.rng = rng }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithResolverPolicy overrides DefaultPolicy.
func WithResolverPolicy(p Policy) ResolverOption {
	return func(r *Resolver) { r.policy = p }
}

// NewResolver creates a resolver. registry may be nil, in which case every
// viewer is treated as unknown.
func NewResolver(store ProfileStore, registry Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:    store,
		registry: registry,
		policy:   DefaultPolicy(),
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the stored profile for userID, or creates one.
// Unknown viewers get a "new" profile; that is a fallback, not an error.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Profile, error) {
	return r.ResolveAt(ctx, userID, r.now())
}

// ResolveAt is Resolve with the creation instant supplied by the caller.
// Thresholds computed at the same instant see an age of exactly the drawn
// number of days.
func (r *Resolver) ResolveAt(ctx context.Context, userID string, now time.Time) (*Profile, error) {
	p, err := r.store.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	rec := ViewerRecord{AccountType: AccountNew, TrustLevel: AccountNew}
	if r.registry != nil {
		if found, ok := r.registry.LookupViewer(userID); ok {
			rec = found
		}
	}

	offset := r.drawDays(r.policy.ageRange(rec.AccountType))

	created, err := r.store.Create(ctx, &Profile{
		UserID:           userID,
		AccountType:      rec.AccountType,
		AccountCreatedAt: now.Add(-time.Duration(offset) * 24 * time.Hour),
		FirstSeen:        now,
		TrustLevel:       rec.TrustLevel,
		TotalGifts:       rec.TotalGifts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return created, nil
}

// drawDays returns a uniform integer in [dr.Min, dr.Max].
func (r *Resolver) drawDays(dr DayRange) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return dr.Min + r.rng.IntN(dr.Max-dr.Min+1)
}
