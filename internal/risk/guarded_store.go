package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/fairshare/internal/circuitbreaker"
)

// ErrStoreUnavailable is returned while the circuit for a profile store is open.
var ErrStoreUnavailable = errors.New("risk: profile store unavailable")

// GuardedProfileStore wraps a remote ProfileStore with a circuit breaker.
// A missing profile is a normal answer and never counts as a failure.
type GuardedProfileStore struct {
	inner   ProfileStore
	breaker *circuitbreaker.Breaker
	key     string
}

// NewGuardedProfileStore guards inner under the breaker key name.
func NewGuardedProfileStore(inner ProfileStore, breaker *circuitbreaker.Breaker, name string) *GuardedProfileStore {
	return &GuardedProfileStore{inner: inner, breaker: breaker, key: name}
}

func isStoreFailure(err error) bool {
	return !errors.Is(err, ErrProfileNotFound) &&
		!errors.Is(err, context.Canceled)
}

func (g *GuardedProfileStore) do(op string, fn func() error) error {
	err := g.breaker.Do(g.key, fn, isStoreFailure)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%s %s: %w", g.key, op, ErrStoreUnavailable)
	}
	return err
}

func (g *GuardedProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	var p *Profile
	err := g.do("get", func() error {
		var err error
		p, err = g.inner.Get(ctx, userID)
		return err
	})
	return p, err
}

func (g *GuardedProfileStore) Create(ctx context.Context, profile *Profile) (*Profile, error) {
	var p *Profile
	err := g.do("create", func() error {
		var err error
		p, err = g.inner.Create(ctx, profile)
		return err
	})
	return p, err
}

func (g *GuardedProfileStore) Update(ctx context.Context, profile *Profile) error {
	return g.do("update", func() error { return g.inner.Update(ctx, profile) })
}

func (g *GuardedProfileStore) Count(ctx context.Context) (int, error) {
	var n int
	err := g.do("count", func() error {
		var err error
		n, err = g.inner.Count(ctx)
		return err
	})
	return n, err
}

var _ ProfileStore = (*GuardedProfileStore)(nil)
