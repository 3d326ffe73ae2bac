package risk

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand always returns the same position within the requested range:
// pick 0 for the minimum, -1 for the maximum.
type fixedRand struct{ pick int }

func (f fixedRand) IntN(n int) int {
	if f.pick < 0 {
		return n - 1
	}
	return f.pick
}

type mapRegistry map[string]ViewerRecord

func (m mapRegistry) LookupViewer(name string) (ViewerRecord, bool) {
	v, ok := m[name]
	return v, ok
}

func newTestResolver(reg Registry, rng RandSource) (*Resolver, *MemoryProfileStore) {
	store := NewMemoryProfileStore()
	r := NewResolver(store, reg,
		WithRand(rng),
		WithClock(func() time.Time { return testNow }),
	)
	return r, store
}

func TestResolve_UnknownViewerDefaultsToNew(t *testing.T) {
	r, _ := newTestResolver(mapRegistry{}, fixedRand{pick: 0})

	p, err := r.Resolve(context.Background(), "ghost")
	require.NoError(t, err)

	assert.Equal(t, "ghost", p.UserID)
	assert.Equal(t, AccountNew, p.AccountType)
	assert.Equal(t, int64(0), p.TotalGifts)
	assert.Equal(t, AccountNew, p.TrustLevel)
	assert.Equal(t, testNow, p.FirstSeen)
	assert.Equal(t, testNow.Add(-24*time.Hour), p.AccountCreatedAt)
}

func TestResolve_UsesRegistry(t *testing.T) {
	reg := mapRegistry{"viewer_1": {AccountType: "verified", TotalGifts: 1200, TrustLevel: "normal"}}
	r, _ := newTestResolver(reg, fixedRand{pick: 0})

	p, err := r.Resolve(context.Background(), "viewer_1")
	require.NoError(t, err)

	assert.Equal(t, "verified", p.AccountType)
	assert.Equal(t, int64(1200), p.TotalGifts)
	assert.Equal(t, "normal", p.TrustLevel)
}

func TestResolve_DayOffsetRanges(t *testing.T) {
	tests := []struct {
		accountType string
		min, max    int
	}{
		{"new", 1, 30},
		{"existing", 31, 180},
		{"verified", 181, 365},
		{"creator", 365, 1095},
		{"Verified", 181, 365},
		{"mystery", 365, 1095},
	}

	for _, tt := range tests {
		t.Run(tt.accountType, func(t *testing.T) {
			reg := mapRegistry{"u": {AccountType: tt.accountType}}

			lo, _ := newTestResolver(reg, fixedRand{pick: 0})
			p, err := lo.Resolve(context.Background(), "u")
			require.NoError(t, err)
			assert.Equal(t, tt.min, daysBetween(p.AccountCreatedAt, testNow))

			hi, _ := newTestResolver(reg, fixedRand{pick: -1})
			p, err = hi.Resolve(context.Background(), "u")
			require.NoError(t, err)
			assert.Equal(t, tt.max, daysBetween(p.AccountCreatedAt, testNow))
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	r, store := newTestResolver(nil, rand.New(rand.NewPCG(7, 7)))
	ctx := context.Background()

	first, err := r.Resolve(ctx, "viewer_9")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "viewer_9")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	n, _ := store.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestResolve_ConcurrentFirstReference(t *testing.T) {
	r, _ := newTestResolver(nil, rand.New(rand.NewPCG(1, 2)))
	ctx := context.Background()

	var wg sync.WaitGroup
	created := make([]time.Time, 16)
	for i := range created {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Resolve(ctx, "racer")
			if err == nil {
				created[i] = p.AccountCreatedAt
			}
		}(i)
	}
	wg.Wait()

	for _, c := range created[1:] {
		assert.Equal(t, created[0], c)
	}
}

func TestResolve_ReturnsStoredProfileUnchanged(t *testing.T) {
	r, store := newTestResolver(nil, fixedRand{pick: 0})
	ctx := context.Background()

	p, err := r.Resolve(ctx, "viewer_3")
	require.NoError(t, err)
	p.TotalGifts = 999
	p.FlaggedCount = 2
	require.NoError(t, store.Update(ctx, p))

	again, err := r.Resolve(ctx, "viewer_3")
	require.NoError(t, err)
	assert.Equal(t, int64(999), again.TotalGifts)
	assert.Equal(t, 2, again.FlaggedCount)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

func TestResolve_AccountTypeIsCaseInsensitive(t *testing.T) {
	reg := mapRegistry{
		"upper": {AccountType: "New", TrustLevel: "new"},
		"odd":   {AccountType: "Partner", TrustLevel: "normal"},
	}
	r, _ := newTestResolver(reg, fixedRand{pick: -1})

	// "New" draws from the new-account range, not the fallback range.
	p, err := r.Resolve(context.Background(), "upper")
	require.NoError(t, err)
	assert.Equal(t, "New", p.AccountType, "stored as registered")
	assert.Equal(t, testNow.Add(-30*24*time.Hour), p.AccountCreatedAt)

	p, err = r.Resolve(context.Background(), "odd")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-1095*24*time.Hour), p.AccountCreatedAt)
}

func TestResolveAt_AgeEqualsDrawAtCreation(t *testing.T) {
	r, _ := newTestResolver(mapRegistry{}, fixedRand{pick: -1})
	at := testNow.Add(90 * time.Second)

	p, err := r.ResolveAt(context.Background(), "ghost", at)
	require.NoError(t, err)
	assert.Equal(t, at, p.FirstSeen)

	th := ComputeThresholds(p, DefaultPolicy(), at)
	assert.Equal(t, 30, th.AgeDays)
	assert.Equal(t, AgeEstablished, th.AccountAge)
}
