// Package registry holds the viewer and creator tables the risk pipeline
// and analytics read from. Both tables are loaded once at startup.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/mbd888/fairshare/internal/risk"
)

var ErrCreatorNotFound = errors.New("creator not found")

// Viewer is one row of the viewer table.
type Viewer struct {
	Name         string     `json:"name"`
	AccountType  string     `json:"accountType"`
	TotalGifts   int64      `json:"totalGifts"`
	LastGiftTime *time.Time `json:"lastGiftTime,omitempty"`
	TrustLevel   string     `json:"trustLevel"`
}

// Creator is one row of the creator table.
type Creator struct {
	Name   string `json:"name"`
	Views  int64  `json:"views"`
	Likes  int64  `json:"likes"`
	Shares int64  `json:"shares"`
	Points int64  `json:"points"`
}

// MemoryRegistry is a read-mostly, goroutine-safe registry.
// Names are matched exactly (case-sensitive).
type MemoryRegistry struct {
	mu       sync.RWMutex
	viewers  []Viewer
	byName   map[string]int
	creators []Creator
}

// Compile-time interface check
var _ risk.Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates a registry from the given rows. Later duplicate
// viewer names shadow earlier ones on lookup.
func NewMemoryRegistry(viewers []Viewer, creators []Creator) *MemoryRegistry {
	r := &MemoryRegistry{
		viewers:  append([]Viewer(nil), viewers...),
		byName:   make(map[string]int, len(viewers)),
		creators: append([]Creator(nil), creators...),
	}
	for i, v := range r.viewers {
		r.byName[v.Name] = i
	}
	return r
}

// LookupViewer implements risk.Registry.
func (r *MemoryRegistry) LookupViewer(name string) (risk.ViewerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byName[name]
	if !ok {
		return risk.ViewerRecord{}, false
	}
	v := r.viewers[i]
	return risk.ViewerRecord{
		AccountType: v.AccountType,
		TotalGifts:  v.TotalGifts,
		TrustLevel:  v.TrustLevel,
	}, true
}

// Viewers returns a copy of the viewer table in load order.
func (r *MemoryRegistry) Viewers() []Viewer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Viewer(nil), r.viewers...)
}

// Creators returns a copy of the creator table in load order.
func (r *MemoryRegistry) Creators() []Creator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Creator(nil), r.creators...)
}

// CreatorNames returns the creator names in load order.
func (r *MemoryRegistry) CreatorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.creators))
	for i, c := range r.creators {
		names[i] = c.Name
	}
	return names
}

// Creator looks up a creator by exact name.
func (r *MemoryRegistry) Creator(name string) (Creator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.creators {
		if c.Name == name {
			return c, nil
		}
	}
	return Creator{}, ErrCreatorNotFound
}
