// Package health reports whether the stores behind FairShare are reachable.
// Every registered store is pinged in parallel under one timeout.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the result of pinging one store.
type Status struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latencyMs"`
	Detail    string  `json:"detail,omitempty"`
}

// Pinger is a store that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Registry holds the stores to check, in registration order.
type Registry struct {
	timeout time.Duration

	mu      sync.RWMutex
	names   []string
	pingers []Pinger
}

// NewRegistry creates a registry whose pings are bounded by timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{timeout: timeout}
}

// Register adds a store under name.
func (r *Registry) Register(name string, p Pinger) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.pingers = append(r.pingers, p)
	r.mu.Unlock()
}

// CheckAll pings every store and reports overall health plus one status per
// store, in registration order. An empty registry is healthy.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	names := append([]string(nil), r.names...)
	pingers := append([]Pinger(nil), r.pingers...)
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	statuses = make([]Status, len(pingers))
	var wg sync.WaitGroup
	for i := range pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := pingers[i].Ping(ctx)
			statuses[i] = Status{
				Name:      names[i],
				Healthy:   err == nil,
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				statuses[i].Detail = err.Error()
			}
		}()
	}
	wg.Wait()

	healthy = true
	for _, st := range statuses {
		healthy = healthy && st.Healthy
	}
	return healthy, statuses
}
