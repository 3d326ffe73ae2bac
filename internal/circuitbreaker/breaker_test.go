package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, open time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)}
	return New(threshold, open, WithClock(clk.Now)), clk
}

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	if !b.Allow("redis") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	if !b.Allow("redis") {
		t.Fatal("should still allow before threshold")
	}

	b.RecordFailure("redis")
	if b.Allow("redis") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("redis") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("redis"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	if b.Allow("redis") {
		t.Fatal("should be open")
	}

	clk.Advance(999 * time.Millisecond)
	if b.Allow("redis") {
		t.Fatal("should stay open until the duration elapses")
	}

	clk.Advance(time.Millisecond)
	if !b.Allow("redis") {
		t.Fatal("should allow a trial call in half-open")
	}
	if b.State("redis") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("redis"))
	}
	if b.Allow("redis") {
		t.Fatal("should reject second call in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	clk.Advance(time.Second)
	b.Allow("redis")

	b.RecordSuccess("redis")
	if b.State("redis") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("redis"))
	}
	if !b.Allow("redis") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	clk.Advance(time.Second)
	b.Allow("redis")

	b.RecordFailure("redis")
	if b.State("redis") != StateOpen {
		t.Fatalf("expected StateOpen after half-open failure, got %v", b.State("redis"))
	}
}

func TestBreaker_SuccessResets(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	b.RecordSuccess("redis")

	b.RecordFailure("redis")
	if !b.Allow("redis") {
		t.Fatal("should still be closed after reset")
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)

	b.RecordFailure("redis")
	b.RecordFailure("redis")

	if b.Allow("redis") {
		t.Fatal("redis should be open")
	}
	if !b.Allow("postgres") {
		t.Fatal("postgres should be closed")
	}
}

func TestBreaker_UnknownKeyIsClosed(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown key, got %v", b.State("unknown"))
	}
}

func TestBreaker_Do(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)
	errDown := errors.New("connection refused")
	errMissing := errors.New("not found")
	ignoreMissing := func(err error) bool { return !errors.Is(err, errMissing) }

	for i := 0; i < 5; i++ {
		if err := b.Do("redis", func() error { return errMissing }, ignoreMissing); !errors.Is(err, errMissing) {
			t.Fatalf("expected passthrough error, got %v", err)
		}
	}
	if b.State("redis") != StateClosed {
		t.Fatal("ignored errors must not trip the circuit")
	}

	for i := 0; i < 2; i++ {
		if err := b.Do("redis", func() error { return errDown }, ignoreMissing); !errors.Is(err, errDown) {
			t.Fatalf("expected %v, got %v", errDown, err)
		}
	}

	called := false
	err := b.Do("redis", func() error { called = true; return nil }, ignoreMissing)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while the circuit is open")
	}
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)

	done := make(chan struct{ from, to State }, 1)
	b.OnTransition(func(key string, from, to State) {
		done <- struct{ from, to State }{from, to}
	})

	b.RecordFailure("redis")
	b.RecordFailure("redis")

	select {
	case tr := <-done:
		if tr.from != StateClosed || tr.to != StateOpen {
			t.Fatalf("expected closed→open, got %v→%v", tr.from, tr.to)
		}
	case <-time.After(time.Second):
		t.Fatal("transition callback not invoked")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
