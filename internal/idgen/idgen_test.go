package idgen

import (
	"strings"
	"testing"
)

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestNew_TimeOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("tx_")
	if !strings.HasPrefix(id, "tx_") {
		t.Errorf("expected tx_ prefix, got %s", id)
	}
	if len(id) != len("tx_")+36 {
		t.Errorf("unexpected length %d", len(id))
	}
}

func TestHex(t *testing.T) {
	if got := Hex(16); len(got) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(got))
	}
}
