package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory ledger for demo/test use.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []*Transaction
	ids  map[string]struct{}
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (m *MemoryStore) Append(_ context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.ids[tx.ID]; dup {
		return ErrDuplicateID
	}
	cp := *tx
	m.rows = append(m.rows, &cp)
	m.ids[tx.ID] = struct{}{}
	return nil
}

func (m *MemoryStore) SenderCountSince(_ context.Context, sender string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, tx := range m.rows {
		if tx.Sender == sender && !tx.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SenderPointsSince(_ context.Context, sender string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, tx := range m.rows {
		if tx.Sender == sender && !tx.Timestamp.Before(since) {
			sum += tx.Points
		}
	}
	return sum, nil
}

func (m *MemoryStore) PointsBetween(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, tx := range m.rows {
		if !tx.Timestamp.Before(from) && tx.Timestamp.Before(to) {
			sum += tx.Points
		}
	}
	return sum, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter, limit int, opts ...ListOption) ([]*Transaction, error) {
	o := applyListOpts(opts)

	m.mu.RLock()
	var result []*Transaction
	for _, tx := range m.rows {
		if f.match(tx) && o.after(tx) {
			cp := *tx
			result = append(result, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) Summary(ctx context.Context) (*Summary, error) {
	return m.SummarySince(ctx, time.Time{})
}

func (m *MemoryStore) SummarySince(_ context.Context, since time.Time) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := newSummary()
	for _, tx := range m.rows {
		if tx.Timestamp.Before(since) {
			continue
		}
		s.TotalTransactions++
		s.TotalPoints += tx.Points
		if tx.Flagged {
			s.FlaggedCount++
		}
		s.ByRiskLevel[tx.RiskLevel]++
	}
	return s, nil
}

func (m *MemoryStore) ReceivedByRecipient(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64)
	for _, tx := range m.rows {
		if !tx.Flagged {
			out[tx.Recipient] += tx.Points
		}
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows)), nil
}
