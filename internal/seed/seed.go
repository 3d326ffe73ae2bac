// Package seed backfills the ledger with historical transfers derived from
// the viewer table, so window checks and leaderboards have data on a fresh
// install.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/fairshare/internal/ledger"
	"github.com/mbd888/fairshare/internal/logging"
	"github.com/mbd888/fairshare/internal/registry"
)

// Reason is recorded on every seeded row.
const Reason = "Historical data from CSV"

const (
	splitAbove   = 1000 // gift totals above this are split
	splitPer     = 300  // roughly one transfer per this many points
	minSplits    = 5
	maxSplits    = 15
	minSplitSize = 100
	spreadDays   = 7
)

// Rand is the random source used for splitting and spreading transfers.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// Generate builds the historical transfers for viewers. Only viewers with a
// positive gift total and a last-gift time contribute; recipients are drawn
// from creators other than the viewer. The result is shuffled.
func Generate(viewers []registry.Viewer, creators []string, rng Rand) []*ledger.Transaction {
	var perViewer [][]*ledger.Transaction
	for _, v := range viewers {
		if v.TotalGifts <= 0 || v.LastGiftTime == nil {
			continue
		}
		candidates := recipientsFor(v.Name, creators)
		if len(candidates) == 0 {
			continue
		}

		var txs []*ledger.Transaction
		if v.TotalGifts > splitAbove {
			txs = split(v, candidates, rng)
		} else {
			txs = []*ledger.Transaction{
				historical(v.Name, pick(candidates, rng), v.TotalGifts, *v.LastGiftTime),
			}
		}
		if len(txs) > 0 {
			perViewer = append(perViewer, txs)
		}
	}

	out := interleave(perViewer)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// split spreads a large gift total over several transfers of varying size
// in the week leading up to the last gift.
func split(v registry.Viewer, candidates []string, rng Rand) []*ledger.Transaction {
	n := min(maxSplits, max(minSplits, v.TotalGifts/splitPer))
	base := v.TotalGifts / n
	remaining := v.TotalGifts

	txs := make([]*ledger.Transaction, 0, n)
	for i := int64(0); i < n; i++ {
		var points int64
		if i == n-1 {
			points = remaining
		} else {
			variation := 0.7 + rng.Float64()*0.6
			points = int64(float64(base) * variation)
			points = min(points, remaining-(n-i-1)*minSplitSize)
			points = max(points, minSplitSize)
		}
		remaining -= points

		// Rounding can leave nothing for the tail; the ledger only takes
		// positive amounts.
		if points <= 0 {
			continue
		}

		offset := time.Duration(rng.IntN(spreadDays+1)-spreadDays)*24*time.Hour +
			time.Duration(rng.IntN(24))*time.Hour +
			time.Duration(rng.IntN(60))*time.Minute
		txs = append(txs, historical(v.Name, pick(candidates, rng), points, v.LastGiftTime.Add(offset)))
	}
	return txs
}

func historical(sender, recipient string, points int64, at time.Time) *ledger.Transaction {
	return &ledger.Transaction{
		Timestamp: at,
		Sender:    sender,
		Recipient: recipient,
		Points:    points,
		RiskLevel: ledger.RiskLow,
		Reason:    Reason,
	}
}

func recipientsFor(viewer string, creators []string) []string {
	out := make([]string, 0, len(creators))
	for _, c := range creators {
		if c != viewer {
			out = append(out, c)
		}
	}
	return out
}

func pick(names []string, rng Rand) string {
	return names[rng.IntN(len(names))]
}

// interleave takes the i-th transfer of every viewer before any (i+1)-th.
func interleave(lists [][]*ledger.Transaction) []*ledger.Transaction {
	longest, total := 0, 0
	for _, l := range lists {
		longest = max(longest, len(l))
		total += len(l)
	}
	out := make([]*ledger.Transaction, 0, total)
	for i := 0; i < longest; i++ {
		for _, l := range lists {
			if i < len(l) {
				out = append(out, l[i])
			}
		}
	}
	return out
}

// Run seeds l from reg when the ledger is empty. It returns the number of
// rows written; a non-empty ledger is left alone and reports zero.
func Run(ctx context.Context, l *ledger.Ledger, reg *registry.MemoryRegistry, rng Rand) (int, error) {
	n, err := l.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger rows: %w", err)
	}
	if n > 0 {
		logging.L(ctx).Info("ledger already populated, skipping history seed", "rows", n)
		return 0, nil
	}

	txs := Generate(reg.Viewers(), reg.CreatorNames(), rng)
	for i, tx := range txs {
		if err := l.Append(ctx, tx); err != nil {
			return i, fmt.Errorf("failed to seed transaction %d: %w", i, err)
		}
	}

	logging.L(ctx).Info("seeded historical transactions", "rows", len(txs))
	return len(txs), nil
}
