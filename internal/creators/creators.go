// Package creators scores creators by engagement and estimates what a
// candidate creator would earn and where they would rank.
//
// Engagement score = 0.3*views + likes + 2*shares. A creator's fair reward
// share is their score over the sum of all scores.
package creators

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mbd888/fairshare/internal/registry"
)

var ErrInvalidCandidate = errors.New("invalid creator metrics")

// Performance tiers by engagement quantile.
const (
	TierTop10    = "top_10"
	TierTop30    = "top_30"
	TierTop50    = "top_50"
	TierBottom50 = "bottom_50"
)

const (
	similarRange   = 0.2
	similarLimit   = 5
	pointValueUSD  = 0.03
	perMillionUSD  = 50.0
	qualityPerRate = 1000.0
	maxQuality     = 100.0
)

// Score returns the weighted engagement score.
func Score(views, likes, shares int64) float64 {
	return 0.3*float64(views) + float64(likes) + 2*float64(shares)
}

// Entry is one creator with derived engagement figures.
type Entry struct {
	Name                 string  `json:"name"`
	Views                int64   `json:"views"`
	Likes                int64   `json:"likes"`
	Shares               int64   `json:"shares"`
	Points               int64   `json:"points"`
	EngagementScore      float64 `json:"engagementScore"`
	FairRewardPercentage float64 `json:"fairRewardPercentage"`
	PointsReceived       int64   `json:"pointsReceived"`
}

// Leaderboard ranks creators by engagement score, highest first. received
// maps creator name to points received through clean transfers; it may be
// nil. Ties keep table order.
func Leaderboard(creators []registry.Creator, received map[string]int64) []Entry {
	entries := make([]Entry, len(creators))
	var total float64
	for i, c := range creators {
		entries[i] = Entry{
			Name:            c.Name,
			Views:           c.Views,
			Likes:           c.Likes,
			Shares:          c.Shares,
			Points:          c.Points,
			EngagementScore: Score(c.Views, c.Likes, c.Shares),
			PointsReceived:  received[c.Name],
		}
		total += entries[i].EngagementScore
	}
	if total > 0 {
		for i := range entries {
			entries[i].FairRewardPercentage = entries[i].EngagementScore / total * 100
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EngagementScore > entries[j].EngagementScore
	})
	return entries
}

// Candidate is a creator being evaluated against the table.
type Candidate struct {
	Name   string `json:"name" binding:"required"`
	Views  int64  `json:"views"`
	Likes  int64  `json:"likes"`
	Shares int64  `json:"shares"`
	Points int64  `json:"points"`
}

// Ranking places a candidate among the existing creators.
type Ranking struct {
	Rank          int     `json:"rank"`
	TotalCreators int     `json:"totalCreators"`
	Percentile    float64 `json:"percentile"`
}

// Earnings is a monthly payout estimate in dollars.
type Earnings struct {
	QualityScore      float64 `json:"qualityScore"`
	EngagementRate    float64 `json:"engagementRate"`
	BaseEarnings      float64 `json:"baseEarnings"`
	QualityMultiplier float64 `json:"qualityMultiplier"`
	QualityBonus      float64 `json:"qualityBonus"`
	ViewsBonus        float64 `json:"viewsBonus"`
	TotalEarnings     float64 `json:"totalEarnings"`
	ConversionRate    float64 `json:"baseConversionRate"`
}

// Analysis is the full report for a candidate.
type Analysis struct {
	Candidate
	EngagementScore      float64  `json:"engagementScore"`
	FairRewardPercentage float64  `json:"fairRewardPercentage"`
	Ranking              Ranking  `json:"ranking"`
	SimilarCreators      []Entry  `json:"similarCreators"`
	PerformanceTier      string   `json:"performanceTier"`
	EngagementRatio      float64  `json:"engagementRatio"`
	EstimatedEarnings    Earnings `json:"estimatedEarnings"`
}

// Analyze scores c against the existing creators. With an empty table the
// candidate ranks first in the top tier with no fair share.
func Analyze(c Candidate, existing []registry.Creator) (*Analysis, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCandidate)
	}
	if c.Views < 0 || c.Likes < 0 || c.Shares < 0 || c.Points < 0 {
		return nil, fmt.Errorf("%w: metrics must not be negative", ErrInvalidCandidate)
	}

	score := Score(c.Views, c.Likes, c.Shares)
	a := &Analysis{
		Candidate:         c,
		EngagementScore:   score,
		SimilarCreators:   []Entry{},
		EngagementRatio:   engagementRate(c) * 100,
		EstimatedEarnings: estimateEarnings(c),
	}

	if len(existing) == 0 {
		a.Ranking = Ranking{Rank: 1, TotalCreators: 1, Percentile: 100}
		a.PerformanceTier = TierTop10
		return a, nil
	}

	board := Leaderboard(existing, nil)
	scores := make([]float64, len(board))
	var total float64
	for i, e := range board {
		scores[i] = e.EngagementScore
		total += e.EngagementScore
	}

	if total+score > 0 {
		a.FairRewardPercentage = score / (total + score) * 100
	}
	a.Ranking = rank(score, scores)
	a.PerformanceTier = tier(score, scores)
	a.SimilarCreators = similar(score, existing)
	return a, nil
}

// rank inserts score into the descending list; ties rank at the first
// equal position.
func rank(score float64, desc []float64) Ranking {
	pos := sort.Search(len(desc), func(i int) bool { return desc[i] <= score })
	n := len(desc) + 1
	r := pos + 1
	return Ranking{
		Rank:          r,
		TotalCreators: n,
		Percentile:    float64(n-r) / float64(n) * 100,
	}
}

func tier(score float64, scores []float64) string {
	switch {
	case score > quantile(scores, 0.9):
		return TierTop10
	case score > quantile(scores, 0.7):
		return TierTop30
	case score > quantile(scores, 0.5):
		return TierTop50
	default:
		return TierBottom50
	}
}

// quantile uses linear interpolation between closest ranks.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// similar returns up to five creators, in table order, within 20% of score.
func similar(score float64, creators []registry.Creator) []Entry {
	lo, hi := score*(1-similarRange), score*(1+similarRange)
	out := []Entry{}
	for _, c := range creators {
		s := Score(c.Views, c.Likes, c.Shares)
		if s < lo || s > hi {
			continue
		}
		out = append(out, Entry{
			Name: c.Name, Views: c.Views, Likes: c.Likes, Shares: c.Shares, Points: c.Points,
			EngagementScore: s,
		})
		if len(out) == similarLimit {
			break
		}
	}
	return out
}

func engagementRate(c Candidate) float64 {
	if c.Views == 0 {
		return 0
	}
	return float64(c.Likes+c.Shares) / float64(c.Views)
}

func estimateEarnings(c Candidate) Earnings {
	rate := engagementRate(c)
	quality := min(maxQuality, rate*qualityPerRate)
	multiplier := 1 + quality/100
	base := float64(c.Points) * pointValueUSD
	viewsBonus := float64(c.Views) / 1_000_000 * perMillionUSD

	return Earnings{
		QualityScore:      quality,
		EngagementRate:    rate * 100,
		BaseEarnings:      cents(base),
		QualityMultiplier: multiplier,
		QualityBonus:      cents(base * (multiplier - 1)),
		ViewsBonus:        cents(viewsBonus),
		TotalEarnings:     cents(base*multiplier + viewsBonus),
		ConversionRate:    pointValueUSD,
	}
}

func cents(usd float64) float64 { return round2(usd) }

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
