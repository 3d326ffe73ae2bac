package creators

import (
	"math"
	"sort"
	"strings"

	"github.com/mbd888/fairshare/internal/ledger"
	"github.com/mbd888/fairshare/internal/registry"
)

// Component weights of the quality score.
const (
	engagementWeight  = 0.40
	consistencyWeight = 0.25
	growthWeight      = 0.20
	contentWeight     = 0.15
)

const (
	neutralQuality  = 50.0
	contentBase     = 75.0
	engagementScale = 500.0
	trendWindow     = 3
	trendingBonus   = 20
	maxComponent    = 100.0
)

// Quality tiers.
const (
	QualityDiamond  = "diamond"
	QualityGold     = "gold"
	QualitySilver   = "silver"
	QualityBronze   = "bronze"
	QualityStandard = "standard"
)

var categoryBonus = map[string]int{
	"education":     15,
	"tutorial":      15,
	"news":          15,
	"science":       15,
	"cooking":       12,
	"technology":    12,
	"business":      12,
	"history":       12,
	"gaming":        10,
	"fitness":       10,
	"travel":        10,
	"art":           10,
	"comedy":        8,
	"beauty":        8,
	"music":         8,
	"dance":         6,
	"entertainment": 5,
	"lifestyle":     5,
}

// Content describes the creator's latest video. Nil fields earn no bonus.
type Content struct {
	DurationMinutes  *float64 `json:"durationMinutes,omitempty"`
	RetentionPercent *float64 `json:"retentionPercent,omitempty"`
	Category         string   `json:"category,omitempty"`
	Trending         bool     `json:"trending"`
}

// Quality is a creator's 0-100 quality score with its breakdown and the
// reward multiplier it earns.
type Quality struct {
	Name           string  `json:"name"`
	Score          float64 `json:"score"`
	Engagement     float64 `json:"engagement"`
	Consistency    float64 `json:"consistency"`
	Growth         float64 `json:"growth"`
	Content        float64 `json:"content"`
	DurationBonus  int     `json:"durationBonus"`
	RetentionBonus int     `json:"retentionBonus"`
	CategoryBonus  int     `json:"categoryBonus"`
	Tier           string  `json:"tier"`
	Multiplier     float64 `json:"multiplier"`
	Transfers      int     `json:"transfers"`
}

// AssessQuality scores c from its engagement, the clean transfers it
// received (any order) and its latest content. Flagged rows are ignored.
func AssessQuality(c registry.Creator, history []*ledger.Transaction, content Content) Quality {
	points := receivedPoints(history)

	q := Quality{
		Name:           c.Name,
		Engagement:     engagementQuality(c),
		Consistency:    consistency(points),
		Growth:         growth(points),
		DurationBonus:  durationBonus(content.DurationMinutes),
		RetentionBonus: retentionBonus(content.RetentionPercent),
		CategoryBonus:  contentCategoryBonus(content.Category, content.Trending),
		Transfers:      len(points),
	}
	q.Content = min(maxComponent, contentBase+float64(q.DurationBonus+q.RetentionBonus+q.CategoryBonus))

	score := q.Engagement*engagementWeight +
		q.Consistency*consistencyWeight +
		q.Growth*growthWeight +
		q.Content*contentWeight
	q.Tier, q.Multiplier = qualityTier(score)

	q.Score = round2(score)
	q.Engagement = round2(q.Engagement)
	q.Consistency = round2(q.Consistency)
	q.Growth = round2(q.Growth)
	q.Content = round2(q.Content)
	return q
}

// receivedPoints returns clean transfer amounts, oldest first.
func receivedPoints(history []*ledger.Transaction) []float64 {
	clean := make([]*ledger.Transaction, 0, len(history))
	for _, tx := range history {
		if !tx.Flagged {
			clean = append(clean, tx)
		}
	}
	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].Timestamp.Before(clean[j].Timestamp)
	})

	out := make([]float64, len(clean))
	for i, tx := range clean {
		out[i] = float64(tx.Points)
	}
	return out
}

// engagementQuality scales (likes + 2*shares) per view onto 0-100.
func engagementQuality(c registry.Creator) float64 {
	if c.Views <= 0 {
		return 0
	}
	rate := (float64(c.Likes) + 2*float64(c.Shares)) / float64(c.Views)
	return min(maxComponent, rate*engagementScale)
}

// consistency is 100 minus the coefficient of variation in percent.
func consistency(points []float64) float64 {
	if len(points) < 2 {
		return neutralQuality
	}
	mean := average(points)
	if mean <= 0 {
		return neutralQuality
	}
	var ss float64
	for _, p := range points {
		ss += (p - mean) * (p - mean)
	}
	cv := math.Sqrt(ss/float64(len(points))) / mean
	return max(0, maxComponent-cv*100)
}

// growth compares the latest three transfers to the earliest three.
func growth(points []float64) float64 {
	if len(points) < trendWindow {
		return neutralQuality
	}
	older := average(points[:trendWindow])
	recent := average(points[len(points)-trendWindow:])
	if older <= 0 {
		return neutralQuality
	}
	rate := (recent - older) / older
	return min(maxComponent, max(0, neutralQuality+rate*100))
}

func durationBonus(minutes *float64) int {
	if minutes == nil {
		return 0
	}
	switch m := *minutes; {
	case m >= 8:
		return 20
	case m >= 5:
		return 15
	case m >= 3:
		return 10
	case m >= 1:
		return 5
	default:
		return 0
	}
}

func retentionBonus(percent *float64) int {
	if percent == nil {
		return 0
	}
	switch p := *percent; {
	case p >= 90:
		return 25
	case p >= 80:
		return 20
	case p >= 70:
		return 15
	case p >= 60:
		return 10
	case p >= 50:
		return 5
	default:
		return 0
	}
}

// contentCategoryBonus matches category case-insensitively. Unknown
// categories earn nothing; trending adds 20 regardless.
func contentCategoryBonus(category string, trending bool) int {
	bonus := categoryBonus[strings.ToLower(strings.TrimSpace(category))]
	if trending {
		bonus += trendingBonus
	}
	return bonus
}

func qualityTier(score float64) (string, float64) {
	switch {
	case score >= 90:
		return QualityDiamond, 2.0
	case score >= 80:
		return QualityGold, 1.5
	case score >= 70:
		return QualitySilver, 1.25
	case score >= 60:
		return QualityBronze, 1.1
	default:
		return QualityStandard, 1.0
	}
}

func average(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
