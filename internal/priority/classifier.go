// Package priority tiers and ranks scored observations for intervention
// targeting. Entries are stateless and regenerated per query.
package priority

import (
	"sort"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/scoring"
)

// Tier classifies an observation by composite score.
type Tier string

const (
	TierCritical Tier = "critical"
	TierMedium   Tier = "medium"
	TierGood     Tier = "good"
)

// Shortfall names a category that depresses the composite score, measured as
// weight * (1 - normalized category value).
type Shortfall struct {
	Category domain.Category `json:"category"`
	Weighted float64         `json:"weighted_shortfall"`
}

// Entry is one ranked observation.
type Entry struct {
	Key        domain.Key  `json:"key"`
	Score      float64     `json:"composite_score"`
	Tier       Tier        `json:"tier"`
	Population int64       `json:"population"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

// Result is the ordered priority list plus the observations that could not
// be ranked. Undefined scores are never silently dropped; they are reported
// separately as insufficient data.
type Result struct {
	Entries          []Entry      `json:"entries"`
	InsufficientData []domain.Key `json:"insufficient_data"`
}

// Classifier assigns tiers against a caller-configured critical threshold.
// The 0.7 boundary between medium and good is fixed policy.
type Classifier struct {
	threshold float64
}

// NewClassifier rejects thresholds outside (0, 0.7] so the tier bands keep
// their meaning.
func NewClassifier(threshold float64) (*Classifier, error) {
	if threshold <= 0 || threshold > config.GoodTierFloor {
		return nil, domain.NewConfigError("priority_threshold", "must be in (0, %.1f], got %.2f", config.GoodTierFloor, threshold)
	}
	return &Classifier{threshold: threshold}, nil
}

// TierFor maps a composite score to its tier.
func (c *Classifier) TierFor(score float64) Tier {
	switch {
	case score < c.threshold:
		return TierCritical
	case score < config.GoodTierFloor:
		return TierMedium
	default:
		return TierGood
	}
}

// Classify produces the ordered priority list. Ranking is a total order:
// composite score ascending (worst first), ties broken by population
// descending (larger affected population surfaces first), then by region
// name, year, and area type ascending for determinism.
func (c *Classifier) Classify(scored []scoring.ScoredObservation) Result {
	var res Result

	for _, s := range scored {
		obs := s.Observation
		if !obs.Score.Defined {
			res.InsufficientData = append(res.InsufficientData, obs.Key())
			continue
		}
		res.Entries = append(res.Entries, Entry{
			Key:        obs.Key(),
			Score:      obs.Score.Value,
			Tier:       c.TierFor(obs.Score.Value),
			Population: obs.Population,
			Shortfalls: shortfalls(s.Breakdown),
		})
	}

	sort.Slice(res.Entries, func(i, j int) bool {
		a, b := res.Entries[i], res.Entries[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.Population != b.Population {
			return a.Population > b.Population
		}
		return a.Key.Less(b.Key)
	})
	sort.Slice(res.InsufficientData, func(i, j int) bool {
		return res.InsufficientData[i].Less(res.InsufficientData[j])
	})
	return res
}

// shortfalls ranks the categories that most depress the score, largest
// weighted shortfall first. Unmeasured categories are excluded: an absent
// measurement is not evidence of deprivation.
func shortfalls(breakdown []scoring.CategoryValue) []Shortfall {
	out := make([]Shortfall, 0, len(breakdown))
	for _, cv := range breakdown {
		if !cv.Defined {
			continue
		}
		out = append(out, Shortfall{
			Category: cv.Category,
			Weighted: cv.Weight * (1 - cv.Value/100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weighted != out[j].Weighted {
			return out[i].Weighted > out[j].Weighted
		}
		return out[i].Category < out[j].Category
	})
	return out
}
