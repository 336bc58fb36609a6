// Package scoring computes the Bare Necessities composite score for
// observations. The calculation is deterministic: identical inputs always
// produce the identical float output, and full precision is retained
// internally with rounding applied only at the export boundary.
package scoring

import (
	"sort"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
)

// CategoryValue is one category's normalized access level in [0,100],
// together with the weight it carried in the composite.
type CategoryValue struct {
	Category domain.Category `json:"category"`
	Value    float64         `json:"value"`
	Weight   float64         `json:"weight"`
	Defined  bool            `json:"defined"`
}

// ScoredObservation pairs an observation with its composite score breakdown.
type ScoredObservation struct {
	Observation domain.Observation
	Breakdown   []CategoryValue
}

// Calculator evaluates the weighted composite index.
type Calculator struct {
	weights config.WeightsConfig
}

// NewCalculator validates the weighting scheme up front; weights that do not
// sum to 1.0 within tolerance are a configuration error.
func NewCalculator(weights config.WeightsConfig) (*Calculator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{weights: weights}, nil
}

// Score computes the composite score for one observation.
//
// Within each category, sub-weights are renormalized over the indicators
// actually measured. A category with no measured indicator is undefined.
// Category weights are then renormalized over defined categories, so a
// missing category shifts weight to the measured ones instead of dragging
// the score toward zero. The score itself is undefined when no category is
// measured at all, or when RequireAllCategories is set and any category is
// missing entirely.
func (c *Calculator) Score(obs domain.Observation) (domain.Score, []CategoryValue) {
	breakdown := make([]CategoryValue, 0, len(domain.Categories()))

	weightedSum := 0.0
	weightTotal := 0.0
	missingCategory := false

	for _, cat := range domain.Categories() {
		weight := c.weights.Categories[string(cat)]
		value, defined := c.categoryValue(cat, obs)
		breakdown = append(breakdown, CategoryValue{
			Category: cat,
			Value:    value,
			Weight:   weight,
			Defined:  defined,
		})
		if !defined {
			missingCategory = true
			continue
		}
		weightedSum += weight * value
		weightTotal += weight
	}

	if weightTotal == 0 || (c.weights.RequireAllCategories && missingCategory) {
		return domain.Score{}, breakdown
	}

	// Renormalize over defined categories and scale [0,100] down to [0,1].
	return domain.Score{Value: weightedSum / weightTotal / 100, Defined: true}, breakdown
}

// categoryValue combines a category's measured indicators using sub-weights
// renormalized over what is present.
func (c *Calculator) categoryValue(cat domain.Category, obs domain.Observation) (float64, bool) {
	subs := c.weights.SubWeights(cat)

	names := make([]string, 0, len(subs))
	for name := range subs {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := 0.0
	total := 0.0
	for _, name := range names {
		val, ok := obs.Indicator(name)
		if !ok {
			continue
		}
		w := subs[name]
		sum += w * val
		total += w
	}
	if total == 0 {
		return 0, false
	}
	return sum / total, true
}

// ScoreDataset scores every observation, producing a new collection; the
// input dataset is never mutated.
func (c *Calculator) ScoreDataset(ds domain.Dataset) []ScoredObservation {
	out := make([]ScoredObservation, 0, ds.Len())
	for _, obs := range ds.Observations {
		scored := obs.Clone()
		score, breakdown := c.Score(scored)
		scored.Score = score
		out = append(out, ScoredObservation{Observation: scored, Breakdown: breakdown})
	}
	return out
}

// Weights exposes the validated weighting scheme for downstream diagnostics.
func (c *Calculator) Weights() config.WeightsConfig {
	return c.weights
}
