// Package deprivation converts access percentages and population into
// absolute counts of deprived households. Records are computed on demand
// from an observation and never mutated in place.
package deprivation

import (
	"fmt"
	"math"

	"github.com/amenityscan/amenityscan/internal/domain"
)

// Record holds the estimated number of households lacking each measured
// amenity for one observation.
type Record struct {
	Key        domain.Key       `json:"key"`
	Households map[string]int64 `json:"households"` // by canonical indicator
}

// Estimator derives deprived-household counts.
type Estimator struct {
	householdSize float64
}

// NewEstimator rejects a non-positive average household size as a
// configuration error.
func NewEstimator(avgHouseholdSize float64) (*Estimator, error) {
	if avgHouseholdSize <= 0 {
		return nil, domain.NewConfigError("avg_household_size", "must be > 0, got %.2f", avgHouseholdSize)
	}
	return &Estimator{householdSize: avgHouseholdSize}, nil
}

// Count estimates the households lacking an amenity:
//
//	deprived = (population / avg_household_size) * (100 - access_pct) / 100
//
// rounded half-up to the nearest household. Out-of-range access percentages
// and negative populations are data-quality errors, never clamped.
func (e *Estimator) Count(population int64, accessPct float64) (int64, error) {
	if population < 0 {
		return 0, fmt.Errorf("negative population %d", population)
	}
	if accessPct < 0 || accessPct > 100 {
		return 0, fmt.Errorf("access percentage %.2f outside [0,100]", accessPct)
	}
	households := float64(population) / e.householdSize
	deprived := households * (100 - accessPct) / 100
	return int64(math.Floor(deprived + 0.5)), nil
}

// ForObservation computes a record covering every measured indicator of the
// observation. Indicator values that fail validation are reported per key
// and skipped; the rest of the record is still produced.
func (e *Estimator) ForObservation(obs domain.Observation) (Record, []*domain.QualityError) {
	rec := Record{Key: obs.Key(), Households: map[string]int64{}}
	var errs []*domain.QualityError

	for _, name := range domain.AllIndicators() {
		access, ok := obs.Indicator(name)
		if !ok {
			continue
		}
		count, err := e.Count(obs.Population, access)
		if err != nil {
			errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: name, Reason: err.Error()})
			continue
		}
		rec.Households[name] = count
	}
	return rec, errs
}

// HouseholdSize reports the configured average household size.
func (e *Estimator) HouseholdSize() float64 {
	return e.householdSize
}
