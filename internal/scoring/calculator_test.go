package scoring

import (
	"math"
	"testing"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
)

func fullObservation() domain.Observation {
	return domain.Observation{
		Region:     "Kerala",
		Year:       2023,
		Area:       domain.AreaRural,
		Population: 1000000,
		Indicators: map[string]float64{
			domain.IndPipedWater:   80,
			domain.IndSafeWater:    90,
			domain.IndToilet:       85,
			domain.IndSepticTank:   60,
			domain.IndPuccaHousing: 70,
			domain.IndElectricity:  95,
			domain.IndCleanFuel:    65,
			domain.IndFoodSecure:   88,
		},
	}
}

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(config.Default().Weights)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	return calc
}

func TestCalculator_RejectsBadWeights(t *testing.T) {
	weights := config.Default().Weights
	weights.Categories = map[string]float64{
		"water":      0.5,
		"sanitation": 0.4, // sums to 0.9
	}

	_, err := NewCalculator(weights)
	if err == nil {
		t.Fatal("expected error for weights summing to 0.9")
	}
	if _, ok := err.(*domain.ConfigError); !ok {
		t.Errorf("expected *domain.ConfigError, got %T", err)
	}
}

func TestCalculator_ScoreWithinBounds(t *testing.T) {
	calc := newTestCalculator(t)

	score, _ := calc.Score(fullObservation())
	if !score.Defined {
		t.Fatal("expected a defined score for a fully measured observation")
	}
	if score.Value < 0 || score.Value > 1 {
		t.Errorf("score %.4f outside [0,1]", score.Value)
	}
}

func TestCalculator_ExpectedComposite(t *testing.T) {
	calc := newTestCalculator(t)

	// Single indicator per category keeps the arithmetic checkable by hand.
	obs := domain.Observation{
		Region: "Bihar", Year: 2023, Area: domain.AreaRural,
		Indicators: map[string]float64{
			domain.IndPipedWater:   50, // water 0.30
			domain.IndToilet:       50, // sanitation 0.20 (toilet sub-weight renormalized to 1)
			domain.IndPuccaHousing: 50, // housing 0.15
			domain.IndElectricity:  50, // electricity 0.15
			domain.IndCleanFuel:    50, // clean_fuel 0.10
			domain.IndFoodSecure:   50, // food_security 0.10
		},
	}

	score, _ := calc.Score(obs)
	if !score.Defined {
		t.Fatal("expected defined score")
	}
	// Every category value is 50, so the composite is 50/100 = 0.5 no matter
	// how the weights distribute.
	if math.Abs(score.Value-0.5) > 1e-9 {
		t.Errorf("expected composite 0.5, got %.6f", score.Value)
	}
}

func TestCalculator_SubWeightRenormalization(t *testing.T) {
	calc := newTestCalculator(t)

	// Only piped water measured: its 0.5 sub-weight renormalizes to 1.0, so
	// the water category value equals the piped water value.
	obs := domain.Observation{
		Region: "Assam", Year: 2018, Area: domain.AreaUrban,
		Indicators: map[string]float64{
			domain.IndPipedWater: 40,
		},
	}

	score, breakdown := calc.Score(obs)
	if !score.Defined {
		t.Fatal("expected defined score with one measured category")
	}
	for _, cv := range breakdown {
		if cv.Category == domain.CategoryWater {
			if !cv.Defined {
				t.Fatal("water category should be defined")
			}
			if math.Abs(cv.Value-40) > 1e-9 {
				t.Errorf("expected water value 40, got %.4f", cv.Value)
			}
		}
	}
	// With only water measured the composite collapses to the water value.
	if math.Abs(score.Value-0.4) > 1e-9 {
		t.Errorf("expected composite 0.4, got %.6f", score.Value)
	}
}

func TestCalculator_MissingCategoryRenormalizes(t *testing.T) {
	calc := newTestCalculator(t)

	withElectricity := fullObservation()
	without := withElectricity.Clone()
	delete(without.Indicators, domain.IndElectricity)

	full, _ := calc.Score(withElectricity)
	partial, _ := calc.Score(without)
	if !partial.Defined {
		t.Fatal("score must stay defined when one category is unmeasured")
	}

	// Treating the missing category as zero would drag the score down by the
	// whole electricity weight. Renormalization must not do that.
	zeroTreated := full.Value - 0.15*95/100
	if partial.Value <= zeroTreated {
		t.Errorf("renormalized score %.4f should exceed zero-treatment %.4f", partial.Value, zeroTreated)
	}
}

func TestCalculator_RequireAllCategories(t *testing.T) {
	weights := config.Default().Weights
	weights.RequireAllCategories = true
	calc, err := NewCalculator(weights)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}

	obs := fullObservation()
	delete(obs.Indicators, domain.IndElectricity)

	score, _ := calc.Score(obs)
	if score.Defined {
		t.Error("score must be undefined when a category is missing under require_all_categories")
	}
}

func TestCalculator_NoIndicatorsUndefined(t *testing.T) {
	calc := newTestCalculator(t)

	obs := domain.Observation{Region: "Goa", Year: 2012, Area: domain.AreaCombined, Indicators: map[string]float64{}}
	score, _ := calc.Score(obs)
	if score.Defined {
		t.Errorf("expected undefined score, got %.4f", score.Value)
	}
}

func TestCalculator_Deterministic(t *testing.T) {
	calc := newTestCalculator(t)
	obs := fullObservation()

	first, _ := calc.Score(obs)
	for i := 0; i < 100; i++ {
		again, _ := calc.Score(obs)
		if again != first {
			t.Fatalf("run %d produced %v, first run produced %v", i, again, first)
		}
	}
}

func TestCalculator_ScoreDatasetDoesNotMutateInput(t *testing.T) {
	calc := newTestCalculator(t)
	ds := domain.Dataset{Source: "test", Observations: []domain.Observation{fullObservation()}}

	scored := calc.ScoreDataset(ds)
	if len(scored) != 1 {
		t.Fatalf("expected 1 scored observation, got %d", len(scored))
	}
	if ds.Observations[0].Score.Defined {
		t.Error("input dataset must not be mutated")
	}
	if !scored[0].Observation.Score.Defined {
		t.Error("scored copy should carry the composite score")
	}
}
