package priority

import (
	"testing"

	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/scoring"
)

func scoredObs(region string, year int, area domain.AreaType, score float64, population int64) scoring.ScoredObservation {
	return scoring.ScoredObservation{
		Observation: domain.Observation{
			Region:     region,
			Year:       year,
			Area:       area,
			Population: population,
			Score:      domain.Score{Value: score, Defined: true},
		},
	}
}

func TestNewClassifier_ThresholdBounds(t *testing.T) {
	for _, bad := range []float64{0, -0.1, 0.71, 1} {
		if _, err := NewClassifier(bad); err == nil {
			t.Errorf("expected error for threshold %.2f", bad)
		}
	}
	for _, ok := range []float64{0.01, 0.5, 0.7} {
		if _, err := NewClassifier(ok); err != nil {
			t.Errorf("threshold %.2f rejected: %v", ok, err)
		}
	}
}

func TestClassifier_TierBoundaries(t *testing.T) {
	c, _ := NewClassifier(0.5)

	cases := []struct {
		score float64
		want  Tier
	}{
		{0.0, TierCritical},
		{0.499999, TierCritical},
		{0.5, TierMedium}, // threshold itself is not critical
		{0.699999, TierMedium},
		{0.7, TierGood}, // 0.7 boundary belongs to good
		{1.0, TierGood},
	}
	for _, tc := range cases {
		if got := c.TierFor(tc.score); got != tc.want {
			t.Errorf("TierFor(%.6f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestClassifier_RankingOrder(t *testing.T) {
	c, _ := NewClassifier(0.5)

	scored := []scoring.ScoredObservation{
		scoredObs("Kerala", 2023, domain.AreaUrban, 0.9, 100),
		scoredObs("Bihar", 2023, domain.AreaRural, 0.3, 500),
		scoredObs("Assam", 2023, domain.AreaRural, 0.3, 900), // same score, more people
		scoredObs("Odisha", 2023, domain.AreaRural, 0.6, 200),
	}

	res := c.Classify(scored)
	if len(res.Entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(res.Entries))
	}

	wantOrder := []string{"Assam", "Bihar", "Odisha", "Kerala"}
	for i, want := range wantOrder {
		if res.Entries[i].Key.Region != want {
			t.Errorf("rank %d = %s, want %s", i, res.Entries[i].Key.Region, want)
		}
	}
	if res.Entries[0].Tier != TierCritical || res.Entries[3].Tier != TierGood {
		t.Error("tier assignment does not match scores")
	}
}

func TestClassifier_TieBreaksByKey(t *testing.T) {
	c, _ := NewClassifier(0.5)

	scored := []scoring.ScoredObservation{
		scoredObs("Tripura", 2023, domain.AreaRural, 0.4, 100),
		scoredObs("Manipur", 2023, domain.AreaRural, 0.4, 100),
	}

	res := c.Classify(scored)
	if res.Entries[0].Key.Region != "Manipur" {
		t.Errorf("equal score and population should order by region, got %s first", res.Entries[0].Key.Region)
	}
}

func TestClassifier_UndefinedScoresReportedSeparately(t *testing.T) {
	c, _ := NewClassifier(0.5)

	undefined := scoring.ScoredObservation{
		Observation: domain.Observation{Region: "Ladakh", Year: 2023, Area: domain.AreaRural},
	}
	res := c.Classify([]scoring.ScoredObservation{undefined, scoredObs("Goa", 2023, domain.AreaUrban, 0.8, 50)})

	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 ranked entry, got %d", len(res.Entries))
	}
	if len(res.InsufficientData) != 1 || res.InsufficientData[0].Region != "Ladakh" {
		t.Errorf("undefined score should land in InsufficientData, got %v", res.InsufficientData)
	}
}

func TestClassifier_ShortfallsOrdered(t *testing.T) {
	c, _ := NewClassifier(0.5)

	breakdown := []scoring.CategoryValue{
		{Category: domain.CategoryWater, Value: 90, Weight: 0.30, Defined: true},      // 0.03
		{Category: domain.CategorySanitation, Value: 20, Weight: 0.20, Defined: true}, // 0.16
		{Category: domain.CategoryHousing, Value: 0, Weight: 0.15, Defined: false},    // unmeasured
	}
	scored := scoredObs("Jharkhand", 2018, domain.AreaRural, 0.4, 300)
	scored.Breakdown = breakdown

	res := c.Classify([]scoring.ScoredObservation{scored})
	sf := res.Entries[0].Shortfalls
	if len(sf) != 2 {
		t.Fatalf("expected 2 shortfalls (unmeasured excluded), got %d", len(sf))
	}
	if sf[0].Category != domain.CategorySanitation {
		t.Errorf("largest shortfall should be sanitation, got %s", sf[0].Category)
	}
	if sf[0].Weighted <= sf[1].Weighted {
		t.Error("shortfalls must be ordered largest first")
	}
}
