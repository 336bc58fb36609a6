package config

import (
	"time"

	"github.com/amenityscan/amenityscan/internal/domain"
)

// Default weighting follows the Economic Survey Bare Necessities Index
// methodology: water 30%, sanitation 20%, housing 15%, electricity 15%,
// clean cooking fuel 10%, food security 10%.
var defaultCategoryWeights = map[string]float64{
	string(domain.CategoryWater):        0.30,
	string(domain.CategorySanitation):   0.20,
	string(domain.CategoryHousing):      0.15,
	string(domain.CategoryElectricity):  0.15,
	string(domain.CategoryCleanFuel):    0.10,
	string(domain.CategoryFoodSecurity): 0.10,
}

var defaultSubWeights = map[domain.Category]map[string]float64{
	domain.CategoryWater: {
		domain.IndPipedWater: 0.5,
		domain.IndSafeWater:  0.5,
	},
	domain.CategorySanitation: {
		domain.IndToilet: 1.0,
	},
	domain.CategoryHousing: {
		domain.IndPuccaHousing: 1.0,
	},
	domain.CategoryElectricity: {
		domain.IndElectricity: 1.0,
	},
	domain.CategoryCleanFuel: {
		domain.IndCleanFuel: 1.0,
	},
	domain.CategoryFoodSecurity: {
		domain.IndFoodSecure: 1.0,
	},
}

// Default returns the baseline configuration. Callers still must supply
// source mappings before running the pipeline.
func Default() *Config {
	return &Config{
		Weights: WeightsConfig{
			Categories: copyWeights(defaultCategoryWeights),
		},
		Analysis: AnalysisConfig{
			AvgHouseholdSize:  5,
			PriorityThreshold: 0.5,
			SurveyYears:       []int{2012, 2018, 2023},
		},
		Merge: MergeConfig{
			Policy:              PolicyPreferPriority,
			PopulationTolerance: 0.05,
		},
		Runtime: RuntimeConfig{
			Server: ServerSettings{Host: "127.0.0.1", Port: 8080},
			DB: DBSettings{
				Enabled:         false,
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				QueryTimeout:    30 * time.Second,
			},
			Redis: RedisSettings{
				TableTTL: 15 * time.Minute,
			},
			Portal: PortalSettings{
				BaseURL:   "https://api.data.gov.in",
				RateLimit: 5,
				Burst:     5,
			},
		},
	}
}

func copyWeights(src map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
