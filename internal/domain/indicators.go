package domain

// Category groups indicators for composite scoring.
type Category string

const (
	CategoryWater        Category = "water"
	CategorySanitation   Category = "sanitation"
	CategoryHousing      Category = "housing"
	CategoryElectricity  Category = "electricity"
	CategoryCleanFuel    Category = "clean_fuel"
	CategoryFoodSecurity Category = "food_security"
)

// Canonical indicator names. Source columns are mapped onto these by the
// normalizer; everything downstream speaks only this vocabulary.
const (
	IndPipedWater    = "piped_water_access"
	IndSafeWater     = "safe_drinking_water"
	IndWaterPremises = "water_within_premises"
	IndToilet        = "toilet_access"
	IndSepticTank    = "septic_tank_access"
	IndPuccaHousing  = "pucca_housing"
	IndElectricity   = "electricity_access"
	IndCleanFuel     = "lpg_access"
	IndFoodSecure    = "food_secure_households"
)

var categoryOrder = []Category{
	CategoryWater,
	CategorySanitation,
	CategoryHousing,
	CategoryElectricity,
	CategoryCleanFuel,
	CategoryFoodSecurity,
}

var categoryIndicators = map[Category][]string{
	CategoryWater:        {IndPipedWater, IndSafeWater, IndWaterPremises},
	CategorySanitation:   {IndToilet, IndSepticTank},
	CategoryHousing:      {IndPuccaHousing},
	CategoryElectricity:  {IndElectricity},
	CategoryCleanFuel:    {IndCleanFuel},
	CategoryFoodSecurity: {IndFoodSecure},
}

var indicatorCategory = func() map[string]Category {
	m := make(map[string]Category)
	for cat, inds := range categoryIndicators {
		for _, ind := range inds {
			m[ind] = cat
		}
	}
	return m
}()

// Categories returns all scoring categories in stable order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// IndicatorsIn returns the canonical indicators of a category in stable order.
func IndicatorsIn(cat Category) []string {
	out := make([]string, len(categoryIndicators[cat]))
	copy(out, categoryIndicators[cat])
	return out
}

// CategoryOf reports which category a canonical indicator belongs to.
func CategoryOf(indicator string) (Category, bool) {
	cat, ok := indicatorCategory[indicator]
	return cat, ok
}

// KnownIndicator reports whether a name is part of the canonical vocabulary.
func KnownIndicator(name string) bool {
	_, ok := indicatorCategory[name]
	return ok
}

// AllIndicators returns every canonical indicator in category order.
func AllIndicators() []string {
	var out []string
	for _, cat := range categoryOrder {
		out = append(out, categoryIndicators[cat]...)
	}
	return out
}
