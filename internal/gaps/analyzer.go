// Package gaps measures rural-urban disparities per indicator and how they
// evolve across survey years.
package gaps

import (
	"sort"

	"github.com/amenityscan/amenityscan/internal/domain"
)

// Record is one rural-urban differential. Positive gap means urban
// advantaged.
type Record struct {
	Region    string  `json:"region"`
	Year      int     `json:"year"`
	Indicator string  `json:"indicator"`
	Rural     float64 `json:"rural_value"`
	Urban     float64 `json:"urban_value"`
	Gap       float64 `json:"gap"`
}

// Evolution tracks a gap between two chronologically adjacent survey years.
// Positive reduction means the gap narrowed.
type Evolution struct {
	Region    string  `json:"region"`
	Indicator string  `json:"indicator"`
	FromYear  int     `json:"from_year"`
	ToYear    int     `json:"to_year"`
	Reduction float64 `json:"reduction"`
}

// Incomplete marks a (region, year, indicator) where one side is missing.
// The pair is skipped, never treated as a zero gap.
type Incomplete struct {
	Region    string `json:"region"`
	Year      int    `json:"year"`
	Indicator string `json:"indicator"`
	Missing   string `json:"missing"` // which side was absent
}

// Report is the full gap analysis output.
type Report struct {
	Records    []Record     `json:"records"`
	Evolutions []Evolution  `json:"evolutions"`
	Incomplete []Incomplete `json:"incomplete"`
}

// Analyze computes gap records for every (region, year, indicator) where
// both a Rural and an Urban observation exist in the unified dataset, plus
// gap evolution across the configured survey years. Combined rows do not
// participate: a roll-up has no counterpart to diff against.
func Analyze(ds domain.Dataset, surveyYears []int) Report {
	type sideKey struct {
		region string
		year   int
	}
	rural := map[sideKey]domain.Observation{}
	urban := map[sideKey]domain.Observation{}

	var pairs []sideKey
	seen := map[sideKey]bool{}
	for _, obs := range ds.Observations {
		k := sideKey{region: obs.Region, year: obs.Year}
		switch obs.Area {
		case domain.AreaRural:
			rural[k] = obs
		case domain.AreaUrban:
			urban[k] = obs
		default:
			continue
		}
		if !seen[k] {
			seen[k] = true
			pairs = append(pairs, k)
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].region != pairs[j].region {
			return pairs[i].region < pairs[j].region
		}
		return pairs[i].year < pairs[j].year
	})

	var report Report
	// gapIndex supports evolution lookups: (region, indicator, year) -> gap.
	type gapKey struct {
		region    string
		indicator string
		year      int
	}
	gapIndex := map[gapKey]float64{}

	for _, k := range pairs {
		r, haveRural := rural[k]
		u, haveUrban := urban[k]

		for _, ind := range domain.AllIndicators() {
			var rv, uv float64
			var rOK, uOK bool
			if haveRural {
				rv, rOK = r.Indicator(ind)
			}
			if haveUrban {
				uv, uOK = u.Indicator(ind)
			}
			switch {
			case rOK && uOK:
				rec := Record{
					Region:    k.region,
					Year:      k.year,
					Indicator: ind,
					Rural:     rv,
					Urban:     uv,
					Gap:       uv - rv,
				}
				report.Records = append(report.Records, rec)
				gapIndex[gapKey{region: k.region, indicator: ind, year: k.year}] = rec.Gap
			case rOK && !uOK:
				report.Incomplete = append(report.Incomplete, Incomplete{Region: k.region, Year: k.year, Indicator: ind, Missing: string(domain.AreaUrban)})
			case !rOK && uOK:
				report.Incomplete = append(report.Incomplete, Incomplete{Region: k.region, Year: k.year, Indicator: ind, Missing: string(domain.AreaRural)})
			}
		}
	}

	years := append([]int(nil), surveyYears...)
	sort.Ints(years)

	regions := map[string]bool{}
	for _, k := range pairs {
		regions[k.region] = true
	}
	regionList := make([]string, 0, len(regions))
	for r := range regions {
		regionList = append(regionList, r)
	}
	sort.Strings(regionList)

	for _, region := range regionList {
		for _, ind := range domain.AllIndicators() {
			for i := 0; i+1 < len(years); i++ {
				from, to := years[i], years[i+1]
				g1, ok1 := gapIndex[gapKey{region: region, indicator: ind, year: from}]
				g2, ok2 := gapIndex[gapKey{region: region, indicator: ind, year: to}]
				if !ok1 || !ok2 {
					continue
				}
				report.Evolutions = append(report.Evolutions, Evolution{
					Region:    region,
					Indicator: ind,
					FromYear:  from,
					ToYear:    to,
					Reduction: g1 - g2,
				})
			}
		}
	}

	return report
}
