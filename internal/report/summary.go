// Package report rolls pipeline results up into national summaries: total
// deprived households per amenity, rural/urban averages, best and worst
// regions, and progress across survey years.
package report

import (
	"sort"

	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/pipeline"
)

// RegionScore is a region's mean composite score for one year.
type RegionScore struct {
	Region string  `json:"region"`
	Score  float64 `json:"score"`
}

// RegionImprovement tracks composite score change between the first and last
// observed survey years.
type RegionImprovement struct {
	Region   string  `json:"region"`
	FromYear int     `json:"from_year"`
	ToYear   int     `json:"to_year"`
	Change   float64 `json:"change"`
}

// Summary is the roll-up for the latest survey year in a run.
type Summary struct {
	RunID           string                       `json:"run_id"`
	Year            int                          `json:"year"`
	TotalPopulation int64                        `json:"total_population"`
	Deprived        map[string]int64             `json:"deprived_households"` // by indicator
	MeanScoreByArea map[domain.AreaType]float64  `json:"mean_score_by_area"`
	TopRegions      []RegionScore                `json:"top_regions"`
	BottomRegions   []RegionScore                `json:"bottom_regions"`
	Improvements    []RegionImprovement          `json:"fastest_improving"`
	EstimatedCost   map[string]float64           `json:"estimated_cost,omitempty"` // by category
}

// Build computes the summary. costPerHousehold maps category names to an
// intervention cost per deprived household and may be empty. topN bounds the
// best/worst/improving lists.
func Build(res *pipeline.Result, costPerHousehold map[string]float64, topN int) Summary {
	sum := Summary{
		RunID:           res.RunID,
		Deprived:        map[string]int64{},
		MeanScoreByArea: map[domain.AreaType]float64{},
	}

	years := res.Unified.Years()
	if len(years) == 0 {
		return sum
	}
	latest := years[len(years)-1]
	sum.Year = latest

	counts := map[domain.Key]map[string]int64{}
	for _, rec := range res.Deprivation {
		counts[rec.Key] = rec.Households
	}

	areaSum := map[domain.AreaType]float64{}
	areaN := map[domain.AreaType]int{}
	regionSum := map[string]float64{}
	regionN := map[string]int{}
	// region -> year -> (sum, n) for improvement tracking across all years.
	type acc struct {
		sum float64
		n   int
	}
	regionYear := map[string]map[int]*acc{}

	for _, s := range res.Scored {
		obs := s.Observation
		if obs.Score.Defined {
			if regionYear[obs.Region] == nil {
				regionYear[obs.Region] = map[int]*acc{}
			}
			if regionYear[obs.Region][obs.Year] == nil {
				regionYear[obs.Region][obs.Year] = &acc{}
			}
			regionYear[obs.Region][obs.Year].sum += obs.Score.Value
			regionYear[obs.Region][obs.Year].n++
		}

		if obs.Year != latest {
			continue
		}
		// Combined rows are roll-ups of the rural/urban rows; counting them
		// alongside would double population and deprivation totals.
		if obs.Area != domain.AreaCombined {
			sum.TotalPopulation += obs.Population
			for ind, n := range counts[obs.Key()] {
				sum.Deprived[ind] += n
			}
		}
		if obs.Score.Defined {
			areaSum[obs.Area] += obs.Score.Value
			areaN[obs.Area]++
			regionSum[obs.Region] += obs.Score.Value
			regionN[obs.Region]++
		}
	}

	for area, total := range areaSum {
		sum.MeanScoreByArea[area] = total / float64(areaN[area])
	}

	scores := make([]RegionScore, 0, len(regionSum))
	for region, total := range regionSum {
		scores = append(scores, RegionScore{Region: region, Score: total / float64(regionN[region])})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Region < scores[j].Region
	})
	sum.TopRegions = firstN(scores, topN)
	reversed := make([]RegionScore, len(scores))
	for i, s := range scores {
		reversed[len(scores)-1-i] = s
	}
	sum.BottomRegions = firstN(reversed, topN)

	var improvements []RegionImprovement
	for region, byYear := range regionYear {
		var regionYears []int
		for y := range byYear {
			regionYears = append(regionYears, y)
		}
		if len(regionYears) < 2 {
			continue
		}
		sort.Ints(regionYears)
		first, last := regionYears[0], regionYears[len(regionYears)-1]
		firstMean := byYear[first].sum / float64(byYear[first].n)
		lastMean := byYear[last].sum / float64(byYear[last].n)
		improvements = append(improvements, RegionImprovement{
			Region:   region,
			FromYear: first,
			ToYear:   last,
			Change:   lastMean - firstMean,
		})
	}
	sort.Slice(improvements, func(i, j int) bool {
		if improvements[i].Change != improvements[j].Change {
			return improvements[i].Change > improvements[j].Change
		}
		return improvements[i].Region < improvements[j].Region
	})
	sum.Improvements = firstNImprovements(improvements, topN)

	if len(costPerHousehold) > 0 {
		sum.EstimatedCost = map[string]float64{}
		for _, cat := range domain.Categories() {
			cost, ok := costPerHousehold[string(cat)]
			if !ok {
				continue
			}
			// A household lacking any indicator in the category needs the
			// intervention, so the worst indicator is the floor.
			var worst int64
			for _, ind := range domain.IndicatorsIn(cat) {
				if n := sum.Deprived[ind]; n > worst {
					worst = n
				}
			}
			sum.EstimatedCost[string(cat)] = float64(worst) * cost
		}
	}

	return sum
}

func firstN(list []RegionScore, n int) []RegionScore {
	if len(list) > n {
		list = list[:n]
	}
	out := make([]RegionScore, len(list))
	copy(out, list)
	return out
}

func firstNImprovements(list []RegionImprovement, n int) []RegionImprovement {
	if len(list) > n {
		list = list[:n]
	}
	out := make([]RegionImprovement, len(list))
	copy(out, list)
	return out
}
