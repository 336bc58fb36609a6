package domain

import (
	"fmt"
	"sort"
)

// AreaType classifies an observation as rural, urban, or a combined roll-up.
type AreaType string

const (
	AreaRural    AreaType = "Rural"
	AreaUrban    AreaType = "Urban"
	AreaCombined AreaType = "Combined"
)

// ParseAreaType accepts the canonical spellings plus common lowercase forms.
func ParseAreaType(s string) (AreaType, error) {
	switch s {
	case "Rural", "rural", "RURAL":
		return AreaRural, nil
	case "Urban", "urban", "URBAN":
		return AreaUrban, nil
	case "Combined", "combined", "COMBINED", "Total", "total":
		return AreaCombined, nil
	default:
		return "", fmt.Errorf("unknown area type %q", s)
	}
}

// Key uniquely identifies an observation after merge.
type Key struct {
	Region string   `json:"region"`
	Year   int      `json:"year"`
	Area   AreaType `json:"area_type"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Region, k.Year, k.Area)
}

// Less orders keys by region, then year, then area type.
func (k Key) Less(other Key) bool {
	if k.Region != other.Region {
		return k.Region < other.Region
	}
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Area < other.Area
}

// Score is a composite access score in [0,1]. Defined is false until the
// calculator has produced a value; an undefined score is distinct from 0.
type Score struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// Observation is one (region, year, area-type) record. Indicator values are
// percentages in [0,100]; a missing map key means the indicator was not
// measured, which is different from a measured zero.
type Observation struct {
	Region     string   `json:"region"`
	Year       int      `json:"year"`
	Area       AreaType `json:"area_type"`
	Population int64    `json:"population"`

	// PopulationKnown distinguishes a source reporting zero population from
	// one that did not report population at all.
	PopulationKnown bool `json:"population_known,omitempty"`

	Indicators map[string]float64 `json:"indicators"`
	Score      Score              `json:"composite_score"`

	// Sources lists the source identifiers that contributed to this
	// observation, in contribution order.
	Sources []string `json:"sources,omitempty"`
}

func (o Observation) Key() Key {
	return Key{Region: o.Region, Year: o.Year, Area: o.Area}
}

// Indicator returns the value for a canonical indicator name and whether it
// was measured.
func (o Observation) Indicator(name string) (float64, bool) {
	v, ok := o.Indicators[name]
	return v, ok
}

// Clone returns a deep copy so downstream stages never share mutable state.
func (o Observation) Clone() Observation {
	out := o
	out.Indicators = make(map[string]float64, len(o.Indicators))
	for k, v := range o.Indicators {
		out.Indicators[k] = v
	}
	out.Sources = append([]string(nil), o.Sources...)
	return out
}

// Dataset is an ordered collection of observations from one source (or, after
// merge, from several). It is treated as immutable once produced.
type Dataset struct {
	Source       string        `json:"source"`
	Observations []Observation `json:"observations"`
}

func (d Dataset) Len() int { return len(d.Observations) }

// ByKey indexes the dataset. Later duplicates win; the normalizer and merger
// guarantee key uniqueness so this is only a convenience for lookups.
func (d Dataset) ByKey() map[Key]Observation {
	m := make(map[Key]Observation, len(d.Observations))
	for _, obs := range d.Observations {
		m[obs.Key()] = obs
	}
	return m
}

// Sorted returns a copy with observations in deterministic key order.
func (d Dataset) Sorted() Dataset {
	out := Dataset{Source: d.Source, Observations: make([]Observation, len(d.Observations))}
	copy(out.Observations, d.Observations)
	sort.Slice(out.Observations, func(i, j int) bool {
		return out.Observations[i].Key().Less(out.Observations[j].Key())
	})
	return out
}

// Years returns the distinct years present, ascending.
func (d Dataset) Years() []int {
	seen := map[int]bool{}
	for _, obs := range d.Observations {
		seen[obs.Year] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
