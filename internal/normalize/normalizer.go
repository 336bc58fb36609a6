// Package normalize maps raw source tables onto the canonical observation
// schema. It is a pure transformation: the same rows and mapping always
// produce the same dataset, and nothing outside the result is touched.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
)

// RawRow is one row of a source table before normalization. Values may be
// strings (CSV), numbers (portal JSON), or json.Number.
type RawRow map[string]any

// Result carries the normalized dataset plus everything that went wrong on
// the way. Errors are row-level findings, not fatal conditions; the caller
// decides whether to drop or halt.
type Result struct {
	Dataset  domain.Dataset
	Errors   []*domain.QualityError
	Warnings []domain.Warning

	// Excluded lists keys of rows that were dropped entirely.
	Excluded []domain.Key
}

// Normalizer translates one source's rows using its column mapping.
type Normalizer struct {
	mapping    config.SourceMapping
	knownYears func(int) bool

	// byField inverts the column mapping: canonical field -> source column.
	byField map[string]string
}

// New builds a normalizer for a validated source mapping. The knownYear
// predicate comes from the survey-year configuration.
func New(mapping config.SourceMapping, knownYear func(int) bool) (*Normalizer, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	byField := make(map[string]string, len(mapping.Columns))
	for col, rule := range mapping.Columns {
		byField[rule.Field] = col
	}
	return &Normalizer{mapping: mapping, knownYears: knownYear, byField: byField}, nil
}

// Normalize converts raw rows into a dataset of canonical observations.
// Unrecognized source columns are dropped. Missing required columns yield an
// absent indicator and a warning, never a zero. Rows with an unusable key,
// a negative population, or an out-of-range percentage are excluded and
// reported by key.
func (n *Normalizer) Normalize(rows []RawRow) Result {
	res := Result{Dataset: domain.Dataset{Source: n.mapping.Name}}

	seen := map[domain.Key]bool{}
	for i, row := range rows {
		obs, errs, warns, ok := n.normalizeRow(i, row)
		res.Warnings = append(res.Warnings, warns...)
		res.Errors = append(res.Errors, errs...)
		if !ok {
			res.Excluded = append(res.Excluded, obs.Key())
			continue
		}
		if seen[obs.Key()] {
			// Two rows for the same key within a single source would
			// silently overwrite each other downstream.
			res.Errors = append(res.Errors, &domain.QualityError{Key: obs.Key(), Field: "key", Reason: "duplicate (region, year, area_type) row in source"})
			res.Excluded = append(res.Excluded, obs.Key())
			continue
		}
		seen[obs.Key()] = true
		res.Dataset.Observations = append(res.Dataset.Observations, obs)
	}
	res.Dataset = res.Dataset.Sorted()
	return res
}

func (n *Normalizer) normalizeRow(idx int, row RawRow) (domain.Observation, []*domain.QualityError, []domain.Warning, bool) {
	var errs []*domain.QualityError
	var warns []domain.Warning

	obs := domain.Observation{
		Indicators: map[string]float64{},
		Sources:    []string{n.mapping.Name},
	}

	region, _ := n.rawValue(row, "region")
	obs.Region = strings.TrimSpace(toString(region))
	if obs.Region == "" {
		key := domain.Key{Region: fmt.Sprintf("row:%d", idx), Area: ""}
		errs = append(errs, &domain.QualityError{Key: key, Field: "region", Reason: "empty region identifier"})
		return obs, errs, warns, false
	}

	yearRaw, _ := n.rawValue(row, "year")
	year, err := toFloat(yearRaw)
	if err != nil {
		errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: "year", Reason: fmt.Sprintf("unparseable year %v", yearRaw)})
		return obs, errs, warns, false
	}
	obs.Year = int(year)
	if n.knownYears != nil && !n.knownYears(obs.Year) {
		errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: "year", Reason: fmt.Sprintf("year %d is not in the configured survey-year set", obs.Year)})
		return obs, errs, warns, false
	}

	areaRaw, _ := n.rawValue(row, "area_type")
	area, err := domain.ParseAreaType(strings.TrimSpace(toString(areaRaw)))
	if err != nil {
		errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: "area_type", Reason: err.Error()})
		return obs, errs, warns, false
	}
	obs.Area = area

	if col, ok := n.byField["population"]; ok {
		rule := n.mapping.Columns[col]
		raw, present := row[col]
		switch {
		case !present || isEmpty(raw):
			if rule.Required {
				warns = append(warns, domain.Warning{Key: obs.Key(), Field: "population", Message: "required column missing, population left unset"})
			}
		default:
			pop, err := toFloat(raw)
			if err != nil {
				errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: "population", Reason: fmt.Sprintf("non-numeric value %v", raw)})
			} else if pop < 0 {
				errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: "population", Reason: fmt.Sprintf("negative population %.0f", pop)})
				return obs, errs, warns, false
			} else {
				obs.Population = int64(pop * rule.EffectiveScale())
				obs.PopulationKnown = true
			}
		}
	}

	for col, rule := range n.mapping.Columns {
		if !domain.KnownIndicator(rule.Field) {
			continue
		}
		raw, present := row[col]
		if !present || isEmpty(raw) {
			// Absent, not zero.
			if rule.Required {
				warns = append(warns, domain.Warning{Key: obs.Key(), Field: rule.Field, Message: "required column missing, indicator recorded as absent"})
			}
			continue
		}
		val, err := toFloat(raw)
		if err != nil {
			// Coercion failure is flagged on the row; the indicator stays
			// absent and the row itself survives.
			errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: rule.Field, Reason: fmt.Sprintf("non-numeric value %v", raw)})
			continue
		}
		val *= rule.EffectiveScale()
		if val < 0 || val > 100 {
			errs = append(errs, &domain.QualityError{Key: obs.Key(), Field: rule.Field, Reason: fmt.Sprintf("access percentage %.2f outside [0,100]", val)})
			return obs, errs, warns, false
		}
		obs.Indicators[rule.Field] = val
	}

	return obs, errs, warns, true
}

func (n *Normalizer) rawValue(row RawRow, field string) (any, bool) {
	col, ok := n.byField[field]
	if !ok {
		return nil, false
	}
	v, ok := row[col]
	return v, ok
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", t, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
