// Package merge combines normalized datasets from heterogeneous sources into
// one unified dataset keyed by (region, year, area_type). The union is a
// full outer join: a key present in any source appears in the result.
// Field-level disagreements are resolved per the configured policy, resolved
// independently for each field.
package merge

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
)

// populationField names the pseudo-field used for population conflicts in
// reports and diagnostics.
const populationField = "population"

// ResolvedConflict records one field-level disagreement and how it was
// settled. Diagnostic data, not an error.
type ResolvedConflict struct {
	Key      domain.Key         `json:"key"`
	Field    string             `json:"field"`
	Values   map[string]float64 `json:"values"` // by source name
	Resolved float64            `json:"resolved"`
	Policy   string             `json:"policy"`
}

// Report is the merge diagnostic output: every resolved conflict, every
// data-quality warning, and the keys contributed by each source.
type Report struct {
	Conflicts    []ResolvedConflict `json:"conflicts"`
	Warnings     []domain.Warning   `json:"warnings"`
	SourceCounts map[string]int     `json:"source_counts"`
	TotalKeys    int                `json:"total_keys"`
}

// Merger performs the multi-source union.
type Merger struct {
	cfg      config.MergeConfig
	priority map[string]int // source name -> rank, lower wins
	vintage  map[string]int // source name -> declared vintage year
	log      zerolog.Logger
}

// New builds a merger. Source priority order and vintages come from the
// source descriptors; an unknown policy has already been rejected by config
// validation, but the check is repeated here so the package stands alone.
func New(cfg config.MergeConfig, sources []config.SourceMapping, log zerolog.Logger) (*Merger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	priority := make(map[string]int, len(cfg.SourcePriority))
	for i, name := range cfg.SourcePriority {
		priority[name] = i
	}
	vintage := make(map[string]int, len(sources))
	for _, src := range sources {
		vintage[src.Name] = src.Vintage
	}
	return &Merger{cfg: cfg, priority: priority, vintage: vintage, log: log}, nil
}

// contribution is one source's value for one field of one key.
type contribution struct {
	source string
	value  float64
}

// Merge unions the given datasets. The error return is non-nil only under
// the fail-on-conflict policy; everything else lands in the report.
func (m *Merger) Merge(datasets ...domain.Dataset) (domain.Dataset, *Report, error) {
	report := &Report{SourceCounts: map[string]int{}}

	// Gather per-key, per-field contributions in dataset order.
	type fieldMap map[string][]contribution
	merged := map[domain.Key]fieldMap{}
	popByKey := map[domain.Key][]contribution{}
	sourcesByKey := map[domain.Key][]string{}

	var keys []domain.Key
	for _, ds := range datasets {
		report.SourceCounts[ds.Source] += ds.Len()
		for _, obs := range ds.Observations {
			key := obs.Key()
			if _, ok := merged[key]; !ok {
				merged[key] = fieldMap{}
				keys = append(keys, key)
			}
			sourcesByKey[key] = appendUnique(sourcesByKey[key], ds.Source)
			for name, val := range obs.Indicators {
				merged[key][name] = append(merged[key][name], contribution{source: ds.Source, value: val})
			}
			if obs.PopulationKnown {
				popByKey[key] = append(popByKey[key], contribution{source: ds.Source, value: float64(obs.Population)})
			}
		}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := domain.Dataset{Source: "merged"}
	for _, key := range keys {
		obs := domain.Observation{
			Region:     key.Region,
			Year:       key.Year,
			Area:       key.Area,
			Indicators: map[string]float64{},
			Sources:    sourcesByKey[key],
		}

		fields := merged[key]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			val, err := m.resolveField(key, name, fields[name], report)
			if err != nil {
				return domain.Dataset{}, report, err
			}
			obs.Indicators[name] = val
		}

		if contribs := popByKey[key]; len(contribs) > 0 {
			m.checkPopulationTolerance(key, contribs, report)
			pop, err := m.resolveField(key, populationField, contribs, report)
			if err != nil {
				return domain.Dataset{}, report, err
			}
			obs.Population = int64(math.Floor(pop + 0.5))
			obs.PopulationKnown = true
		}

		out.Observations = append(out.Observations, obs)
	}

	report.TotalKeys = len(out.Observations)
	m.log.Debug().
		Int("keys", report.TotalKeys).
		Int("conflicts", len(report.Conflicts)).
		Int("warnings", len(report.Warnings)).
		Msg("merge complete")
	return out, report, nil
}

// resolveField settles one field. A field supplied by a single source, or by
// several sources agreeing on the value, is copied through unchanged.
func (m *Merger) resolveField(key domain.Key, field string, contribs []contribution, report *Report) (float64, error) {
	if len(contribs) == 1 {
		return contribs[0].value, nil
	}
	if agreed, ok := allEqual(contribs); ok {
		return agreed, nil
	}

	values := make(map[string]float64, len(contribs))
	sources := make([]string, 0, len(contribs))
	for _, c := range contribs {
		values[c.source] = c.value
		sources = append(sources, c.source)
	}

	var resolved float64
	switch m.cfg.Policy {
	case config.PolicyFailOnConflict:
		return 0, &domain.ConflictError{Key: key, Field: field, Sources: sources}
	case config.PolicyAverage:
		sum := 0.0
		for _, c := range contribs {
			sum += c.value
		}
		resolved = sum / float64(len(contribs))
	case config.PolicyPreferLatest:
		resolved = m.pickLatest(contribs).value
	case config.PolicyPreferPriority:
		resolved = m.pickByPriority(contribs).value
	default:
		return 0, fmt.Errorf("unknown conflict policy %q", m.cfg.Policy)
	}

	report.Conflicts = append(report.Conflicts, ResolvedConflict{
		Key:      key,
		Field:    field,
		Values:   values,
		Resolved: resolved,
		Policy:   m.cfg.Policy,
	})
	return resolved, nil
}

// pickByPriority chooses the contribution from the highest-priority source.
// Sources absent from the priority order rank below every listed source;
// remaining ties fall back to contribution order for determinism.
func (m *Merger) pickByPriority(contribs []contribution) contribution {
	best := contribs[0]
	bestRank := m.rank(best.source)
	for _, c := range contribs[1:] {
		if r := m.rank(c.source); r < bestRank {
			best, bestRank = c, r
		}
	}
	return best
}

// pickLatest chooses the contribution from the source with the newest
// declared vintage, breaking ties by priority.
func (m *Merger) pickLatest(contribs []contribution) contribution {
	best := contribs[0]
	for _, c := range contribs[1:] {
		bv, cv := m.vintage[best.source], m.vintage[c.source]
		if cv > bv || (cv == bv && m.rank(c.source) < m.rank(best.source)) {
			best = c
		}
	}
	return best
}

func (m *Merger) rank(source string) int {
	if r, ok := m.priority[source]; ok {
		return r
	}
	return len(m.priority) + 1
}

// checkPopulationTolerance warns when sources disagree on population by more
// than the configured relative tolerance. The merge still proceeds.
func (m *Merger) checkPopulationTolerance(key domain.Key, contribs []contribution, report *Report) {
	if len(contribs) < 2 {
		return
	}
	lo, hi := contribs[0].value, contribs[0].value
	for _, c := range contribs[1:] {
		lo = math.Min(lo, c.value)
		hi = math.Max(hi, c.value)
	}
	if hi <= 0 {
		return
	}
	if (hi-lo)/hi > m.cfg.PopulationTolerance {
		w := domain.Warning{
			Key:     key,
			Field:   populationField,
			Message: fmt.Sprintf("population mismatch across sources: %.0f vs %.0f exceeds %.0f%% tolerance", lo, hi, m.cfg.PopulationTolerance*100),
		}
		report.Warnings = append(report.Warnings, w)
		m.log.Warn().Str("key", key.String()).Str("field", w.Field).Msg(w.Message)
	}
}

func allEqual(contribs []contribution) (float64, bool) {
	first := contribs[0].value
	for _, c := range contribs[1:] {
		if c.value != first {
			return 0, false
		}
	}
	return first, true
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
