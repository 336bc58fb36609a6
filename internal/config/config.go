// Package config loads and validates all tunable inputs of the scoring
// engine. Every constant the computation depends on is explicit here; there
// are no hidden global defaults. Validation runs before any data is touched
// and violations surface as domain.ConfigError.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amenityscan/amenityscan/internal/domain"
)

// WeightSumTolerance bounds the allowed deviation of a weight table from 1.0.
const WeightSumTolerance = 1e-6

// GoodTierFloor is the fixed upper tier boundary. It is policy, not
// configuration, so tier semantics stay stable across reports.
const GoodTierFloor = 0.7

// Config is the full configuration surface of a pipeline run.
type Config struct {
	Weights  WeightsConfig   `yaml:"weights"`
	Analysis AnalysisConfig  `yaml:"analysis"`
	Merge    MergeConfig     `yaml:"merge"`
	Sources  []SourceMapping `yaml:"sources"`
	Runtime  RuntimeConfig   `yaml:"runtime"`
}

// WeightsConfig holds the composite index weighting scheme: one weight per
// category summing to 1.0, and sub-weights per category over that category's
// canonical indicators, each sub-table summing to 1.0.
type WeightsConfig struct {
	Categories map[string]float64            `yaml:"categories"`
	Sub        map[string]map[string]float64 `yaml:"sub_weights"`

	// RequireAllCategories makes the composite score undefined whenever any
	// whole category is unmeasured. When false (the default) category
	// weights are renormalized over measured categories and the score stays
	// defined as long as at least one category is measured.
	RequireAllCategories bool `yaml:"require_all_categories"`
}

// AnalysisConfig carries the constants of the derived metrics.
type AnalysisConfig struct {
	AvgHouseholdSize  float64 `yaml:"avg_household_size"`
	PriorityThreshold float64 `yaml:"priority_threshold"`
	SurveyYears       []int   `yaml:"survey_years"`

	// CostPerHousehold maps category name to an estimated intervention cost
	// per deprived household, used only by the summary report. Optional.
	CostPerHousehold map[string]float64 `yaml:"cost_per_household"`
}

// MergeConfig controls multi-source conflict resolution.
type MergeConfig struct {
	Policy string `yaml:"policy"`

	// SourcePriority orders source names from highest to lowest priority for
	// the prefer-highest-priority-source policy.
	SourcePriority []string `yaml:"source_priority"`

	// PopulationTolerance is the relative mismatch between population values
	// from different sources above which a data-quality warning is recorded.
	PopulationTolerance float64 `yaml:"population_tolerance"`
}

// Recognized conflict resolution policies.
const (
	PolicyPreferLatest   = "prefer-latest-source"
	PolicyPreferPriority = "prefer-highest-priority-source"
	PolicyAverage        = "average"
	PolicyFailOnConflict = "fail-on-conflict"
)

// SourceMapping describes one source table: where it comes from and how its
// columns translate into the canonical observation schema.
type SourceMapping struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Vintage is the survey vintage year declared by the publisher, used to
	// decide "latest" under prefer-latest-source.
	Vintage int `yaml:"vintage"`

	// Path locates a CSV file for census and survey sources.
	Path string `yaml:"path"`

	// DatasetID identifies a portal-api dataset.
	DatasetID string `yaml:"dataset_id"`

	// Columns maps source column names to canonical fields. Source columns
	// not listed here are dropped.
	Columns map[string]ColumnRule `yaml:"columns"`
}

// Source kinds. All of them produce the same thing: a raw table plus this
// column mapping.
const (
	SourceCensus    = "census"
	SourceSurvey    = "survey"
	SourcePortalAPI = "portal_api"
)

// ColumnRule translates one source column into a canonical field.
type ColumnRule struct {
	// Field is a canonical field name: region, year, area_type, population,
	// or one of the canonical indicator names.
	Field string `yaml:"field"`

	// Scale multiplies numeric values to convert units into percentages,
	// e.g. 100 for sources reporting fractions. Zero means 1.
	Scale float64 `yaml:"scale"`

	// Required rows missing this column get the indicator recorded as
	// absent and a data-quality warning, never a defaulted zero.
	Required bool `yaml:"required"`
}

// EffectiveScale returns the unit conversion factor, defaulting to identity.
func (r ColumnRule) EffectiveScale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// RuntimeConfig configures the collaborators around the core: the read-only
// HTTP surface, the optional Postgres sink, the source-table cache, and the
// open-data portal client.
type RuntimeConfig struct {
	Server ServerSettings `yaml:"server"`
	DB     DBSettings     `yaml:"db"`
	Redis  RedisSettings  `yaml:"redis"`
	Portal PortalSettings `yaml:"portal"`
}

type ServerSettings struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBSettings struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

type RedisSettings struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TableTTL time.Duration `yaml:"table_ttl"`
}

type PortalSettings struct {
	BaseURL   string  `yaml:"base_url"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// Load reads configuration from per-concern YAML files in dir. A missing
// file falls back to defaults; sources.yaml is only required when the caller
// actually runs the pipeline. The returned config is already validated.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if err := loadFile(filepath.Join(dir, "weights.yaml"), &cfg.Weights); err != nil {
		return nil, fmt.Errorf("load weights config: %w", err)
	}
	if err := loadFile(filepath.Join(dir, "analysis.yaml"), &cfg.Analysis); err != nil {
		return nil, fmt.Errorf("load analysis config: %w", err)
	}
	if err := loadFile(filepath.Join(dir, "merge.yaml"), &cfg.Merge); err != nil {
		return nil, fmt.Errorf("load merge config: %w", err)
	}
	var sources struct {
		Sources []SourceMapping `yaml:"sources"`
	}
	if err := loadFile(filepath.Join(dir, "sources.yaml"), &sources); err != nil {
		return nil, fmt.Errorf("load sources config: %w", err)
	}
	if sources.Sources != nil {
		cfg.Sources = sources.Sources
	}
	if err := loadFile(filepath.Join(dir, "runtime.yaml"), &cfg.Runtime); err != nil {
		return nil, fmt.Errorf("load runtime config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// Validate checks the whole configuration surface and fails fast with a
// ConfigError before any data is processed.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	if err := c.Merge.Validate(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := range c.Sources {
		src := &c.Sources[i]
		if err := src.Validate(); err != nil {
			return err
		}
		if seen[src.Name] {
			return domain.NewConfigError("sources", "duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}

// Validate enforces the weight-sum invariants. Weights that do not sum to
// 1.0 within tolerance are a configuration error, never silently
// renormalized.
func (w WeightsConfig) Validate() error {
	if len(w.Categories) == 0 {
		return domain.NewConfigError("weights.categories", "no category weights configured")
	}
	sum := 0.0
	for name, weight := range w.Categories {
		if _, ok := knownCategory(name); !ok {
			return domain.NewConfigError("weights.categories", "unknown category %q", name)
		}
		if weight < 0 || weight > 1 {
			return domain.NewConfigError("weights.categories", "weight for %q is %.4f, must be in [0,1]", name, weight)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return domain.NewConfigError("weights.categories", "weights sum to %.6f, expected 1.000000", sum)
	}

	for catName, subs := range w.Sub {
		cat, ok := knownCategory(catName)
		if !ok {
			return domain.NewConfigError("weights.sub_weights", "unknown category %q", catName)
		}
		if len(subs) == 0 {
			return domain.NewConfigError("weights.sub_weights", "category %q has an empty sub-weight table", catName)
		}
		subSum := 0.0
		for ind, weight := range subs {
			indCat, known := domain.CategoryOf(ind)
			if !known || indCat != cat {
				return domain.NewConfigError("weights.sub_weights", "indicator %q is not part of category %q", ind, catName)
			}
			if weight < 0 || weight > 1 {
				return domain.NewConfigError("weights.sub_weights", "sub-weight for %q is %.4f, must be in [0,1]", ind, weight)
			}
			subSum += weight
		}
		if math.Abs(subSum-1.0) > WeightSumTolerance {
			return domain.NewConfigError("weights.sub_weights", "category %q sub-weights sum to %.6f, expected 1.000000", catName, subSum)
		}
	}
	return nil
}

// SubWeights returns the configured sub-weight table for a category, falling
// back to the defaults for categories left unconfigured.
func (w WeightsConfig) SubWeights(cat domain.Category) map[string]float64 {
	if subs, ok := w.Sub[string(cat)]; ok {
		return subs
	}
	return defaultSubWeights[cat]
}

func (a AnalysisConfig) Validate() error {
	if a.AvgHouseholdSize <= 0 {
		return domain.NewConfigError("analysis.avg_household_size", "must be > 0, got %.2f", a.AvgHouseholdSize)
	}
	if a.PriorityThreshold <= 0 || a.PriorityThreshold > GoodTierFloor {
		return domain.NewConfigError("analysis.priority_threshold", "must be in (0, %.1f], got %.2f", GoodTierFloor, a.PriorityThreshold)
	}
	if len(a.SurveyYears) == 0 {
		return domain.NewConfigError("analysis.survey_years", "at least one survey year is required")
	}
	if !sort.IntsAreSorted(a.SurveyYears) {
		return domain.NewConfigError("analysis.survey_years", "years must be ascending")
	}
	for cat := range a.CostPerHousehold {
		if _, ok := knownCategory(cat); !ok {
			return domain.NewConfigError("analysis.cost_per_household", "unknown category %q", cat)
		}
	}
	return nil
}

// KnownYear reports whether a year belongs to the configured survey-year set.
func (a AnalysisConfig) KnownYear(year int) bool {
	for _, y := range a.SurveyYears {
		if y == year {
			return true
		}
	}
	return false
}

func (m MergeConfig) Validate() error {
	switch m.Policy {
	case PolicyPreferLatest, PolicyPreferPriority, PolicyAverage, PolicyFailOnConflict:
	default:
		return domain.NewConfigError("merge.policy", "unknown conflict policy %q", m.Policy)
	}
	if m.PopulationTolerance < 0 || m.PopulationTolerance >= 1 {
		return domain.NewConfigError("merge.population_tolerance", "must be in [0,1), got %.3f", m.PopulationTolerance)
	}
	return nil
}

func (s SourceMapping) Validate() error {
	if s.Name == "" {
		return domain.NewConfigError("sources", "source name is required")
	}
	switch s.Kind {
	case SourceCensus, SourceSurvey:
		if s.Path == "" {
			return domain.NewConfigError("sources", "source %q kind %q requires a path", s.Name, s.Kind)
		}
	case SourcePortalAPI:
		if s.DatasetID == "" {
			return domain.NewConfigError("sources", "source %q requires a dataset_id", s.Name)
		}
	default:
		return domain.NewConfigError("sources", "source %q has unknown kind %q", s.Name, s.Kind)
	}
	if len(s.Columns) == 0 {
		return domain.NewConfigError("sources", "source %q has no column mappings", s.Name)
	}
	mapped := map[string]bool{}
	for col, rule := range s.Columns {
		switch rule.Field {
		case "region", "year", "area_type", "population":
		default:
			if !domain.KnownIndicator(rule.Field) {
				return domain.NewConfigError("sources", "source %q column %q maps to unknown field %q", s.Name, col, rule.Field)
			}
		}
		if mapped[rule.Field] {
			return domain.NewConfigError("sources", "source %q maps field %q more than once", s.Name, rule.Field)
		}
		mapped[rule.Field] = true
	}
	for _, required := range []string{"region", "year", "area_type"} {
		if !mapped[required] {
			return domain.NewConfigError("sources", "source %q does not map the %s field", s.Name, required)
		}
	}
	return nil
}

func knownCategory(name string) (domain.Category, bool) {
	for _, cat := range domain.Categories() {
		if string(cat) == name {
			return cat, true
		}
	}
	return "", false
}
