// Package pipeline runs the full scoring flow: normalize each source table,
// merge, score, estimate deprivation, classify priorities, and analyze gaps.
// Every stage is a pure transformation over an immutable input collection and
// runs to completion before the next starts; independent runs (different
// years or regions) may execute in parallel with no coordination because no
// stage shares mutable state.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/deprivation"
	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/gaps"
	"github.com/amenityscan/amenityscan/internal/merge"
	"github.com/amenityscan/amenityscan/internal/normalize"
	"github.com/amenityscan/amenityscan/internal/priority"
	"github.com/amenityscan/amenityscan/internal/scoring"
)

// SourceTable pairs a raw table with the mapping that describes it. Tables
// are already materialized; the pipeline itself performs no I/O.
type SourceTable struct {
	Mapping config.SourceMapping
	Rows    []normalize.RawRow
}

// Diagnostics aggregates every non-fatal finding of a run, each attributable
// to a specific (region, year, area_type, field).
type Diagnostics struct {
	Errors    []*domain.QualityError   `json:"errors"`
	Warnings  []domain.Warning         `json:"warnings"`
	Excluded  []domain.Key             `json:"excluded_rows"`
	Conflicts []merge.ResolvedConflict `json:"conflicts"`
}

// Result is the decision-ready output of one run.
type Result struct {
	RunID       string
	Started     time.Time
	Completed   time.Time
	Unified     domain.Dataset
	Scored      []scoring.ScoredObservation
	Deprivation []deprivation.Record
	Priorities  priority.Result
	Gaps        gaps.Report
	MergeReport *merge.Report
	Diagnostics Diagnostics
}

// Observer receives stage instrumentation. The metrics registry implements
// it; a nil observer disables instrumentation.
type Observer interface {
	StageDone(stage, result string, d time.Duration)
	RowsProcessed(stage string, n int)
}

// Pipeline wires the validated components together. Construction fails fast
// on any configuration error, before data is touched.
type Pipeline struct {
	cfg        *config.Config
	calculator *scoring.Calculator
	estimator  *deprivation.Estimator
	classifier *priority.Classifier
	merger     *merge.Merger
	observer   Observer
	log        zerolog.Logger
}

// New validates the configuration and builds a pipeline.
func New(cfg *config.Config, log zerolog.Logger, observer Observer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	calculator, err := scoring.NewCalculator(cfg.Weights)
	if err != nil {
		return nil, err
	}
	estimator, err := deprivation.NewEstimator(cfg.Analysis.AvgHouseholdSize)
	if err != nil {
		return nil, err
	}
	classifier, err := priority.NewClassifier(cfg.Analysis.PriorityThreshold)
	if err != nil {
		return nil, err
	}
	merger, err := merge.New(cfg.Merge, cfg.Sources, log)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:        cfg,
		calculator: calculator,
		estimator:  estimator,
		classifier: classifier,
		merger:     merger,
		observer:   observer,
		log:        log,
	}, nil
}

// Run executes every stage over the given source tables. Cancellation
// abandons the in-flight batch; there is no partial state to roll back.
func (p *Pipeline) Run(ctx context.Context, tables []SourceTable) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}
	log := p.log.With().Str("run_id", res.RunID).Logger()

	// Normalize each source.
	datasets := make([]domain.Dataset, 0, len(tables))
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		normalizer, err := normalize.New(table.Mapping, p.cfg.Analysis.KnownYear)
		if err != nil {
			return nil, err
		}
		nr := normalizer.Normalize(table.Rows)
		p.stageDone("normalize", "ok", start, nr.Dataset.Len())

		datasets = append(datasets, nr.Dataset)
		res.Diagnostics.Errors = append(res.Diagnostics.Errors, nr.Errors...)
		res.Diagnostics.Warnings = append(res.Diagnostics.Warnings, nr.Warnings...)
		res.Diagnostics.Excluded = append(res.Diagnostics.Excluded, nr.Excluded...)
		log.Info().
			Str("source", table.Mapping.Name).
			Int("rows_in", len(table.Rows)).
			Int("rows_out", nr.Dataset.Len()).
			Int("errors", len(nr.Errors)).
			Msg("source normalized")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Merge into the unified dataset.
	start := time.Now()
	unified, mergeReport, err := p.merger.Merge(datasets...)
	if err != nil {
		p.stageDone("merge", "conflict", start, 0)
		return nil, err
	}
	p.stageDone("merge", "ok", start, unified.Len())
	res.Unified = unified
	res.MergeReport = mergeReport
	res.Diagnostics.Warnings = append(res.Diagnostics.Warnings, mergeReport.Warnings...)
	res.Diagnostics.Conflicts = mergeReport.Conflicts

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Composite scores. The scored clones replace the unified observations
	// so downstream consumers of the dataset see the scores too.
	start = time.Now()
	res.Scored = p.calculator.ScoreDataset(unified)
	scoredObs := make([]domain.Observation, len(res.Scored))
	for i, s := range res.Scored {
		scoredObs[i] = s.Observation
	}
	res.Unified.Observations = scoredObs
	p.stageDone("score", "ok", start, len(res.Scored))

	// Deprivation counts.
	start = time.Now()
	for _, s := range res.Scored {
		rec, errs := p.estimator.ForObservation(s.Observation)
		res.Deprivation = append(res.Deprivation, rec)
		res.Diagnostics.Errors = append(res.Diagnostics.Errors, errs...)
	}
	p.stageDone("deprivation", "ok", start, len(res.Deprivation))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Priority list and gap report.
	start = time.Now()
	res.Priorities = p.classifier.Classify(res.Scored)
	p.stageDone("priority", "ok", start, len(res.Priorities.Entries))

	start = time.Now()
	res.Gaps = gaps.Analyze(unified, p.cfg.Analysis.SurveyYears)
	p.stageDone("gaps", "ok", start, len(res.Gaps.Records))

	res.Completed = time.Now().UTC()
	log.Info().
		Int("observations", unified.Len()).
		Int("priority_entries", len(res.Priorities.Entries)).
		Int("insufficient_data", len(res.Priorities.InsufficientData)).
		Int("gap_records", len(res.Gaps.Records)).
		Dur("elapsed", res.Completed.Sub(res.Started)).
		Msg("pipeline run complete")
	return res, nil
}

func (p *Pipeline) stageDone(stage, result string, start time.Time, rows int) {
	if p.observer == nil {
		return
	}
	p.observer.StageDone(stage, result, time.Since(start))
	if rows > 0 {
		p.observer.RowsProcessed(stage, rows)
	}
}
