package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/datasources"
	"github.com/amenityscan/amenityscan/internal/infrastructure/db"
	httpiface "github.com/amenityscan/amenityscan/internal/interfaces/http"
	"github.com/amenityscan/amenityscan/internal/interfaces/output"
	"github.com/amenityscan/amenityscan/internal/persistence"
	"github.com/amenityscan/amenityscan/internal/pipeline"
	"github.com/amenityscan/amenityscan/internal/report"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full integration and scoring pipeline",
		Long:  "Load every configured source table, normalize, merge, score, and write CSV and JSON outputs",
		RunE:  runPipeline,
	}
	cmd.Flags().String("out", "out", "Output directory for CSV and JSON artifacts")
	cmd.Flags().Int("top-n", 10, "Number of regions in the summary best/worst lists")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Overall run deadline")
	return cmd
}

func runPipeline(cmd *cobra.Command, args []string) error {
	applyLogLevel(cmd)
	configDir, _ := cmd.Flags().GetString("config")
	outDir, _ := cmd.Flags().GetString("out")
	topN, _ := cmd.Flags().GetInt("top-n")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	metrics := httpiface.NewMetricsRegistry()
	res, sum, err := executeRun(ctx, cfg, metrics, topN)
	if err != nil {
		return err
	}

	if err := writeArtifacts(outDir, res); err != nil {
		return err
	}

	fmt.Printf("Run %s complete: %d observations, %d priority entries, %d gap records\n",
		res.RunID, res.Unified.Len(), len(res.Priorities.Entries), len(res.Gaps.Records))
	fmt.Printf("Latest survey year %d, total population %d\n", sum.Year, sum.TotalPopulation)
	if n := len(res.Diagnostics.Errors); n > 0 {
		fmt.Printf("Quality errors: %d (see %s)\n", n, filepath.Join(outDir, "diagnostics.csv"))
	}
	return nil
}

// executeRun fetches every source table, runs the pipeline once, persists the
// result if a database is configured, and builds the summary.
func executeRun(ctx context.Context, cfg *config.Config, metrics *httpiface.MetricsRegistry, topN int) (*pipeline.Result, *report.Summary, error) {
	pipe, err := pipeline.New(cfg, log.Logger, metrics)
	if err != nil {
		return nil, nil, err
	}

	loader := datasources.NewLoader(
		datasources.NewCSVReader(),
		datasources.NewPortalClient(cfg.Runtime.Portal, log.Logger),
	)
	cache := datasources.NewCache(cfg.Runtime.Redis)
	fetcher := datasources.NewCachedFetcher(loader, cache, cfg.Runtime.Redis.TableTTL, metrics)

	raw, err := datasources.FetchAll(ctx, fetcher, cfg.Sources, 4)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch sources: %w", err)
	}
	tables := make([]pipeline.SourceTable, 0, len(cfg.Sources))
	for i, src := range cfg.Sources {
		tables = append(tables, pipeline.SourceTable{Mapping: src, Rows: raw[i].Rows})
		log.Info().Str("source", src.Name).Int("rows", len(raw[i].Rows)).Msg("source table loaded")
	}

	metrics.RunStarted()
	defer metrics.RunFinished()

	res, err := pipe.Run(ctx, tables)
	if err != nil {
		metrics.RecordPipelineError("run", "fatal")
		return nil, nil, err
	}

	if cfg.Runtime.DB.Enabled {
		if err := persistRun(ctx, cfg.Runtime.DB, res); err != nil {
			// Storage is a collaborator; a sink failure does not void the run.
			log.Error().Err(err).Msg("failed to persist run")
		}
	}

	sum := report.Build(res, cfg.Analysis.CostPerHousehold, topN)
	return res, &sum, nil
}

func persistRun(ctx context.Context, settings config.DBSettings, res *pipeline.Result) error {
	manager, err := db.NewManager(settings)
	if err != nil {
		return err
	}
	defer manager.Close()

	repos := manager.Repository()
	meta := persistence.RunMeta{
		RunID:        res.RunID,
		Started:      res.Started,
		Completed:    res.Completed,
		Observations: res.Unified.Len(),
		Warnings:     len(res.Diagnostics.Warnings),
		Errors:       len(res.Diagnostics.Errors),
	}
	// The run row goes in first; observations and priorities reference it.
	if err := repos.Runs.Record(ctx, meta); err != nil {
		return fmt.Errorf("store run metadata: %w", err)
	}
	if err := repos.Observations.UpsertBatch(ctx, res.RunID, res.Unified.Observations); err != nil {
		return fmt.Errorf("store observations: %w", err)
	}
	if err := repos.Priorities.ReplaceForRun(ctx, res.RunID, res.Priorities.Entries); err != nil {
		return fmt.Errorf("store priorities: %w", err)
	}
	log.Info().Str("run_id", res.RunID).Msg("run persisted")
	return nil
}

func writeArtifacts(outDir string, res *pipeline.Result) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	emitter := output.NewEmitter()
	writers := []struct {
		name string
		emit func(string, *pipeline.Result) error
	}{
		{"dataset.csv", emitter.EmitDatasetCSV},
		{"priorities.csv", emitter.EmitPrioritiesCSV},
		{"gaps.csv", emitter.EmitGapsCSV},
		{"evolution.csv", emitter.EmitGapEvolutionCSV},
		{"diagnostics.csv", emitter.EmitDiagnosticsCSV},
		{"run.json", emitter.EmitRunJSON},
	}
	for _, w := range writers {
		path := filepath.Join(outDir, w.name)
		if err := w.emit(path, res); err != nil {
			return fmt.Errorf("write %s: %w", w.name, err)
		}
	}
	log.Info().Str("dir", outDir).Msg("artifacts written")
	return nil
}
