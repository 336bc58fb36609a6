package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/infrastructure/db"
	"github.com/amenityscan/amenityscan/internal/persistence"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored run from the database to CSV",
		Long:  "Reads a persisted run (the latest by default) from PostgreSQL and writes its unified dataset and priority list as CSV",
		RunE:  runExport,
	}
	cmd.Flags().String("run", "", "Run ID to export (default: latest)")
	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().String("tier", "", "Limit the priority export to one tier")
	cmd.Flags().Int("limit", 1000, "Maximum priority entries to export")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	applyLogLevel(cmd)
	configDir, _ := cmd.Flags().GetString("config")
	runID, _ := cmd.Flags().GetString("run")
	outDir, _ := cmd.Flags().GetString("out")
	tier, _ := cmd.Flags().GetString("tier")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Runtime.DB.Enabled {
		return fmt.Errorf("export needs database persistence enabled in runtime.yaml")
	}

	manager, err := db.NewManager(cfg.Runtime.DB)
	if err != nil {
		return err
	}
	defer manager.Close()
	repos := manager.Repository()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if runID == "" {
		meta, err := repos.Runs.Latest(ctx)
		if err != nil {
			return fmt.Errorf("look up latest run: %w", err)
		}
		if meta == nil {
			return fmt.Errorf("no runs stored yet")
		}
		runID = meta.RunID
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	observations, err := repos.Observations.ListByRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load observations: %w", err)
	}
	if len(observations) == 0 {
		return fmt.Errorf("run %s has no stored observations", runID)
	}
	datasetPath := filepath.Join(outDir, "dataset.csv")
	if err := writeStoredDatasetCSV(datasetPath, observations); err != nil {
		return err
	}

	priorities, err := repos.Priorities.ListByTier(ctx, runID, tier, limit)
	if err != nil {
		return fmt.Errorf("load priorities: %w", err)
	}
	prioritiesPath := filepath.Join(outDir, "priorities.csv")
	if err := writeStoredPrioritiesCSV(prioritiesPath, priorities); err != nil {
		return err
	}

	log.Info().Str("run_id", runID).Int("observations", len(observations)).
		Int("priorities", len(priorities)).Str("dir", outDir).Msg("run exported")
	fmt.Printf("Exported run %s: %d observations, %d priority entries\n", runID, len(observations), len(priorities))
	return nil
}

func writeStoredDatasetCSV(path string, observations []persistence.StoredObservation) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	indicators := domain.AllIndicators()
	header := []string{"region", "year", "area_type", "population"}
	header = append(header, indicators...)
	header = append(header, "composite_score")
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, obs := range observations {
		record := []string{obs.Region, strconv.Itoa(obs.Year), obs.AreaType, strconv.FormatInt(obs.Population, 10)}
		for _, ind := range indicators {
			if val, ok := obs.Indicators[ind]; ok {
				record = append(record, fmt.Sprintf("%.2f", val))
			} else {
				record = append(record, "")
			}
		}
		if obs.Score != nil {
			record = append(record, fmt.Sprintf("%.4f", *obs.Score))
		} else {
			record = append(record, "")
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}

func writeStoredPrioritiesCSV(path string, priorities []persistence.StoredPriority) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"rank", "region", "year", "area_type", "composite_score", "tier", "population"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range priorities {
		record := []string{
			strconv.Itoa(entry.Rank),
			entry.Region,
			strconv.Itoa(entry.Year),
			entry.AreaType,
			fmt.Sprintf("%.4f", entry.Score),
			entry.Tier,
			strconv.FormatInt(entry.Population, 10),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}
