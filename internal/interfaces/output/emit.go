// Package output exports pipeline results as flat delimited text with a
// fixed, documented column order. Rounding to display precision happens
// here, at the boundary; the engine keeps full precision internally.
//
// Column orders:
//
//	dataset.csv    region, year, area_type, population, <indicators in
//	               category order>, composite_score, <hh_without_<indicator>
//	               in category order>
//	priorities.csv rank, region, year, area_type, composite_score, tier,
//	               population, largest_shortfall, shortfalls
//	gaps.csv       region, year, indicator, rural_value, urban_value, gap
//	evolution.csv  region, indicator, from_year, to_year, reduction
//	diagnostics.csv severity, region, year, area_type, field, message
//
// An undefined composite score exports as an empty field, never 0.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/amenityscan/amenityscan/internal/deprivation"
	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/pipeline"
)

// scoreDecimals fixes display precision for composite scores.
const scoreDecimals = 4

type Emitter struct{}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// EmitDatasetCSV writes the unified dataset augmented with composite scores
// and deprivation counts.
func (e *Emitter) EmitDatasetCSV(filePath string, res *pipeline.Result) error {
	file, err := os.Create(filePath)
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
	for _, ind := range indicators {
		header = append(header, "hh_without_"+ind)
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	counts := map[domain.Key]deprivation.Record{}
	for _, rec := range res.Deprivation {
		counts[rec.Key] = rec
	}

	for _, s := range res.Scored {
		obs := s.Observation
		record := []string{
			obs.Region,
			strconv.Itoa(obs.Year),
			string(obs.Area),
			strconv.FormatInt(obs.Population, 10),
		}
		for _, ind := range indicators {
			if val, ok := obs.Indicator(ind); ok {
				record = append(record, fmt.Sprintf("%.2f", val))
			} else {
				record = append(record, "")
			}
		}
		record = append(record, formatScore(obs.Score))
		rec := counts[obs.Key()]
		for _, ind := range indicators {
			if n, ok := rec.Households[ind]; ok {
				record = append(record, strconv.FormatInt(n, 10))
			} else {
				record = append(record, "")
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}

// EmitPrioritiesCSV writes the ranked intervention list followed by the
// insufficient-data keys, so nothing is silently dropped from the export.
func (e *Emitter) EmitPrioritiesCSV(filePath string, res *pipeline.Result) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"rank", "region", "year", "area_type", "composite_score", "tier", "population", "largest_shortfall", "shortfalls"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, entry := range res.Priorities.Entries {
		largest := ""
		shortfalls := ""
		for j, s := range entry.Shortfalls {
			if j == 0 {
				largest = string(s.Category)
			} else {
				shortfalls += ";"
			}
			shortfalls += fmt.Sprintf("%s:%.4f", s.Category, s.Weighted)
		}
		record := []string{
			strconv.Itoa(i + 1),
			entry.Key.Region,
			strconv.Itoa(entry.Key.Year),
			string(entry.Key.Area),
			fmt.Sprintf("%.*f", scoreDecimals, entry.Score),
			string(entry.Tier),
			strconv.FormatInt(entry.Population, 10),
			largest,
			shortfalls,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	for _, key := range res.Priorities.InsufficientData {
		record := []string{"", key.Region, strconv.Itoa(key.Year), string(key.Area), "", "insufficient_data", "", "", ""}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}

// EmitGapsCSV writes the rural-urban gap records.
func (e *Emitter) EmitGapsCSV(filePath string, res *pipeline.Result) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"region", "year", "indicator", "rural_value", "urban_value", "gap"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range res.Gaps.Records {
		record := []string{
			rec.Region,
			strconv.Itoa(rec.Year),
			rec.Indicator,
			fmt.Sprintf("%.2f", rec.Rural),
			fmt.Sprintf("%.2f", rec.Urban),
			fmt.Sprintf("%.2f", rec.Gap),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}

// EmitGapEvolutionCSV writes gap reductions across adjacent survey years.
func (e *Emitter) EmitGapEvolutionCSV(filePath string, res *pipeline.Result) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"region", "indicator", "from_year", "to_year", "reduction"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, ev := range res.Gaps.Evolutions {
		record := []string{
			ev.Region,
			ev.Indicator,
			strconv.Itoa(ev.FromYear),
			strconv.Itoa(ev.ToYear),
			fmt.Sprintf("%.2f", ev.Reduction),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}

// EmitDiagnosticsCSV writes every error and warning of the run, each
// attributable to a specific key and field.
func (e *Emitter) EmitDiagnosticsCSV(filePath string, res *pipeline.Result) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"severity", "region", "year", "area_type", "field", "message"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, qe := range res.Diagnostics.Errors {
		record := []string{"error", qe.Key.Region, strconv.Itoa(qe.Key.Year), string(qe.Key.Area), qe.Field, qe.Reason}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	for _, w := range res.Diagnostics.Warnings {
		record := []string{"warning", w.Key.Region, strconv.Itoa(w.Key.Year), string(w.Key.Area), w.Field, w.Message}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	return nil
}

// EmitRunJSON writes the run metadata and merge report for auditing.
func (e *Emitter) EmitRunJSON(filePath string, res *pipeline.Result) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	payload := map[string]any{
		"run_id":    res.RunID,
		"started":   res.Started,
		"completed": res.Completed,
		"counts": map[string]int{
			"observations":      res.Unified.Len(),
			"priority_entries":  len(res.Priorities.Entries),
			"insufficient_data": len(res.Priorities.InsufficientData),
			"gap_records":       len(res.Gaps.Records),
			"gap_incomplete":    len(res.Gaps.Incomplete),
			"errors":            len(res.Diagnostics.Errors),
			"warnings":          len(res.Diagnostics.Warnings),
		},
		"merge_report": res.MergeReport,
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func formatScore(s domain.Score) string {
	if !s.Defined {
		return ""
	}
	return fmt.Sprintf("%.*f", scoreDecimals, s.Value)
}
