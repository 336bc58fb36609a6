package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/normalize"
)

type stageRecorder struct {
	stages []string
	rows   map[string]int
}

func (r *stageRecorder) StageDone(stage, result string, d time.Duration) {
	r.stages = append(r.stages, stage)
}

func (r *stageRecorder) RowsProcessed(stage string, n int) {
	if r.rows == nil {
		r.rows = map[string]int{}
	}
	r.rows[stage] += n
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Merge.SourcePriority = []string{"nss", "census"}
	cfg.Sources = []config.SourceMapping{
		{
			Name: "census", Kind: config.SourceCensus, Path: "census.csv", Vintage: 2011,
			Columns: map[string]config.ColumnRule{
				"State":    {Field: "region"},
				"Year":     {Field: "year"},
				"Area":     {Field: "area_type"},
				"Pop":      {Field: "population"},
				"TapWater": {Field: domain.IndPipedWater},
				"Toilet":   {Field: domain.IndToilet},
				"Electric": {Field: domain.IndElectricity},
				"Pucca":    {Field: domain.IndPuccaHousing},
				"LPG":      {Field: domain.IndCleanFuel},
				"Food":     {Field: domain.IndFoodSecure},
			},
		},
		{
			Name: "nss", Kind: config.SourceSurvey, Path: "nss.csv", Vintage: 2018,
			Columns: map[string]config.ColumnRule{
				"state":     {Field: "region"},
				"year":      {Field: "year"},
				"sector":    {Field: "area_type"},
				"tap_water": {Field: domain.IndPipedWater},
			},
		},
	}
	return cfg
}

func censusRow(region, year, area, pop, tap string) normalize.RawRow {
	return normalize.RawRow{
		"State": region, "Year": year, "Area": area, "Pop": pop,
		"TapWater": tap, "Toilet": "60", "Electric": "90", "Pucca": "55", "LPG": "40", "Food": "85",
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	cfg := testConfig()
	rec := &stageRecorder{}
	pipe, err := New(cfg, zerolog.Nop(), rec)
	require.NoError(t, err)

	tables := []SourceTable{
		{
			Mapping: cfg.Sources[0],
			Rows: []normalize.RawRow{
				censusRow("Kerala", "2018", "Rural", "100000", "62.5"),
				censusRow("Kerala", "2018", "Urban", "50000", "81.0"),
				censusRow("Bihar", "2018", "Rural", "400000", "30.0"),
			},
		},
		{
			Mapping: cfg.Sources[1],
			Rows: []normalize.RawRow{
				// Conflicts with census on Kerala rural tap water; nss wins on
				// priority.
				{"state": "Kerala", "year": "2018", "sector": "Rural", "tap_water": "65.0"},
			},
		},
	}

	res, err := pipe.Run(context.Background(), tables)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Completed.IsZero())
	assert.Equal(t, 3, res.Unified.Len())

	byKey := res.Unified.ByKey()
	keralaRural := byKey[domain.Key{Region: "Kerala", Year: 2018, Area: domain.AreaRural}]
	assert.InDelta(t, 65.0, keralaRural.Indicators[domain.IndPipedWater], 1e-9)
	require.Len(t, res.Diagnostics.Conflicts, 1)

	assert.Len(t, res.Scored, 3)
	for _, s := range res.Scored {
		assert.True(t, s.Observation.Score.Defined)
	}
	assert.Len(t, res.Deprivation, 3)
	assert.Len(t, res.Priorities.Entries, 3)
	// Bihar rural has the worst access and the largest population.
	assert.Equal(t, "Bihar", res.Priorities.Entries[0].Key.Region)

	// Kerala has both sides for 2018, so gaps exist for each shared indicator.
	assert.NotEmpty(t, res.Gaps.Records)

	assert.Contains(t, rec.stages, "normalize")
	assert.Contains(t, rec.stages, "merge")
	assert.Contains(t, rec.stages, "score")
	assert.Contains(t, rec.stages, "deprivation")
	assert.Contains(t, rec.stages, "priority")
	assert.Contains(t, rec.stages, "gaps")
	assert.Equal(t, 3, rec.rows["merge"])
}

func TestPipeline_UnifiedDatasetCarriesScores(t *testing.T) {
	cfg := testConfig()
	pipe, err := New(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	tables := []SourceTable{
		{
			Mapping: cfg.Sources[0],
			Rows: []normalize.RawRow{
				censusRow("Kerala", "2018", "Rural", "100000", "62.5"),
				censusRow("Bihar", "2018", "Rural", "400000", "30.0"),
			},
		},
	}

	res, err := pipe.Run(context.Background(), tables)
	require.NoError(t, err)

	// The unified dataset is what sinks persist; it must carry the same
	// scores as the scored collection, not unscored merge output.
	require.Equal(t, len(res.Scored), res.Unified.Len())
	byKey := res.Unified.ByKey()
	for _, s := range res.Scored {
		obs, ok := byKey[s.Observation.Key()]
		require.True(t, ok)
		assert.True(t, obs.Score.Defined)
		assert.Equal(t, s.Observation.Score, obs.Score)
	}
}

func TestPipeline_NewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Weights.Categories = map[string]float64{"water": 0.9}

	_, err := New(cfg, zerolog.Nop(), nil)
	require.Error(t, err)
	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestPipeline_FailOnConflictAborts(t *testing.T) {
	cfg := testConfig()
	cfg.Merge.Policy = config.PolicyFailOnConflict

	pipe, err := New(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	tables := []SourceTable{
		{Mapping: cfg.Sources[0], Rows: []normalize.RawRow{censusRow("Kerala", "2018", "Rural", "100000", "62.5")}},
		{Mapping: cfg.Sources[1], Rows: []normalize.RawRow{{"state": "Kerala", "year": "2018", "sector": "Rural", "tap_water": "65.0"}}},
	}

	_, err = pipe.Run(context.Background(), tables)
	require.Error(t, err)
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestPipeline_DiagnosticsCollected(t *testing.T) {
	cfg := testConfig()
	pipe, err := New(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	tables := []SourceTable{
		{
			Mapping: cfg.Sources[0],
			Rows: []normalize.RawRow{
				censusRow("Kerala", "2018", "Rural", "100000", "62.5"),
				censusRow("", "2018", "Rural", "100000", "62.5"),     // empty region
				censusRow("Bihar", "1999", "Rural", "100000", "30"),  // unknown year
				censusRow("Assam", "2018", "Rural", "100000", "130"), // out of range
			},
		},
	}

	res, err := pipe.Run(context.Background(), tables)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unified.Len())
	assert.Len(t, res.Diagnostics.Errors, 3)
	assert.Len(t, res.Diagnostics.Excluded, 3)
}

func TestPipeline_Cancellation(t *testing.T) {
	cfg := testConfig()
	pipe, err := New(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pipe.Run(ctx, []SourceTable{{Mapping: cfg.Sources[0]}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_UndefinedScoresSurfaceAsInsufficientData(t *testing.T) {
	cfg := testConfig()
	pipe, err := New(cfg, zerolog.Nop(), nil)
	require.NoError(t, err)

	// A row with a key but no measured indicators cannot be scored.
	tables := []SourceTable{
		{Mapping: cfg.Sources[1], Rows: []normalize.RawRow{{"state": "Ladakh", "year": "2023", "sector": "Rural"}}},
	}

	res, err := pipe.Run(context.Background(), tables)
	require.NoError(t, err)
	assert.Empty(t, res.Priorities.Entries)
	require.Len(t, res.Priorities.InsufficientData, 1)
	assert.Equal(t, "Ladakh", res.Priorities.InsufficientData[0].Region)
}
