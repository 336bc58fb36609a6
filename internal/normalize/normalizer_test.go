package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/domain"
)

func censusMapping() config.SourceMapping {
	return config.SourceMapping{
		Name: "census2011",
		Kind: config.SourceCensus,
		Path: "census.csv",
		Columns: map[string]config.ColumnRule{
			"State":         {Field: "region"},
			"Year":          {Field: "year"},
			"Area":          {Field: "area_type"},
			"Pop":           {Field: "population"},
			"TapWater":      {Field: domain.IndPipedWater},
			"ToiletShare":   {Field: domain.IndToilet, Scale: 100, Required: true},
			"IgnoredColumn": {Field: domain.IndElectricity},
		},
	}
}

func knownYears(year int) bool {
	return year == 2012 || year == 2018 || year == 2023
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(censusMapping(), knownYears)
	require.NoError(t, err)
	return n
}

func TestNormalize_MapsAndScales(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State":       "Kerala",
		"Year":        "2018",
		"Area":        "rural",
		"Pop":         "250000",
		"TapWater":    "62.5",
		"ToiletShare": "0.8", // fraction scaled to percent
		"Extra":       "dropped silently",
	}})

	require.Len(t, res.Dataset.Observations, 1)
	obs := res.Dataset.Observations[0]
	assert.Equal(t, "Kerala", obs.Region)
	assert.Equal(t, 2018, obs.Year)
	assert.Equal(t, domain.AreaRural, obs.Area)
	assert.Equal(t, int64(250000), obs.Population)
	assert.InDelta(t, 62.5, obs.Indicators[domain.IndPipedWater], 1e-9)
	assert.InDelta(t, 80.0, obs.Indicators[domain.IndToilet], 1e-9)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Excluded)
}

func TestNormalize_EmptyRegionExcluded(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State": "  ", "Year": "2018", "Area": "Urban",
	}})

	assert.Empty(t, res.Dataset.Observations)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "region", res.Errors[0].Field)
	assert.Len(t, res.Excluded, 1)
}

func TestNormalize_UnknownYearExcluded(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State": "Kerala", "Year": "1999", "Area": "Rural",
	}})

	assert.Empty(t, res.Dataset.Observations)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "year", res.Errors[0].Field)
}

func TestNormalize_BadAreaTypeExcluded(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State": "Kerala", "Year": "2018", "Area": "suburban",
	}})

	assert.Empty(t, res.Dataset.Observations)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "area_type", res.Errors[0].Field)
}

func TestNormalize_NonNumericIndicatorKeepsRow(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State": "Kerala", "Year": "2018", "Area": "Rural",
		"TapWater": "n/a", "ToiletShare": "0.5",
	}})

	require.Len(t, res.Dataset.Observations, 1)
	obs := res.Dataset.Observations[0]
	_, measured := obs.Indicator(domain.IndPipedWater)
	assert.False(t, measured, "unparseable value must stay absent, not zero")
	assert.InDelta(t, 50.0, obs.Indicators[domain.IndToilet], 1e-9)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, domain.IndPipedWater, res.Errors[0].Field)
	assert.Empty(t, res.Excluded)
}

func TestNormalize_OutOfRangePercentageExcludesRow(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State": "Kerala", "Year": "2018", "Area": "Rural",
		"TapWater": "104.2",
	}})

	assert.Empty(t, res.Dataset.Observations)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Reason, "outside [0,100]")
	assert.Len(t, res.Excluded, 1)
}

func TestNormalize_RequiredColumnMissingWarns(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State": "Kerala", "Year": "2018", "Area": "Rural",
		"TapWater": "50",
	}})

	require.Len(t, res.Dataset.Observations, 1)
	obs := res.Dataset.Observations[0]
	_, measured := obs.Indicator(domain.IndToilet)
	assert.False(t, measured)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, domain.IndToilet, res.Warnings[0].Field)
}

func TestNormalize_NegativePopulationExcluded(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{{
		"State": "Kerala", "Year": "2018", "Area": "Rural",
		"Pop": "-12",
	}})

	assert.Empty(t, res.Dataset.Observations)
	assert.Len(t, res.Excluded, 1)
}

func TestNormalize_DuplicateKeyWithinSourceRejected(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize([]RawRow{
		{"State": "Kerala", "Year": "2018", "Area": "Rural", "TapWater": "50"},
		{"State": "Kerala", "Year": "2018", "Area": "Rural", "TapWater": "60"},
	})

	require.Len(t, res.Dataset.Observations, 1)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Reason, "duplicate")
}

func TestNormalize_PortalNumericTypes(t *testing.T) {
	n := newTestNormalizer(t)

	// Portal JSON rows arrive with float64 and int values, not strings.
	res := n.Normalize([]RawRow{{
		"State": "Kerala", "Year": 2023, "Area": "Urban",
		"Pop": float64(90000), "TapWater": float64(71.4),
	}})

	require.Len(t, res.Dataset.Observations, 1)
	obs := res.Dataset.Observations[0]
	assert.Equal(t, 2023, obs.Year)
	assert.Equal(t, int64(90000), obs.Population)
	assert.InDelta(t, 71.4, obs.Indicators[domain.IndPipedWater], 1e-9)
}

func TestNormalize_DeterministicOrder(t *testing.T) {
	n := newTestNormalizer(t)

	rows := []RawRow{
		{"State": "Odisha", "Year": "2018", "Area": "Rural"},
		{"State": "Assam", "Year": "2018", "Area": "Rural"},
		{"State": "Assam", "Year": "2012", "Area": "Urban"},
	}
	res := n.Normalize(rows)

	require.Len(t, res.Dataset.Observations, 3)
	assert.Equal(t, "Assam", res.Dataset.Observations[0].Region)
	assert.Equal(t, 2012, res.Dataset.Observations[0].Year)
	assert.Equal(t, "Odisha", res.Dataset.Observations[2].Region)
}
