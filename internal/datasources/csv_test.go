package datasources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenityscan/amenityscan/internal/config"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVReader_ReadFile(t *testing.T) {
	path := writeCSV(t, "State,Year,Area,TapWater\nKerala,2018,Rural,62.5\nBihar,2018,Rural,34.1\n")

	reader := NewCSVReader()
	rows, err := reader.ReadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Kerala", rows[0]["State"])
	assert.Equal(t, "62.5", rows[0]["TapWater"])
	assert.Equal(t, "Bihar", rows[1]["State"])
}

func TestCSVReader_SkipsMalformedRows(t *testing.T) {
	path := writeCSV(t, "State,Year,Area\nKerala,2018,Rural\nBihar,2018\n")

	reader := NewCSVReader()
	rows, err := reader.ReadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, rows, 1, "short row cannot be keyed and must be skipped")
	assert.Equal(t, "Kerala", rows[0]["State"])
}

func TestCSVReader_MissingFile(t *testing.T) {
	reader := NewCSVReader()
	_, err := reader.ReadFile(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestCSVReader_ContextCancellation(t *testing.T) {
	path := writeCSV(t, "State\nKerala\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewCSVReader()
	_, err := reader.ReadFile(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVReader_FetchWrapsSourceName(t *testing.T) {
	path := writeCSV(t, "State,Year,Area\nKerala,2018,Rural\n")
	src := config.SourceMapping{Name: "census2011", Kind: config.SourceCensus, Path: path}

	table, err := NewCSVReader().Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "census2011", table.Source)
	assert.Len(t, table.Rows, 1)
}

func TestLoader_RoutesByKind(t *testing.T) {
	path := writeCSV(t, "State\nKerala\n")
	loader := NewLoader(NewCSVReader(), nil)

	_, err := loader.Fetch(context.Background(), config.SourceMapping{Name: "s", Kind: config.SourceSurvey, Path: path})
	assert.NoError(t, err)

	_, err = loader.Fetch(context.Background(), config.SourceMapping{Name: "p", Kind: config.SourcePortalAPI, DatasetID: "d"})
	assert.Error(t, err, "portal source without portal client must fail")

	_, err = loader.Fetch(context.Background(), config.SourceMapping{Name: "x", Kind: "ftp"})
	assert.Error(t, err)
}
