package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/pipeline"
	"github.com/amenityscan/amenityscan/internal/priority"
	"github.com/amenityscan/amenityscan/internal/report"
	"github.com/amenityscan/amenityscan/internal/scoring"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Port = 0 // let the probe bind an ephemeral port
	srv, err := NewServer(cfg, NewMetricsRegistry(), zerolog.Nop())
	require.NoError(t, err)
	return srv
}

func servedResult() (*pipeline.Result, *report.Summary) {
	obs := func(region string, year int, area domain.AreaType, score float64, defined bool) scoring.ScoredObservation {
		return scoring.ScoredObservation{Observation: domain.Observation{
			Region: region, Year: year, Area: area, Population: 100000,
			Indicators: map[string]float64{domain.IndPipedWater: 60},
			Score:      domain.Score{Value: score, Defined: defined},
		}}
	}
	res := &pipeline.Result{
		RunID:     "test-run",
		Completed: time.Now(),
		Scored: []scoring.ScoredObservation{
			obs("Bihar", 2023, domain.AreaRural, 0.31, true),
			obs("Bihar", 2023, domain.AreaUrban, 0.55, true),
			obs("Kerala", 2023, domain.AreaRural, 0.82, true),
			obs("Sikkim", 2023, domain.AreaRural, 0, false),
		},
		Priorities: priority.Result{
			Entries: []priority.Entry{
				{Key: domain.Key{Region: "Bihar", Year: 2023, Area: domain.AreaRural}, Score: 0.31, Tier: priority.TierCritical, Population: 100000},
				{Key: domain.Key{Region: "Kerala", Year: 2023, Area: domain.AreaRural}, Score: 0.82, Tier: priority.TierGood, Population: 100000},
			},
			InsufficientData: []domain.Key{{Region: "Sikkim", Year: 2023, Area: domain.AreaRural}},
		},
	}
	sum := report.Summary{RunID: "test-run", Year: 2023}
	return res, &sum
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthBeforeAndAfterRun(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["has_run"])

	srv.SetResult(servedResult())
	body = decodeBody(t, get(t, srv, "/health"))
	assert.Equal(t, true, body["has_run"])
	assert.Equal(t, "test-run", body["run_id"])
}

func TestDatasetUnavailableBeforeRun(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/dataset", "/priorities", "/gaps", "/summary"} {
		rec := get(t, srv, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestDatasetFilters(t *testing.T) {
	srv := newTestServer(t)
	srv.SetResult(servedResult())

	body := decodeBody(t, get(t, srv, "/dataset"))
	assert.Len(t, body["observations"], 4)

	body = decodeBody(t, get(t, srv, "/dataset?region=Bihar"))
	assert.Len(t, body["observations"], 2)

	body = decodeBody(t, get(t, srv, "/dataset?area_type=Urban"))
	require.Len(t, body["observations"], 1)

	// Undefined scores serialize as null, never zero.
	body = decodeBody(t, get(t, srv, "/dataset?region=Sikkim"))
	rows := body["observations"].([]any)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].(map[string]any)["composite_score"])
}

func TestDatasetBadFilters(t *testing.T) {
	srv := newTestServer(t)
	srv.SetResult(servedResult())

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/dataset?year=latest").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/dataset?area_type=Suburban").Code)
}

func TestDatasetPagination(t *testing.T) {
	srv := newTestServer(t)
	srv.SetResult(servedResult())

	body := decodeBody(t, get(t, srv, "/dataset?limit=2&offset=3"))
	assert.Len(t, body["observations"], 1)
	page := body["page"].(map[string]any)
	assert.Equal(t, float64(4), page["total"])
	assert.Equal(t, float64(2), page["limit"])

	// Offsets past the end return an empty page, not an error.
	body = decodeBody(t, get(t, srv, "/dataset?offset=100"))
	assert.Len(t, body["observations"], 0)
}

func TestPrioritiesTierFilter(t *testing.T) {
	srv := newTestServer(t)
	srv.SetResult(servedResult())

	body := decodeBody(t, get(t, srv, "/priorities"))
	assert.Len(t, body["entries"], 2)
	assert.Len(t, body["insufficient_data"], 1)

	body = decodeBody(t, get(t, srv, "/priorities?tier=critical"))
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	key := entries[0].(map[string]any)["key"].(map[string]any)
	assert.Equal(t, "Bihar", key["region"])

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/priorities?tier=urgent").Code)
}

func TestSummaryAndGaps(t *testing.T) {
	srv := newTestServer(t)
	srv.SetResult(servedResult())

	body := decodeBody(t, get(t, srv, "/summary"))
	assert.Equal(t, "test-run", body["run_id"])
	assert.Equal(t, float64(2023), body["year"])

	rec := get(t, srv, "/gaps")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAndContentType(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/health")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "endpoint not found", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
