package datasources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/normalize"
)

// PortalClient fetches datasets from an open-data portal API. Calls pass
// through a token-bucket rate limiter and a circuit breaker so a degraded
// portal cannot stall or hammer the pipeline.
type PortalClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *cb.CircuitBreaker
	baseURL    string
	log        zerolog.Logger
}

// NewPortalClient builds a client from portal settings.
func NewPortalClient(settings config.PortalSettings, log zerolog.Logger) *PortalClient {
	st := cb.Settings{Name: "portal-api"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}

	burst := settings.Burst
	if burst < 1 {
		burst = 1
	}
	return &PortalClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(settings.RateLimit), burst),
		breaker:    cb.NewCircuitBreaker(st),
		baseURL:    settings.BaseURL,
		log:        log,
	}
}

// portalResponse mirrors the portal's resource envelope.
type portalResponse struct {
	Records []map[string]any `json:"records"`
}

// Fetch retrieves the dataset configured on the source descriptor.
func (c *PortalClient) Fetch(ctx context.Context, src config.SourceMapping) (RawTable, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return RawTable{}, err
	}

	url := fmt.Sprintf("%s/resource/%s", c.baseURL, src.DatasetID)
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("portal returned status %d for dataset %s", resp.StatusCode, src.DatasetID)
		}

		var payload portalResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode portal response: %w", err)
		}
		return payload.Records, nil
	})
	if err != nil {
		return RawTable{}, fmt.Errorf("fetch dataset %s: %w", src.DatasetID, err)
	}

	records := result.([]map[string]any)
	rows := make([]normalize.RawRow, len(records))
	for i, rec := range records {
		rows[i] = normalize.RawRow(rec)
	}

	c.log.Info().Str("source", src.Name).Str("dataset", src.DatasetID).Int("rows", len(rows)).Msg("portal dataset fetched")
	return RawTable{Source: src.Name, Rows: rows}, nil
}
