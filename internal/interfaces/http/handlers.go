package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/priority"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type errorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

type pageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{
		Error:     msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// parsePage reads limit/offset query parameters with bounds applied.
func parsePage(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func pageBounds(total, limit, offset int) (lo, hi int) {
	lo = offset
	if lo > total {
		lo = total
	}
	hi = lo + limit
	if hi > total {
		hi = total
	}
	return lo, hi
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res, _ := s.snapshot()
	status := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"has_run":   res != nil,
	}
	if res != nil {
		status["run_id"] = res.RunID
		status["completed"] = res.Completed.Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, status)
}

// handleDataset serves the unified scored observations, optionally filtered
// by region, year, and area_type.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	res, _ := s.snapshot()
	if res == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no completed run available")
		return
	}

	q := r.URL.Query()
	region := q.Get("region")
	yearFilter := 0
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		yearFilter = n
	}
	var area domain.AreaType
	if v := q.Get("area_type"); v != "" {
		a, err := domain.ParseAreaType(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		area = a
	}

	type row struct {
		Region     string             `json:"region"`
		Year       int                `json:"year"`
		AreaType   domain.AreaType    `json:"area_type"`
		Population int64              `json:"population"`
		Indicators map[string]float64 `json:"indicators"`
		Score      *float64           `json:"composite_score"`
	}

	rows := make([]row, 0, len(res.Scored))
	for _, sc := range res.Scored {
		obs := sc.Observation
		if region != "" && obs.Region != region {
			continue
		}
		if yearFilter != 0 && obs.Year != yearFilter {
			continue
		}
		if area != "" && obs.Area != area {
			continue
		}
		out := row{
			Region:     obs.Region,
			Year:       obs.Year,
			AreaType:   obs.Area,
			Population: obs.Population,
			Indicators: obs.Indicators,
		}
		if obs.Score.Defined {
			v := obs.Score.Value
			out.Score = &v
		}
		rows = append(rows, out)
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(rows), limit, offset)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":       res.RunID,
		"observations": rows[lo:hi],
		"page":         pageMeta{Limit: limit, Offset: offset, Total: len(rows)},
	})
}

// handlePriorities serves the ranked priority list, optionally filtered by
// tier.
func (s *Server) handlePriorities(w http.ResponseWriter, r *http.Request) {
	res, _ := s.snapshot()
	if res == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no completed run available")
		return
	}

	entries := res.Priorities.Entries
	if tier := r.URL.Query().Get("tier"); tier != "" {
		switch priority.Tier(tier) {
		case priority.TierCritical, priority.TierMedium, priority.TierGood:
		default:
			s.writeError(w, http.StatusBadRequest, "tier must be critical, medium, or good")
			return
		}
		filtered := make([]priority.Entry, 0, len(entries))
		for _, e := range entries {
			if e.Tier == priority.Tier(tier) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	limit, offset := parsePage(r)
	lo, hi := pageBounds(len(entries), limit, offset)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":            res.RunID,
		"entries":           entries[lo:hi],
		"insufficient_data": res.Priorities.InsufficientData,
		"page":              pageMeta{Limit: limit, Offset: offset, Total: len(entries)},
	})
}

// handleGaps serves the rural/urban gap report.
func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	res, _ := s.snapshot()
	if res == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no completed run available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": res.RunID,
		"report": res.Gaps,
	})
}

// handleSummary serves the latest-year roll-up.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	_, sum := s.snapshot()
	if sum == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no completed run available")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeError(w, http.StatusNotFound, "endpoint not found")
}
