// Package persistence defines the storage contracts for pipeline outputs.
// Persistence is a collaborator, not part of the scoring core: the engine
// never reads from here during a run, callers store results so repeated
// queries don't recompute.
package persistence

import (
	"context"
	"time"

	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/priority"
)

// StoredObservation is one unified observation as persisted for a run.
type StoredObservation struct {
	RunID      string             `json:"run_id" db:"run_id"`
	Region     string             `json:"region" db:"region"`
	Year       int                `json:"year" db:"year"`
	AreaType   string             `json:"area_type" db:"area_type"`
	Population int64              `json:"population" db:"population"`
	Indicators map[string]float64 `json:"indicators" db:"indicators"`
	Score      *float64           `json:"composite_score,omitempty" db:"composite_score"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
}

// StoredPriority is one ranked priority entry as persisted for a run.
type StoredPriority struct {
	RunID      string    `json:"run_id" db:"run_id"`
	Rank       int       `json:"rank" db:"rank"`
	Region     string    `json:"region" db:"region"`
	Year       int       `json:"year" db:"year"`
	AreaType   string    `json:"area_type" db:"area_type"`
	Score      float64   `json:"composite_score" db:"composite_score"`
	Tier       string    `json:"tier" db:"tier"`
	Population int64     `json:"population" db:"population"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RunMeta records one pipeline run.
type RunMeta struct {
	RunID        string    `json:"run_id" db:"run_id"`
	Started      time.Time `json:"started" db:"started"`
	Completed    time.Time `json:"completed" db:"completed"`
	Observations int       `json:"observations" db:"observations"`
	Warnings     int       `json:"warnings" db:"warnings"`
	Errors       int       `json:"errors" db:"errors"`
}

// ObservationRepo stores unified, scored observations by run.
type ObservationRepo interface {
	UpsertBatch(ctx context.Context, runID string, observations []domain.Observation) error
	ListByRun(ctx context.Context, runID string) ([]StoredObservation, error)
	ListByRegion(ctx context.Context, runID, region string) ([]StoredObservation, error)
}

// PriorityRepo stores the ranked priority list by run.
type PriorityRepo interface {
	ReplaceForRun(ctx context.Context, runID string, entries []priority.Entry) error
	ListByTier(ctx context.Context, runID, tier string, limit int) ([]StoredPriority, error)
}

// RunRepo records run metadata.
type RunRepo interface {
	Record(ctx context.Context, meta RunMeta) error
	Latest(ctx context.Context) (*RunMeta, error)
}

// Repository bundles all repositories behind one handle.
type Repository struct {
	Observations ObservationRepo
	Priorities   PriorityRepo
	Runs         RunRepo
}
