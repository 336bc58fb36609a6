package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/amenityscan/amenityscan/internal/domain"
	"github.com/amenityscan/amenityscan/internal/persistence"
)

// observationsRepo implements ObservationRepo for PostgreSQL.
type observationsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewObservationsRepo creates a PostgreSQL observation repository.
func NewObservationsRepo(db *sqlx.DB, timeout time.Duration) persistence.ObservationRepo {
	return &observationsRepo{db: db, timeout: timeout}
}

// UpsertBatch stores one run's unified observations. Indicators are stored
// as JSON so the canonical vocabulary can grow without migrations.
func (r *observationsRepo) UpsertBatch(ctx context.Context, runID string, observations []domain.Observation) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO observations
		(run_id, region, year, area_type, population, indicators, composite_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, region, year, area_type) DO UPDATE SET
			population = EXCLUDED.population,
			indicators = EXCLUDED.indicators,
			composite_score = EXCLUDED.composite_score`

	for _, obs := range observations {
		indicatorsJSON, err := json.Marshal(obs.Indicators)
		if err != nil {
			return fmt.Errorf("marshal indicators for %s: %w", obs.Key(), err)
		}
		var score *float64
		if obs.Score.Defined {
			v := obs.Score.Value
			score = &v
		}
		if _, err := tx.ExecContext(ctx, query,
			runID, obs.Region, obs.Year, string(obs.Area), obs.Population, indicatorsJSON, score); err != nil {
			return fmt.Errorf("upsert observation %s: %w", obs.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observations: %w", err)
	}
	return nil
}

// ListByRun returns every observation of a run in key order.
func (r *observationsRepo) ListByRun(ctx context.Context, runID string) ([]persistence.StoredObservation, error) {
	return r.list(ctx, `
		SELECT run_id, region, year, area_type, population, indicators, composite_score, created_at
		FROM observations
		WHERE run_id = $1
		ORDER BY region, year, area_type`, runID)
}

// ListByRegion returns one region's observations for a run.
func (r *observationsRepo) ListByRegion(ctx context.Context, runID, region string) ([]persistence.StoredObservation, error) {
	return r.list(ctx, `
		SELECT run_id, region, year, area_type, population, indicators, composite_score, created_at
		FROM observations
		WHERE run_id = $1 AND region = $2
		ORDER BY year, area_type`, runID, region)
}

func (r *observationsRepo) list(ctx context.Context, query string, args ...any) ([]persistence.StoredObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []persistence.StoredObservation
	for rows.Next() {
		var (
			stored         persistence.StoredObservation
			indicatorsJSON []byte
		)
		if err := rows.Scan(&stored.RunID, &stored.Region, &stored.Year, &stored.AreaType,
			&stored.Population, &indicatorsJSON, &stored.Score, &stored.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if err := json.Unmarshal(indicatorsJSON, &stored.Indicators); err != nil {
			return nil, fmt.Errorf("unmarshal indicators: %w", err)
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}
