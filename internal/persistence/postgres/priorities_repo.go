package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/amenityscan/amenityscan/internal/persistence"
	"github.com/amenityscan/amenityscan/internal/priority"
)

// prioritiesRepo implements PriorityRepo for PostgreSQL.
type prioritiesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPrioritiesRepo creates a PostgreSQL priority repository.
func NewPrioritiesRepo(db *sqlx.DB, timeout time.Duration) persistence.PriorityRepo {
	return &prioritiesRepo{db: db, timeout: timeout}
}

// ReplaceForRun swaps in the full ranked list for a run. The list is
// regenerated per run, so replace-all keeps ranks consistent.
func (r *prioritiesRepo) ReplaceForRun(ctx context.Context, runID string, entries []priority.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM priorities WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clear priorities for run %s: %w", runID, err)
	}

	query := `
		INSERT INTO priorities
		(run_id, rank, region, year, area_type, composite_score, tier, population)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, entry := range entries {
		if _, err := tx.ExecContext(ctx, query,
			runID, i+1, entry.Key.Region, entry.Key.Year, string(entry.Key.Area),
			entry.Score, string(entry.Tier), entry.Population); err != nil {
			return fmt.Errorf("insert priority %s: %w", entry.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit priorities: %w", err)
	}
	return nil
}

// ListByTier returns ranked entries of one tier; an empty tier returns all.
func (r *prioritiesRepo) ListByTier(ctx context.Context, runID, tier string, limit int) ([]persistence.StoredPriority, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sqlx.Rows
		err  error
	)
	if tier == "" {
		rows, err = r.db.QueryxContext(ctx, `
			SELECT run_id, rank, region, year, area_type, composite_score, tier, population, created_at
			FROM priorities
			WHERE run_id = $1
			ORDER BY rank
			LIMIT $2`, runID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `
			SELECT run_id, rank, region, year, area_type, composite_score, tier, population, created_at
			FROM priorities
			WHERE run_id = $1 AND tier = $2
			ORDER BY rank
			LIMIT $3`, runID, tier, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query priorities: %w", err)
	}
	defer rows.Close()

	var out []persistence.StoredPriority
	for rows.Next() {
		var stored persistence.StoredPriority
		if err := rows.StructScan(&stored); err != nil {
			return nil, fmt.Errorf("scan priority: %w", err)
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

// runsRepo implements RunRepo for PostgreSQL.
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a PostgreSQL run-metadata repository.
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunRepo {
	return &runsRepo{db: db, timeout: timeout}
}

func (r *runsRepo) Record(ctx context.Context, meta persistence.RunMeta) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO runs (run_id, started, completed, observations, warnings, errors)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			completed = EXCLUDED.completed,
			observations = EXCLUDED.observations,
			warnings = EXCLUDED.warnings,
			errors = EXCLUDED.errors`
	if _, err := r.db.ExecContext(ctx, query,
		meta.RunID, meta.Started, meta.Completed, meta.Observations, meta.Warnings, meta.Errors); err != nil {
		return fmt.Errorf("record run %s: %w", meta.RunID, err)
	}
	return nil
}

func (r *runsRepo) Latest(ctx context.Context) (*persistence.RunMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var meta persistence.RunMeta
	err := r.db.QueryRowxContext(ctx, `
		SELECT run_id, started, completed, observations, warnings, errors
		FROM runs
		ORDER BY completed DESC
		LIMIT 1`).StructScan(&meta)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return &meta, nil
}
