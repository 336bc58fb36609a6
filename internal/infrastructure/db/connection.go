package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/amenityscan/amenityscan/internal/config"
	"github.com/amenityscan/amenityscan/internal/persistence"
	"github.com/amenityscan/amenityscan/internal/persistence/postgres"
)

// Manager manages the database connection and repository instances.
// Persistence is disabled by default and requires explicit configuration.
type Manager struct {
	db       *sqlx.DB
	settings config.DBSettings
	repos    *persistence.Repository
}

// NewManager opens a connection pool and wires the repositories.
func NewManager(settings config.DBSettings) (*Manager, error) {
	if !settings.Enabled {
		return &Manager{settings: settings}, nil
	}
	if settings.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(settings.MaxOpenConns)
	db.SetMaxIdleConns(settings.MaxIdleConns)
	db.SetConnMaxLifetime(settings.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repos := &persistence.Repository{
		Observations: postgres.NewObservationsRepo(db, settings.QueryTimeout),
		Priorities:   postgres.NewPrioritiesRepo(db, settings.QueryTimeout),
		Runs:         postgres.NewRunsRepo(db, settings.QueryTimeout),
	}

	return &Manager{db: db, settings: settings, repos: repos}, nil
}

// Repository returns the repository collection, or nil when persistence is
// disabled.
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// DB returns the underlying connection (for migrations, etc.).
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// IsEnabled reports whether database persistence is active.
func (m *Manager) IsEnabled() bool {
	return m.settings.Enabled && m.db != nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
