// Package history keeps an append-only log of completed runs in SQLite.
// It is write-mostly: nothing here is ever fed back into the pace
// estimator, which always starts from zero.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run is one continuous stretch of movement, from the first tick after a
// stop until decay brought speed back to zero.
type Run struct {
	ID         uuid.UUID
	Start      time.Time
	End        time.Time
	Strides    uint32
	DistanceMM uint64
	PeakSpeed  uint32 // device speed units
}

// Duration returns how long the run lasted.
func (r Run) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Store persists runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Not closing m: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (uint, error) {
	var v uint
	err := s.db.QueryRow(`SELECT version FROM schema_migrations LIMIT 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Save inserts a run.
func (s *Store) Save(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, start_unix_ms, end_unix_ms, strides, distance_mm, peak_speed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Start.UnixMilli(), r.End.UnixMilli(), r.Strides, r.DistanceMM, r.PeakSpeed)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, start_unix_ms, end_unix_ms, strides, distance_mm, peak_speed
		 FROM runs ORDER BY start_unix_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			id         string
			start, end int64
			r          Run
		)
		if err := rows.Scan(&id, &start, &end, &r.Strides, &r.DistanceMM, &r.PeakSpeed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		r.Start = time.UnixMilli(start).UTC()
		r.End = time.UnixMilli(end).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Totals returns the number of runs and summed distance across all runs.
func (s *Store) Totals(ctx context.Context) (count int, distanceMM uint64, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(distance_mm), 0) FROM runs`).Scan(&count, &distanceMM)
	if err != nil {
		return 0, 0, fmt.Errorf("query totals: %w", err)
	}
	return count, distanceMM, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
