// Package archive records retrieved captures in a SQLite database so that
// runs can be listed and inspected after the simulator session is gone.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/wgfmu-sim/internal/plan"
	"github.com/nvandessel/wgfmu-sim/internal/wgfmu"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is the summary row of one archived capture.
type Run struct {
	ID          string    `json:"id"`
	Plan        string    `json:"plan"`
	Instrument  string    `json:"instrument"`
	Channel     int       `json:"channel"`
	SampleCount int       `json:"sample_count"`
	Duration    float64   `json:"duration"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Archive stores captures in SQLite. It is safe for concurrent use.
type Archive struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	nowFunc func() time.Time
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db, path: path, nowFunc: time.Now}, nil
}

// Path returns the database file location.
func (a *Archive) Path() string {
	return a.path
}

// Save records c and returns the new run ID.
func (a *Archive) Save(ctx context.Context, c *plan.Capture) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := uuid.NewString()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, plan, instrument, channel, sample_count, duration, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.Plan, c.Instrument, c.Channel, len(c.Samples), c.Duration(),
		formatTime(c.StartedAt), formatTime(c.FinishedAt), formatTime(a.nowFunc()))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (run_id, idx, time, voltage, current) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range c.Samples {
		var current sql.NullFloat64
		if m.Current != nil {
			current = sql.NullFloat64{Float64: *m.Current, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, i, m.Time, m.Voltage, current); err != nil {
			return "", fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

const runColumns = `id, plan, instrument, channel, sample_count, duration, started_at, finished_at, created_at`

// List returns the most recent runs first. A limit of 0 or less returns all.
func (a *Archive) List(ctx context.Context, limit int) ([]Run, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Get returns one run summary.
func (a *Archive) Get(ctx context.Context, id string) (*Run, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	row := a.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Samples returns the captured samples of a run in timeline order.
func (a *Archive) Samples(ctx context.Context, id string) ([]wgfmu.Measurement, error) {
	if _, err := a.Get(ctx, id); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx,
		`SELECT time, voltage, current FROM samples WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := []wgfmu.Measurement{}
	for rows.Next() {
		var m wgfmu.Measurement
		var current sql.NullFloat64
		if err := rows.Scan(&m.Time, &m.Voltage, &current); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if current.Valid {
			c := current.Float64
			m.Current = &c
		}
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

// Delete removes a run and its samples.
func (a *Archive) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var started, finished, created string
	err := s.Scan(&run.ID, &run.Plan, &run.Instrument, &run.Channel, &run.SampleCount,
		&run.Duration, &started, &finished, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	run.CreatedAt = parseTime(created)
	return &run, nil
}

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
