// Package journal stores training metrics in a SQLite database so runs can be
// inspected or plotted while they are still going.
//
// One database can hold many runs; every row carries the run name it
// belongs to. The Journal implements train.Recorder.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/born-ml/charrnn/internal/train"
)

// ErrClosed is returned by operations on a closed Journal.
var ErrClosed = errors.New("journal: closed")

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	name TEXT PRIMARY KEY,
	started REAL NOT NULL,
	config TEXT
);
CREATE TABLE IF NOT EXISTS iterations(
	run TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	epoch REAL NOT NULL,
	loss REAL NOT NULL,
	grad_norm REAL NOT NULL,
	clipped INTEGER NOT NULL,
	lr REAL NOT NULL,
	ms INTEGER NOT NULL,
	PRIMARY KEY(run, iteration)
);
CREATE TABLE IF NOT EXISTS validations(
	run TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	epoch REAL NOT NULL,
	val_loss REAL NOT NULL,
	checkpoint TEXT,
	PRIMARY KEY(run, iteration)
);`

// Journal appends the metrics of one run to a SQLite database.
type Journal struct {
	db  *sql.DB
	run string
}

// Open opens (creating if needed) the database at path and registers run.
// Reopening an existing run continues it; rows of a resumed iteration are
// replaced.
func Open(ctx context.Context, path, run string, config string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO runs(name, started, config) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET config = excluded.config`,
		run, unixSeconds(time.Now()), config)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: register run %q: %w", run, err)
	}
	return &Journal{db: db, run: run}, nil
}

// Run returns the name rows are recorded under.
func (j *Journal) Run() string { return j.run }

// RecordIteration stores the metrics of one training step.
func (j *Journal) RecordIteration(ctx context.Context, rec train.IterationRecord) error {
	if j.db == nil {
		return ErrClosed
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO iterations(run, iteration, epoch, loss, grad_norm, clipped, lr, ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		j.run, rec.Iteration, rec.Epoch, rec.Loss, rec.GradNorm, rec.Clipped, rec.LR, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("journal: iteration %d: %w", rec.Iteration, err)
	}
	return nil
}

// RecordValidation stores one validation result.
func (j *Journal) RecordValidation(ctx context.Context, rec train.ValidationRecord) error {
	if j.db == nil {
		return ErrClosed
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO validations(run, iteration, epoch, val_loss, checkpoint)
		 VALUES(?, ?, ?, ?, ?)`,
		j.run, rec.Iteration, rec.Epoch, rec.ValLoss, nullString(rec.Checkpoint))
	if err != nil {
		return fmt.Errorf("journal: validation at %d: %w", rec.Iteration, err)
	}
	return nil
}

// Iterations returns the recorded steps of run in iteration order.
func (j *Journal) Iterations(ctx context.Context, run string) ([]train.IterationRecord, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT iteration, epoch, loss, grad_norm, clipped, lr, ms
		 FROM iterations WHERE run = ? ORDER BY iteration`, run)
	if err != nil {
		return nil, fmt.Errorf("journal: query iterations: %w", err)
	}
	defer rows.Close()

	var out []train.IterationRecord
	for rows.Next() {
		var (
			rec train.IterationRecord
			ms  int64
		)
		if err := rows.Scan(&rec.Iteration, &rec.Epoch, &rec.Loss, &rec.GradNorm, &rec.Clipped, &rec.LR, &ms); err != nil {
			return nil, fmt.Errorf("journal: scan iteration: %w", err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Validations returns the recorded validations of run in iteration order.
func (j *Journal) Validations(ctx context.Context, run string) ([]train.ValidationRecord, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT iteration, epoch, val_loss, checkpoint
		 FROM validations WHERE run = ? ORDER BY iteration`, run)
	if err != nil {
		return nil, fmt.Errorf("journal: query validations: %w", err)
	}
	defer rows.Close()

	var out []train.ValidationRecord
	for rows.Next() {
		var (
			rec  train.ValidationRecord
			path sql.NullString
		)
		if err := rows.Scan(&rec.Iteration, &rec.Epoch, &rec.ValLoss, &path); err != nil {
			return nil, fmt.Errorf("journal: scan validation: %w", err)
		}
		rec.Checkpoint = path.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Runs lists the run names in the database, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]string, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	rows, err := j.db.QueryContext(ctx, `SELECT name FROM runs ORDER BY started, name`)
	if err != nil {
		return nil, fmt.Errorf("journal: query runs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database. Further calls return ErrClosed.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ train.Recorder = (*Journal)(nil)
