// Package runs records one ledger row per ingestion run.
package runs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type Run struct {
	ID            string     `json:"id"`
	InputPath     string     `json:"input_path"`
	DBPath        string     `json:"db_path"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Status        string     `json:"status"`
	Conversations int        `json:"conversations"`
	Messages      int        `json:"messages"`
	Skipped       int        `json:"skipped"`
	Batches       int        `json:"batches"`
	Error         *string    `json:"error,omitempty"`
}

// Counts are the totals stored when a run finishes.
type Counts struct {
	Conversations int
	Messages      int
	Skipped       int
	Batches       int
}

// Start inserts a running row and returns its id.
func Start(ctx context.Context, db *sql.DB, inputPath, dbPath string) (string, error) {
	id := uuid.New().String()
	_, err := db.ExecContext(ctx, `
		INSERT INTO ingest_runs (id, input_path, db_path, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, id, inputPath, dbPath, time.Now().Unix(), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to insert ingest run: %w", err)
	}
	return id, nil
}

// Finish marks the run succeeded, or failed when runErr is non-nil.
func Finish(ctx context.Context, db *sql.DB, id string, counts Counts, runErr error) error {
	status := StatusSucceeded
	var errVal any
	if runErr != nil {
		status = StatusFailed
		errVal = runErr.Error()
	}
	res, err := db.ExecContext(ctx, `
		UPDATE ingest_runs
		SET finished_at = ?, status = ?, conversations = ?, messages = ?, skipped = ?, batches = ?, error = ?
		WHERE id = ?
	`, time.Now().Unix(), status, counts.Conversations, counts.Messages, counts.Skipped, counts.Batches, errVal, id)
	if err != nil {
		return fmt.Errorf("failed to update ingest run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingest run %s not found", id)
	}
	return nil
}

// List returns the most recent runs first.
func List(ctx context.Context, db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, input_path, db_path, started_at, finished_at, status,
		       conversations, messages, skipped, batches, error
		FROM ingest_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.InputPath, &r.DBPath, &started, &finished, &r.Status,
			&r.Conversations, &r.Messages, &r.Skipped, &r.Batches, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			t := time.Unix(finished.Int64, 0)
			r.FinishedAt = &t
		}
		if errText.Valid {
			r.Error = &errText.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating ingest runs: %w", err)
	}
	return out, nil
}
