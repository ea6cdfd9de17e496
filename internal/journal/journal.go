// Package journal keeps an audit record of runs on the server side. It is
// not a resume mechanism: a reloaded client re-asks, it never replays.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tally/internal/db"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
	StatusCancelled Status = "cancelled"
)

type Run struct {
	ID         string  `json:"id"`
	Query      string  `json:"query"`
	Mode       string  `json:"mode"`
	Status     Status  `json:"status"`
	Answer     string  `json:"answer"`
	StartedAt  int64   `json:"started_at"`
	FinishedAt *int64  `json:"finished_at,omitempty"`
}

type Store struct {
	conn *sql.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{conn: d.Conn()}
}

func (s *Store) Begin(ctx context.Context, id, query, mode string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO runs (id, query, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, query, mode, StatusRunning, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("journaling run start: %w", err)
	}
	return nil
}

func (s *Store) Finish(ctx context.Context, id string, status Status, answer string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, answer = ?, finished_at = ? WHERE id = ?`,
		status, answer, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("journaling run finish: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, query, mode, status, answer, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Query, &r.Mode, &r.Status, &r.Answer, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Int64
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
