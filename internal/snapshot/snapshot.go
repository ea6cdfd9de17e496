// Package snapshot mirrors in-flight run state into durable client storage
// so a reload mid-run can show "still thinking" immediately. There is no
// resume protocol: the snapshot is appearance only, the run itself is lost.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tally/internal/db"
	"tally/internal/runstate"
)

// Snapshot is the serializable subset of run state worth surviving a reload.
type Snapshot struct {
	Step            string   `json:"step"`
	ToolNames       []string `json:"toolNames"`
	ActiveToolNames []string `json:"activeToolNames"`
}

// FromState derives a snapshot from live run state.
func FromState(s *runstate.State) Snapshot {
	return Snapshot{
		Step:            s.Step,
		ToolNames:       s.ToolNames(),
		ActiveToolNames: s.ActiveToolNames(),
	}
}

// thinkingKey is the one fixed storage key. Every run overwrites the same
// slot; there is never more than one in-flight run per client.
const thinkingKey = "thinking"

type Store struct {
	conn *sql.DB
}

func NewStore(d *db.DB) *Store {
	return &Store{conn: d.Conn()}
}

func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO thinking_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		thinkingKey, string(b), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil when none exists.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM thinking_state WHERE key = ?`, thinkingKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(value), &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM thinking_state WHERE key = ?`, thinkingKey,
	)
	if err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	return nil
}
