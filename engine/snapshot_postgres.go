// Copyright 2025 Chorus
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresSnapshotStore persists execution snapshots in a single table,
// one row per execution, newest state winning.
type PostgresSnapshotStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*PostgresSnapshotStore)(nil)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS execution_snapshots (
    execution_id TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    current_node TEXT NOT NULL,
    iteration    INT  NOT NULL,
    state        JSONB NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresSnapshotStore connects to dsn and ensures the snapshot
// table exists.
func NewPostgresSnapshotStore(ctx context.Context, dsn string) (*PostgresSnapshotStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping snapshot database: %w", err)
	}
	if _, err := db.ExecContext(ctx, snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure snapshot table: %w", err)
	}
	return &PostgresSnapshotStore{db: db}, nil
}

// NewPostgresSnapshotStoreWithDB wraps an existing handle, for tests.
func NewPostgresSnapshotStoreWithDB(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", state.ExecutionID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_snapshots (execution_id, user_id, current_node, iteration, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (execution_id) DO UPDATE
		SET current_node = EXCLUDED.current_node,
		    iteration    = EXCLUDED.iteration,
		    state        = EXCLUDED.state,
		    updated_at   = now()`,
		state.ExecutionID, state.UserID, string(state.CurrentNode), state.Iteration, raw)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", state.ExecutionID, err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Load(ctx context.Context, executionID string) (*State, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM execution_snapshots WHERE execution_id = $1`, executionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no snapshot for execution %s", executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", executionID, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", executionID, err)
	}
	return &state, nil
}

// Close releases the database handle.
func (s *PostgresSnapshotStore) Close() error {
	return s.db.Close()
}
