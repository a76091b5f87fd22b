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
	"encoding/json"
	"fmt"
	"sync"
)

// SnapshotStore persists the full execution state after every node for
// crash diagnosis and resumption. Writes are best-effort: a failed save
// is logged by the engine and never fails the execution.
type SnapshotStore interface {
	Save(ctx context.Context, state *State) error
	Load(ctx context.Context, executionID string) (*State, error)
}

// InMemorySnapshotStore keeps snapshots in a map, for tests and
// single-process deployments. Snapshots are stored as serialized copies
// so later mutation of the live state cannot alter history.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

var _ SnapshotStore = (*InMemorySnapshotStore)(nil)

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: make(map[string][]byte)}
}

func (s *InMemorySnapshotStore) Save(_ context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", state.ExecutionID, err)
	}

	s.mu.Lock()
	s.snapshots[state.ExecutionID] = raw
	s.mu.Unlock()
	return nil
}

func (s *InMemorySnapshotStore) Load(_ context.Context, executionID string) (*State, error) {
	s.mu.RLock()
	raw, ok := s.snapshots[executionID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no snapshot for execution %s", executionID)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", executionID, err)
	}
	return &state, nil
}
