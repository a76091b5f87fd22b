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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySnapshotStoreIsolation(t *testing.T) {
	s := NewInMemorySnapshotStore()
	ctx := context.Background()

	st := NewState("u1", "hello")
	st.Iteration = 2
	require.NoError(t, s.Save(ctx, st))

	// Mutating the live state must not alter the stored snapshot
	st.Iteration = 9
	st.Answer = "changed"

	loaded, err := s.Load(ctx, st.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Iteration)
	assert.Empty(t, loaded.Answer)
}

func TestInMemorySnapshotStoreMissing(t *testing.T) {
	s := NewInMemorySnapshotStore()
	_, err := s.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestPostgresSnapshotStoreSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewPostgresSnapshotStoreWithDB(db)
	defer s.Close()

	st := NewState("u1", "hello")
	st.CurrentNode = NodeLLMAgent
	st.Iteration = 3

	mock.ExpectExec("INSERT INTO execution_snapshots").
		WithArgs(st.ExecutionID, "u1", "llmAgent", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), st))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotStoreLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewPostgresSnapshotStoreWithDB(db)
	defer s.Close()

	st := NewState("u1", "hello")
	st.Answer = "stored answer"
	raw, err := json.Marshal(st)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT state FROM execution_snapshots").
		WithArgs(st.ExecutionID).
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(raw))

	loaded, err := s.Load(context.Background(), st.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "stored answer", loaded.Answer)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotStoreLoadMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewPostgresSnapshotStoreWithDB(db)
	defer s.Close()

	mock.ExpectQuery("SELECT state FROM execution_snapshots").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	_, err = s.Load(context.Background(), "ghost")
	assert.Error(t, err)
}
