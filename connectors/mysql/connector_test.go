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

package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallDecodesByteValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	c := NewWithDB("inventory-db", db)
	defer c.Close()

	mock.ExpectQuery("SELECT sku, qty FROM inventory").
		WillReturnRows(sqlmock.NewRows([]string{"sku", "qty"}).
			AddRow([]byte("A-100"), []byte("7")))

	res, err := c.Call(context.Background(), map[string]interface{}{
		"query": "SELECT sku, qty FROM inventory",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	rows := res.Data.([]map[string]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "A-100", rows[0]["sku"])
	assert.Equal(t, "7", rows[0]["qty"])
}

func TestCallMissingQuery(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	c := NewWithDB("inventory-db", db)
	defer c.Close()

	res, err := c.Call(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestTestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	c := NewWithDB("inventory-db", db)
	defer c.Close()

	mock.ExpectPing()
	res, err := c.Test(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
}
