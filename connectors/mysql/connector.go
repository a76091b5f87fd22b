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

// Package mysql implements the connector contract for MySQL data
// sources with the same payload shape as the postgres connector.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"chorus/engine/connectors/base"
)

// Connector runs read queries against one MySQL database.
type Connector struct {
	name   string
	db     *sql.DB
	logger *log.Logger
}

var _ base.Connector = (*Connector)(nil)

// New opens a connection pool for dsn and verifies it with a ping.
func New(ctx context.Context, name, dsn string) (*Connector, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, base.NewError(name, "Connect", "failed to open connection", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, base.NewError(name, "Connect", "failed to ping database", err)
	}

	logger := log.New(os.Stdout, "[MySQL] ", log.LstdFlags)
	logger.Printf("connected: %s", name)

	return &Connector{name: name, db: db, logger: logger}, nil
}

// NewWithDB wraps an existing handle, for tests.
func NewWithDB(name string, db *sql.DB) *Connector {
	return &Connector{
		name:   name,
		db:     db,
		logger: log.New(os.Stdout, "[MySQL] ", log.LstdFlags),
	}
}

func (c *Connector) Name() string { return c.name }
func (c *Connector) Type() string { return "mysql" }

// Call executes the query named by payload["query"] with optional
// payload["args"].
func (c *Connector) Call(ctx context.Context, payload map[string]interface{}) (*base.Result, error) {
	start := time.Now()

	query, _ := payload["query"].(string)
	if query == "" {
		return &base.Result{Success: false, Error: "payload missing query", Duration: time.Since(start)}, nil
	}
	var args []interface{}
	if raw, ok := payload["args"].([]interface{}); ok {
		args = raw
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return &base.Result{
			Success:  false,
			Error:    fmt.Sprintf("query failed on %s: %v", c.name, err),
			Duration: time.Since(start),
		}, nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return &base.Result{
			Success:  false,
			Error:    fmt.Sprintf("failed to read columns from %s: %v", c.name, err),
			Duration: time.Since(start),
		}, nil
	}

	var data []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &base.Result{
				Success:  false,
				Error:    fmt.Sprintf("failed to scan row from %s: %v", c.name, err),
				Duration: time.Since(start),
			}, nil
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			// MySQL returns most values as []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return &base.Result{
			Success:  false,
			Error:    fmt.Sprintf("failed to read rows from %s: %v", c.name, err),
			Duration: time.Since(start),
		}, nil
	}

	return &base.Result{
		Success:  true,
		Data:     data,
		Duration: time.Since(start),
		Metadata: map[string]interface{}{"row_count": len(data)},
	}, nil
}

// Test pings the database.
func (c *Connector) Test(ctx context.Context) (*base.TestResult, error) {
	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		return &base.TestResult{
			Success: false,
			Message: fmt.Sprintf("database %s unreachable: %v", c.name, err),
			Latency: time.Since(start),
		}, nil
	}
	return &base.TestResult{
		Success: true,
		Message: fmt.Sprintf("database %s reachable", c.name),
		Latency: time.Since(start),
	}, nil
}

func (c *Connector) Close() error {
	return c.db.Close()
}
