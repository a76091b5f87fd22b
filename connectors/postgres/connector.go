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

// Package postgres implements the connector contract for PostgreSQL
// data sources. Payloads carry a query string plus positional args; the
// result is a slice of column-keyed row maps.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"chorus/engine/connectors/base"
)

// Connector runs read queries against one PostgreSQL database.
type Connector struct {
	name   string
	db     *sql.DB
	logger *log.Logger
}

var _ base.Connector = (*Connector)(nil)

// New opens a connection pool for dsn and verifies it with a ping.
func New(ctx context.Context, name, dsn string) (*Connector, error) {
	db, err := sql.Open("postgres", dsn)
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

	logger := log.New(os.Stdout, "[Postgres] ", log.LstdFlags)
	logger.Printf("connected: %s", name)

	return &Connector{name: name, db: db, logger: logger}, nil
}

// NewWithDB wraps an existing handle, for tests.
func NewWithDB(name string, db *sql.DB) *Connector {
	return &Connector{
		name:   name,
		db:     db,
		logger: log.New(os.Stdout, "[Postgres] ", log.LstdFlags),
	}
}

func (c *Connector) Name() string { return c.name }
func (c *Connector) Type() string { return "postgres" }

// Call executes the query named by payload["query"] with optional
// payload["args"]. Rows come back as column-keyed maps in Result.Data.
func (c *Connector) Call(ctx context.Context, payload map[string]interface{}) (*base.Result, error) {
	start := time.Now()

	query, args, err := queryFromPayload(payload)
	if err != nil {
		return &base.Result{Success: false, Error: err.Error(), Duration: time.Since(start)}, nil
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

	data, err := scanRows(rows)
	if err != nil {
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

// queryFromPayload extracts the statement and positional args.
func queryFromPayload(payload map[string]interface{}) (string, []interface{}, error) {
	query, _ := payload["query"].(string)
	if query == "" {
		return "", nil, fmt.Errorf("payload missing query")
	}
	var args []interface{}
	if raw, ok := payload["args"].([]interface{}); ok {
		args = raw
	}
	return query, args, nil
}

// scanRows converts a result set into column-keyed maps.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
