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

// Package base defines the contract every backend connector implements.
// The engine treats connectors as black boxes: a call either succeeds
// with an opaque payload or fails with an error string and status code.
package base

import (
	"context"
	"fmt"
	"time"
)

// Connector is one named backend: an HTTP tool or agent endpoint, or a
// database data source. Implementations must be safe for concurrent use.
type Connector interface {
	// Call performs one operation with an opaque payload.
	Call(ctx context.Context, payload map[string]interface{}) (*Result, error)

	// Test verifies the backend is reachable.
	Test(ctx context.Context) (*TestResult, error)

	// Name returns the configured connector name.
	Name() string

	// Type returns the connector kind (http, postgres, mysql, mongodb).
	Type() string

	// Close releases held connections.
	Close() error
}

// Result is the outcome of one Call. Exactly one of Data and Error is
// meaningful, selected by Success.
type Result struct {
	Success    bool                   `json:"success"`
	Data       interface{}            `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StatusCode int                    `json:"status_code"`
	Duration   time.Duration          `json:"duration"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// TestResult is the outcome of a connectivity probe.
type TestResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Latency time.Duration `json:"latency"`
}

// ConnectorError wraps a failure with the connector and operation that
// produced it.
type ConnectorError struct {
	Connector string
	Operation string
	Message   string
	Err       error
}

func (e *ConnectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connector %s: %s: %s: %v", e.Connector, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("connector %s: %s: %s", e.Connector, e.Operation, e.Message)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// NewError builds a ConnectorError.
func NewError(connector, operation, message string, err error) *ConnectorError {
	return &ConnectorError{Connector: connector, Operation: operation, Message: message, Err: err}
}
