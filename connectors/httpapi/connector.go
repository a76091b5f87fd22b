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

// Package httpapi implements the connector contract for HTTP endpoints,
// covering both tool services and external agents. Payloads travel as
// JSON over POST with optional bearer authentication.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"chorus/engine/connectors/base"
)

// DefaultTimeout bounds one call when the endpoint config names none.
const DefaultTimeout = 30 * time.Second

// Connector posts JSON payloads to one configured endpoint.
type Connector struct {
	name      string
	url       string
	authToken string
	client    *http.Client
	logger    *log.Logger
}

var _ base.Connector = (*Connector)(nil)

// New builds a connector for one named endpoint.
func New(name, url, authToken string, timeout time.Duration) *Connector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Connector{
		name:      name,
		url:       url,
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
		logger:    log.New(os.Stdout, "[HTTPConnector] ", log.LstdFlags),
	}
}

func (c *Connector) Name() string { return c.name }
func (c *Connector) Type() string { return "http" }

// Call posts the payload and returns the decoded JSON body. Non-2xx
// responses produce a failed Result rather than an error so the engine
// can fold the status into the execution state.
func (c *Connector) Call(ctx context.Context, payload map[string]interface{}) (*base.Result, error) {
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, base.NewError(c.name, "Call", "failed to marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, base.NewError(c.name, "Call", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &base.Result{
			Success:  false,
			Error:    fmt.Sprintf("request to %s failed: %v", c.name, err),
			Duration: time.Since(start),
		}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &base.Result{
			Success:    false,
			Error:      fmt.Sprintf("failed to read response from %s: %v", c.name, err),
			StatusCode: resp.StatusCode,
			Duration:   time.Since(start),
		}, nil
	}

	result := &base.Result{
		StatusCode: resp.StatusCode,
		Duration:   time.Since(start),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("endpoint %s returned status %d: %s", c.name, resp.StatusCode, truncate(string(raw), 512))
		c.logger.Printf("call to %s failed with status %d", c.name, resp.StatusCode)
		return result, nil
	}

	result.Success = true
	var data interface{}
	if len(raw) > 0 && json.Unmarshal(raw, &data) == nil {
		result.Data = data
	} else {
		result.Data = string(raw)
	}
	return result, nil
}

// Test probes the endpoint with a GET. Any response at all counts as
// reachable; only transport failures fail the probe.
func (c *Connector) Test(ctx context.Context) (*base.TestResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, base.NewError(c.name, "Test", "failed to build request", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &base.TestResult{
			Success: false,
			Message: fmt.Sprintf("endpoint %s unreachable: %v", c.name, err),
			Latency: time.Since(start),
		}, nil
	}
	resp.Body.Close()

	return &base.TestResult{
		Success: true,
		Message: fmt.Sprintf("endpoint %s reachable (status %d)", c.name, resp.StatusCode),
		Latency: time.Since(start),
	}, nil
}

func (c *Connector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
