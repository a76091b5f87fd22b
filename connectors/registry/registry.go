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

// Package registry resolves connector names to live connectors. The
// engine holds three registries, one each for tools, external agents
// and data sources, all built once from configuration at startup.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chorus/engine/config"
	"chorus/engine/connectors/base"
	"chorus/engine/connectors/httpapi"
	"chorus/engine/connectors/mongodb"
	"chorus/engine/connectors/mysql"
	"chorus/engine/connectors/postgres"
	"chorus/engine/shared/logger"
)

// Registry is a named set of connectors, safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]base.Connector
	log        *logger.Logger
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		connectors: make(map[string]base.Connector),
		log:        logger.New("registry"),
	}
}

// Register adds a connector under its own name. Re-registering a name
// is an error; connectors are wired once at startup.
func (r *Registry) Register(c base.Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("connector %q already registered", name)
	}
	r.connectors[name] = c
	return nil
}

// Get returns the named connector.
func (r *Registry) Get(name string) (base.Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

// Names returns the registered connector names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	return names
}

// Call dispatches one call to the named connector.
func (r *Registry) Call(ctx context.Context, name string, payload map[string]interface{}) (*base.Result, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown connector %q", name)
	}
	return c.Call(ctx, payload)
}

// Test probes the named connector.
func (r *Registry) Test(ctx context.Context, name string) (*base.TestResult, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown connector %q", name)
	}
	return c.Test(ctx)
}

// Close closes every connector, returning the first error seen.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for name, c := range r.connectors {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("failed to close connector %q: %w", name, err)
		}
	}
	r.connectors = make(map[string]base.Connector)
	return first
}

// BuildEndpoints builds a registry of HTTP connectors from named
// endpoint configs. Disabled endpoints are skipped.
func BuildEndpoints(endpoints map[string]config.EndpointConfig) (*Registry, error) {
	r := New()
	for name, ep := range endpoints {
		if !ep.Enabled {
			continue
		}
		timeout := time.Duration(ep.TimeoutSeconds) * time.Second
		if err := r.Register(httpapi.New(name, ep.URL, ep.AuthToken, timeout)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// BuildDataSources builds a registry of data source connectors from
// named configs. Database backends are connected and pinged here, so a
// misconfigured source fails startup instead of the first query.
func BuildDataSources(ctx context.Context, sources map[string]config.DataSourceConfig) (*Registry, error) {
	r := New()
	for name, ds := range sources {
		if !ds.Enabled {
			continue
		}

		var (
			c   base.Connector
			err error
		)
		switch ds.Type {
		case "postgres":
			c, err = postgres.New(ctx, name, ds.DSN)
		case "mysql":
			c, err = mysql.New(ctx, name, ds.DSN)
		case "mongodb":
			c, err = mongodb.New(ctx, name, ds.DSN, ds.Database)
		case "http":
			timeout := time.Duration(ds.TimeoutSeconds) * time.Second
			c = httpapi.New(name, ds.DSN, ds.AuthToken, timeout)
		default:
			err = fmt.Errorf("unsupported datasource type %q for %q", ds.Type, name)
		}
		if err != nil {
			r.Close()
			return nil, err
		}
		if err := r.Register(c); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}
