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

package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/engine/config"
	"chorus/engine/connectors/base"
)

// fakeConnector records calls for dispatch tests.
type fakeConnector struct {
	name   string
	called bool
	closed bool
}

func (f *fakeConnector) Call(ctx context.Context, payload map[string]interface{}) (*base.Result, error) {
	f.called = true
	return &base.Result{Success: true, Data: "from " + f.name}, nil
}

func (f *fakeConnector) Test(ctx context.Context) (*base.TestResult, error) {
	return &base.TestResult{Success: true}, nil
}

func (f *fakeConnector) Name() string { return f.name }
func (f *fakeConnector) Type() string { return "fake" }
func (f *fakeConnector) Close() error { f.closed = true; return nil }

func TestRegistryDispatch(t *testing.T) {
	r := New()
	fc := &fakeConnector{name: "alpha"}
	require.NoError(t, r.Register(fc))

	res, err := r.Call(context.Background(), "alpha", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, fc.called)
	assert.Equal(t, "from alpha", res.Data)
}

func TestRegistryUnknownName(t *testing.T) {
	r := New()

	_, err := r.Call(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown connector")

	_, err = r.Test(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRegistryDuplicateName(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeConnector{name: "dup"}))
	assert.Error(t, r.Register(&fakeConnector{name: "dup"}))
}

func TestRegistryCloseAll(t *testing.T) {
	r := New()
	a := &fakeConnector{name: "a"}
	b := &fakeConnector{name: "b"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	require.NoError(t, r.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Empty(t, r.Names())
}

func TestBuildEndpointsSkipsDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r, err := BuildEndpoints(map[string]config.EndpointConfig{
		"live":     {URL: srv.URL, Enabled: true},
		"disabled": {URL: srv.URL, Enabled: false},
	})
	require.NoError(t, err)
	defer r.Close()

	_, ok := r.Get("live")
	assert.True(t, ok)
	_, ok = r.Get("disabled")
	assert.False(t, ok)

	res, err := r.Call(context.Background(), "live", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestBuildDataSourcesRejectsUnknownType(t *testing.T) {
	_, err := BuildDataSources(context.Background(), map[string]config.DataSourceConfig{
		"bad": {Type: "oracle", DSN: "whatever", Enabled: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported datasource type")
}

func TestBuildDataSourcesHTTPType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rows":[]}`))
	}))
	defer srv.Close()

	r, err := BuildDataSources(context.Background(), map[string]config.DataSourceConfig{
		"api-source": {Type: "http", DSN: srv.URL, Enabled: true},
	})
	require.NoError(t, err)
	defer r.Close()

	res, err := r.Call(context.Background(), "api-source", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
