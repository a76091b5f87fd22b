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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_executions_total",
			Help: "Total number of orchestration executions",
		},
		[]string{"intent", "status"},
	)
	promExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chorus_execution_duration_seconds",
			Help:    "End-to-end execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	promNodeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_node_transitions_total",
			Help: "Total number of state machine node executions",
		},
		[]string{"node"},
	)
	promCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_cache_lookups_total",
			Help: "Response cache lookups by outcome",
		},
		[]string{"outcome"},
	)
)

var registerMetricsOnce sync.Once

// RegisterMetrics registers the engine's metrics with the default
// Prometheus registry. Safe to call more than once.
func RegisterMetrics() {
	registerMetricsOnce.Do(func() {
		prometheus.MustRegister(promExecutionsTotal)
		prometheus.MustRegister(promExecutionDuration)
		prometheus.MustRegister(promNodeTransitions)
		prometheus.MustRegister(promCacheLookups)
	})
}
