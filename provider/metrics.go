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

package provider

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_provider_requests_total",
			Help: "Total number of provider completion requests",
		},
		[]string{"provider", "outcome"},
	)
	promRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chorus_provider_request_duration_seconds",
			Help:    "Provider completion latency in seconds, retries included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)
	promRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_provider_retries_total",
			Help: "Total number of provider request retries",
		},
		[]string{"provider"},
	)
)

var registerMetricsOnce sync.Once

// RegisterMetrics registers the provider metrics with the default
// Prometheus registry. Safe to call more than once.
func RegisterMetrics() {
	registerMetricsOnce.Do(func() {
		prometheus.MustRegister(promRequestsTotal)
		prometheus.MustRegister(promRequestLatency)
		prometheus.MustRegister(promRetriesTotal)
	})
}
