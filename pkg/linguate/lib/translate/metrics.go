// Copyright 2025 The Linguate Authors
//
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

package translate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the translator. All methods are nil-safe so callers
// can pass a nil *Metrics to disable instrumentation.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	decodedTokens   prometheus.Counter
	tensorsLive     prometheus.Gauge
}

// NewMetrics registers the translator metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linguate",
			Name:      "translate_requests_total",
			Help:      "Translation requests by outcome.",
		}, []string{"outcome"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linguate",
			Name:      "translate_request_duration_seconds",
			Help:      "End-to-end translation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		decodedTokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "linguate",
			Name:      "translate_decoded_tokens_total",
			Help:      "Tokens produced by the decoder, across all requests.",
		}),
		tensorsLive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "linguate",
			Name:      "tensors_live",
			Help:      "Tensors currently allocated and not yet released.",
		}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(outcome string, duration time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(duration.Seconds())
	m.decodedTokens.Add(float64(tokens))
}

// TensorCreated implements backends.Tracker.
func (m *Metrics) TensorCreated(name string) {
	if m == nil {
		return
	}
	m.tensorsLive.Inc()
}

// TensorReleased implements backends.Tracker.
func (m *Metrics) TensorReleased(name string) {
	if m == nil {
		return
	}
	m.tensorsLive.Dec()
}
