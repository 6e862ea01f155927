// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package metrics holds the Prometheus instruments shared by the Inference
// Service and the Conclusion Engine, the same global-only (no unbounded
// label cardinality) style the teacher used for its churn telemetry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bandit_http_requests_total",
		Help: "Total HTTP requests handled by the inference service, by route and status class.",
	}, []string{"route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bandit_http_request_duration_seconds",
		Help:    "Latency of inference service HTTP requests, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	concludedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bandit_experiments_concluded_total",
		Help: "Total experiments transitioned to concluded by the conclusion engine.",
	})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bandit_sweep_duration_seconds",
		Help:    "Duration of a full conclusion engine sweep.",
		Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, concludedTotal, sweepDuration)
}

// Handler exposes the registered collectors in Prometheus text exposition
// format for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps an HTTP handler so every call records request count and
// latency under route, classifying status codes into "2xx"/"4xx"/"5xx"
// buckets to keep label cardinality bounded.
func Instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		requestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
		requestsTotal.WithLabelValues(route, statusClass(sw.status)).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// RecordConcluded records one experiment transitioning to concluded.
func RecordConcluded() { concludedTotal.Inc() }

// ObserveSweepDuration records the wall-clock duration of one sweep.
func ObserveSweepDuration(d time.Duration) { sweepDuration.Observe(d.Seconds()) }
