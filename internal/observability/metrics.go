// Copyright 2025 Kadir Pekel
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

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters/histograms across the pipeline's
// session, stage, LLM-call, source-call and checkpoint boundaries, the
// same boundaries Tracer spans. Grounded on the teacher's
// pkg/observability.Metrics: one CounterVec/HistogramVec pair per
// concern, a private registry, MustRegister at construction, Record*
// methods as the only write path.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionsActive   prometheus.Gauge

	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	llmCalls    *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
	llmErrors   *prometheus.CounterVec

	sourceCalls  *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec

	checkpointsResolved *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics builds a Metrics instance from cfg. A disabled or nil
// config returns a nil *Metrics (not an error); every Record* method is
// a no-op on a nil receiver.
func NewMetrics(cfg *MetricsConfig) *Metrics {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	cfg.SetDefaults()

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "session", Name: "started_total",
		Help: "Total number of research sessions created.", ConstLabels: cfg.ConstLabels,
	}, nil)
	m.sessionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "session", Name: "finished_total",
		Help: "Total number of research sessions reaching a terminal state, by state.", ConstLabels: cfg.ConstLabels,
	}, []string{"state"})
	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace, Subsystem: "session", Name: "active",
		Help: "Number of sessions currently running.", ConstLabels: cfg.ConstLabels,
	})

	m.stageRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "stage", Name: "runs_total",
		Help: "Total number of stage executor runs, by stage.", ConstLabels: cfg.ConstLabels,
	}, []string{"stage"})
	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "stage", Name: "duration_seconds",
		Help: "Stage executor run duration in seconds, by stage.", ConstLabels: cfg.ConstLabels,
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms .. ~205s
	}, []string{"stage"})
	m.stageErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "stage", Name: "errors_total",
		Help: "Total number of stage executor errors, by stage and error kind.", ConstLabels: cfg.ConstLabels,
	}, []string{"stage", "kind"})

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total number of LLM calls, by model.", ConstLabels: cfg.ConstLabels,
	}, []string{"model"})
	m.llmDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "llm", Name: "duration_seconds",
		Help: "LLM call duration in seconds, by model.", ConstLabels: cfg.ConstLabels,
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})
	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "llm", Name: "errors_total",
		Help: "Total number of LLM call errors, by model and error kind.", ConstLabels: cfg.ConstLabels,
	}, []string{"model", "kind"})

	m.sourceCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "source", Name: "calls_total",
		Help: "Total number of paper source calls, by source.", ConstLabels: cfg.ConstLabels,
	}, []string{"source"})
	m.sourceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "source", Name: "errors_total",
		Help: "Total number of paper source call errors, by source.", ConstLabels: cfg.ConstLabels,
	}, []string{"source"})

	m.checkpointsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "checkpoint", Name: "resolved_total",
		Help: "Total number of checkpoints resolved, by type and action.", ConstLabels: cfg.ConstLabels,
	}, []string{"type", "action"})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace, Subsystem: "http", Name: "requests_total",
		Help: "Total number of HTTP requests, by route, method and status.", ConstLabels: cfg.ConstLabels,
	}, []string{"route", "method", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace, Subsystem: "http", Name: "duration_seconds",
		Help: "HTTP request duration in seconds, by route.", ConstLabels: cfg.ConstLabels,
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	m.registry.MustRegister(
		m.sessionsStarted, m.sessionsFinished, m.sessionsActive,
		m.stageRuns, m.stageDuration, m.stageErrors,
		m.llmCalls, m.llmDuration, m.llmErrors,
		m.sourceCalls, m.sourceErrors,
		m.checkpointsResolved,
		m.httpRequests, m.httpDuration,
	)
	return m
}

func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues().Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) RecordSessionFinished(state string) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(state).Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) RecordStageRun(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *Metrics) RecordStageError(stage, kind string) {
	if m == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) RecordLLMCall(model string, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model).Inc()
	m.llmDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func (m *Metrics) RecordLLMError(model, kind string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(model, kind).Inc()
}

func (m *Metrics) RecordSourceCall(source string) {
	if m == nil {
		return
	}
	m.sourceCalls.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordSourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordCheckpointResolved(checkpointType, action string) {
	if m == nil {
		return
	}
	m.checkpointsResolved.WithLabelValues(checkpointType, action).Inc()
}

// RecordHTTPRequest records one completed HTTP request, keyed by route
// pattern (not raw path, to avoid unbounded cardinality from path
// parameters).
func (m *Metrics) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler exposes the Prometheus scrape endpoint. Returns nil if metrics
// are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
