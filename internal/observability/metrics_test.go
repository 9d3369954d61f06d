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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	assert.Nil(t, NewMetrics(nil))
	assert.Nil(t, NewMetrics(&MetricsConfig{Enabled: false}))
}

func TestNilMetricsRecordMethodsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSessionStarted()
		m.RecordSessionFinished("completed")
		m.RecordStageRun("planner", time.Millisecond)
		m.RecordStageError("planner", "llm")
		m.RecordLLMCall("gpt-4", time.Millisecond)
		m.RecordLLMError("gpt-4", "timeout")
		m.RecordSourceCall("arxiv")
		m.RecordSourceError("arxiv")
		m.RecordCheckpointResolved("low_confidence", "continue")
		m.RecordHTTPRequest("/chat", "POST", 500, time.Millisecond)
	})
	assert.Nil(t, m.Handler())
}

func TestNewMetricsRegistersAndScrapes(t *testing.T) {
	m := NewMetrics(&MetricsConfig{Enabled: true})
	require.NotNil(t, m)

	m.RecordSessionStarted()
	m.RecordStageRun("searcher", 250*time.Millisecond)
	m.RecordLLMCall("gpt-4o", 1200*time.Millisecond)
	m.RecordSourceCall("openalex")
	m.RecordCheckpointResolved("gap_detected", "skip")
	m.RecordSessionFinished("completed")
	m.RecordHTTPRequest("/chat", "POST", 200, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "deepresearch_session_started_total")
	assert.Contains(t, body, "deepresearch_stage_duration_seconds")
	assert.Contains(t, body, "deepresearch_llm_calls_total")
	assert.Contains(t, body, "deepresearch_source_calls_total")
	assert.Contains(t, body, "deepresearch_checkpoint_resolved_total")
	assert.Contains(t, body, "deepresearch_http_requests_total")
}

func TestMetricsConfigDefaultsAndValidate(t *testing.T) {
	cfg := &MetricsConfig{Enabled: true}
	cfg.SetDefaults()
	assert.Equal(t, DefaultMetricsPath, cfg.Endpoint)
	assert.Equal(t, DefaultServiceName, cfg.Namespace)
	assert.NoError(t, cfg.Validate())

	disabled := &MetricsConfig{}
	assert.NoError(t, disabled.Validate())
}
