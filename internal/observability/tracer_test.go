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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerDisabledReturnsNil(t *testing.T) {
	tr, err := NewTracer(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = NewTracer(context.Background(), &TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestNewTracerRejectsUnsupportedExporter(t *testing.T) {
	_, err := NewTracer(context.Background(), &TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestNewTracerStdoutExporter(t *testing.T) {
	tr, err := NewTracer(context.Background(), &TracingConfig{Enabled: true, Exporter: "stdout"})
	require.NoError(t, err)
	require.NotNil(t, tr)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	ctx, span := tr.StartSession(context.Background(), "sess-1", "quantum computing")
	assert.NotNil(t, ctx)
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestNilTracerMethodsAreNoop(t *testing.T) {
	var tr *Tracer
	ctx := context.Background()

	rctx, span := tr.StartSession(ctx, "sess-1", "query")
	assert.Equal(t, ctx, rctx)
	assert.NotNil(t, span)

	_, span = tr.StartStage(ctx, "planner", 1)
	assert.NotNil(t, span)
	_, span = tr.StartLLMCall(ctx, "gpt-4")
	assert.NotNil(t, span)
	_, span = tr.StartSourceCall(ctx, "arxiv")
	assert.NotNil(t, span)
	_, span = tr.StartCheckpoint(ctx, "low_confidence")
	assert.NotNil(t, span)

	assert.NotPanics(t, func() { tr.RecordError(span, "llm", errors.New("boom")) })
	assert.NoError(t, tr.Shutdown(ctx))
}

func TestTracingConfigDefaultsAndValidate(t *testing.T) {
	cfg := &TracingConfig{Enabled: true}
	cfg.SetDefaults()
	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Equal(t, DefaultSamplingRate, cfg.SamplingRate)
	assert.Equal(t, "otlp", cfg.Exporter)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Endpoint)
	assert.True(t, cfg.IsInsecure())
	assert.NoError(t, cfg.Validate())

	cfg.SamplingRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg.SamplingRate = 0.5
	cfg.Exporter = "jaeger"
	assert.Error(t, cfg.Validate())
}

func TestConfigSetDefaultsAndValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.NoError(t, c.Validate())
}
