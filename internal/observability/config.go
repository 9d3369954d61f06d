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

// Package observability wires OpenTelemetry tracing and Prometheus
// metrics around the research pipeline: one span per session, one per
// stage executor run, one per LLM call and per source call; one set of
// counters/histograms mirroring the same boundaries. Grounded on the
// teacher's v2/observability (Tracer/span helpers) and
// pkg/observability (Config/Metrics shape, since v2/observability
// assumes a TracingConfig/MetricsConfig defined alongside it that the
// retrieved v2 tree didn't include).
package observability

import (
	"fmt"
	"time"
)

// DefaultServiceName names this service in traces and metrics.
const DefaultServiceName = "deepresearch"

// DefaultSamplingRate traces every request, matching the teacher's
// zero-config default.
const DefaultSamplingRate = 1.0

// DefaultOTLPEndpoint is the default OTLP gRPC collector address.
const DefaultOTLPEndpoint = "localhost:4317"

// DefaultMetricsPath is the default Prometheus scrape path.
const DefaultMetricsPath = "/metrics"

// Config configures both tracing and metrics.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// SetDefaults applies defaults to both sub-configs.
func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate validates both sub-configs.
func (c *Config) Validate() error {
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled,omitempty"`
	Exporter       string            `yaml:"exporter,omitempty"` // otlp | stdout
	Endpoint       string            `yaml:"endpoint,omitempty"`
	SamplingRate   float64           `yaml:"samplingRate,omitempty"`
	ServiceName    string            `yaml:"serviceName,omitempty"`
	ServiceVersion string            `yaml:"serviceVersion,omitempty"`
	Insecure       *bool             `yaml:"insecure,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Timeout        time.Duration     `yaml:"timeout,omitempty"`
}

func (c *TracingConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = DefaultSamplingRate
	}
	if c.Exporter == "" {
		c.Exporter = "otlp"
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultOTLPEndpoint
	}
	if c.Insecure == nil {
		insecure := true
		c.Insecure = &insecure
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when tracing is enabled")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("samplingRate must be between 0 and 1, got %v", c.SamplingRate)
	}
	switch c.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("invalid exporter %q (valid: otlp, stdout)", c.Exporter)
	}
	return nil
}

// IsInsecure reports whether the OTLP exporter should skip TLS.
func (c *TracingConfig) IsInsecure() bool {
	if c.Insecure == nil {
		return true
	}
	return *c.Insecure
}

// MetricsConfig configures the Prometheus registry.
type MetricsConfig struct {
	Enabled     bool              `yaml:"enabled,omitempty"`
	Endpoint    string            `yaml:"endpoint,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty"`
	ConstLabels map[string]string `yaml:"constLabels,omitempty"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultMetricsPath
	}
	if c.Namespace == "" {
		c.Namespace = DefaultServiceName
	}
}

func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when metrics are enabled")
	}
	return nil
}
