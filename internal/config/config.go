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

// Package config loads the pipeline configuration of spec.md §4.8
// ("Configuration passed at start: maxSearchRounds, maxIterations,
// minPapersRequired, enableMultiSource, enableCitationValidation,
// enableContextCompression, citationStyle, qualityGate") from YAML, the
// same SetDefaults-after-unmarshal shape the teacher's v2/config package
// uses for its own Config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/deepresearch/internal/coordinator"
	"github.com/kadirpekel/deepresearch/internal/stage"
)

// QualityGate mirrors coordinator.QualityGate with yaml tags.
type QualityGate struct {
	MinOverallScore float64 `yaml:"minOverallScore"`
	MaxIterations   int     `yaml:"maxIterations"`
}

// Pipeline is the on-disk shape of the coordinator's run configuration.
// Every field maps 1:1 onto a coordinator.Config field; this type exists
// only to carry yaml tags and apply file-level defaults, the same
// separation of concerns the teacher keeps between its config.Config (the
// wire/file shape) and the runtime types it builds.
type Pipeline struct {
	MaxSearchRounds          int         `yaml:"maxSearchRounds"`
	MaxIterations            int         `yaml:"maxIterations"`
	MinPapersRequired        int         `yaml:"minPapersRequired"`
	EnableMultiSource        bool        `yaml:"enableMultiSource"`
	EnableCitationValidation bool        `yaml:"enableCitationValidation"`
	EnableContextCompression bool        `yaml:"enableContextCompression"`
	CitationStyle            string      `yaml:"citationStyle"`
	QualityGate              QualityGate `yaml:"qualityGate"`
}

// DefaultCitationStyle is used when a loaded Pipeline omits citationStyle.
const DefaultCitationStyle = "apa"

// SetDefaults fills zero-valued fields with the stage package's own
// defaults. Mirrors the teacher's CreateZeroConfig/SetDefaults split:
// only fields left unset by the file get a default, nothing already
// configured is overridden.
func (p *Pipeline) SetDefaults() {
	if p.MaxSearchRounds <= 0 {
		p.MaxSearchRounds = stage.DefaultMaxSearchRounds
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = stage.DefaultMaxIterations
	}
	if p.CitationStyle == "" {
		p.CitationStyle = DefaultCitationStyle
	}
	if p.QualityGate.MinOverallScore <= 0 {
		p.QualityGate.MinOverallScore = stage.DefaultMinOverallScore
	}
	if p.QualityGate.MaxIterations <= 0 {
		p.QualityGate.MaxIterations = p.MaxIterations
	}
}

// Validate rejects a citationStyle this system's citation formatters
// don't recognise, per spec.md §6's "apa, mla, chicago, ieee, gbt7714".
func (p Pipeline) Validate() error {
	switch p.CitationStyle {
	case "apa", "mla", "chicago", "ieee", "gbt7714":
	default:
		return fmt.Errorf("config: unrecognised citationStyle %q", p.CitationStyle)
	}
	if p.QualityGate.MinOverallScore < 0 || p.QualityGate.MinOverallScore > 100 {
		return fmt.Errorf("config: qualityGate.minOverallScore %v out of range [0,100]", p.QualityGate.MinOverallScore)
	}
	return nil
}

// ToCoordinatorConfig builds the runtime coordinator.Config this Pipeline
// describes.
func (p Pipeline) ToCoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		MaxSearchRounds:          p.MaxSearchRounds,
		MaxIterations:            p.MaxIterations,
		MinPapersRequired:        p.MinPapersRequired,
		EnableMultiSource:        p.EnableMultiSource,
		EnableCitationValidation: p.EnableCitationValidation,
		EnableContextCompression: p.EnableContextCompression,
		CitationStyle:            p.CitationStyle,
		QualityGate: coordinator.QualityGate{
			MinOverallScore: p.QualityGate.MinOverallScore,
			MaxIterations:   p.QualityGate.MaxIterations,
		},
	}
}

// Load reads a Pipeline from a YAML file at path, applies defaults, and
// validates it. A missing file is not an error: Load returns a
// zero-valued Pipeline with defaults applied, matching zero-config mode.
func Load(path string) (Pipeline, error) {
	var p Pipeline

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.SetDefaults()
			return p, p.Validate()
		}
		return Pipeline{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}
