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

package stage

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/kadirpekel/deepresearch/internal/llmclient"
	"github.com/kadirpekel/deepresearch/internal/memory"
)

// CriticStageName identifies the critic executor.
const CriticStageName = "critic"

// Decision is the Critic's verdict on whether a draft clears the quality
// gate, per spec.md §4.8.
type Decision string

const (
	DecisionPass    Decision = "pass"
	DecisionIterate Decision = "iterate"
	DecisionFail    Decision = "fail"
)

// DefaultMinOverallScore is the quality gate threshold (on the 0-100
// overallScore scale of spec.md §3) a draft must clear for DecisionPass.
const DefaultMinOverallScore = 70.0

// DefaultMaxIterations is the iteration count at or above which the Critic
// returns DecisionFail for a draft scoring below the gate.
const DefaultMaxIterations = 3

type criticOutput struct {
	OverallScore           float64            `json:"overallScore" jsonschema:"required,minimum=0,maximum=100"`
	CoverageScore          float64            `json:"coverageScore" jsonschema:"minimum=0,maximum=100"`
	CitationDensity        float64            `json:"citationDensity"`
	RecencyScore           float64            `json:"recencyScore" jsonschema:"minimum=0,maximum=100"`
	UniqueSourcesUsed      int                `json:"uniqueSourcesUsed"`
	OpenAccessPercentage   float64            `json:"openAccessPercentage" jsonschema:"minimum=0,maximum=100"`
	PerSubQuestionCoverage map[string]float64 `json:"perSubQuestionCoverage,omitempty"`
	GapsIdentified         []string           `json:"gapsIdentified"`
	ImprovementSuggestions []string           `json:"improvementSuggestions"`
	PerSectionNotes        map[string]string  `json:"perSectionNotes,omitempty"`
}

// CriticResult bundles the Critic's structured verdict with the gate
// decision the Coordinator acts on.
type CriticResult struct {
	Metrics  memory.QualityMetrics
	Analysis memory.CriticAnalysis
	Decision Decision
}

// Critic scores the latest report version in mem and decides whether it
// clears the quality gate, recording identified gaps as TrackedGaps.
func Critic(ctx context.Context, llm *llmclient.Client, mem *memory.Memory, minOverallScore float64, maxIterations int) iter.Seq2[Event, error] {
	if minOverallScore <= 0 {
		minOverallScore = DefaultMinOverallScore
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return func(yield func(Event, error) bool) {
		start := time.Now()
		ev := startEvent(CriticStageName, "Scoring draft quality")
		if !yield(ev, nil) {
			return
		}

		latest, ok := mem.GetLatest()
		if !ok {
			yield(completeEvent(ev.ID, CriticStageName, StatusFailed, time.Since(start), nil), fmt.Errorf("stage: critic: no report draft to score"))
			return
		}

		prompt := fmt.Sprintf(
			"Score this research report draft for overall quality, coverage, citation "+
				"density per 500 words, recency, unique sources used, and open-access "+
				"percentage, each on a 0-100 scale. Identify remaining gaps and concrete "+
				"improvement suggestions.\n\nDraft:\n%s", latest.Content)

		out, err := llmclient.StructuredGenerate[criticOutput](ctx, llm, llmclient.GenerateOptions{Prompt: prompt})
		if err != nil {
			yield(completeEvent(ev.ID, CriticStageName, StatusFailed, time.Since(start), nil), fmt.Errorf("stage: critic: %w", err))
			return
		}

		metrics := memory.QualityMetrics{
			OverallScore:           out.OverallScore,
			CoverageScore:          out.CoverageScore,
			CitationDensity:        out.CitationDensity,
			RecencyScore:           out.RecencyScore,
			UniqueSourcesUsed:      out.UniqueSourcesUsed,
			OpenAccessPercentage:   out.OpenAccessPercentage,
			PerSubQuestionCoverage: out.PerSubQuestionCoverage,
		}
		analysis := memory.CriticAnalysis{
			OverallScore:           out.OverallScore,
			GapsIdentified:         out.GapsIdentified,
			ImprovementSuggestions: out.ImprovementSuggestions,
			PerSectionNotes:        out.PerSectionNotes,
		}

		mem.SaveReportVersion(latest.Content, &metrics, &analysis)
		for _, gap := range out.GapsIdentified {
			mem.AddTrackedGap(gap, "identified by critic")
		}

		decision := DecisionIterate
		switch {
		case out.OverallScore >= minOverallScore:
			decision = DecisionPass
		case mem.Iteration() >= maxIterations:
			decision = DecisionFail
		}

		if !yield(Event{ID: newID(CriticStageName), Kind: KindCard, Stage: CriticStageName, CardKind: CardQuality, Card: CriticResult{
			Metrics:  metrics,
			Analysis: analysis,
			Decision: decision,
		}}, nil) {
			return
		}

		yield(completeEvent(ev.ID, CriticStageName, StatusDone, time.Since(start), map[string]any{
			"overallScore": out.OverallScore,
			"decision":     string(decision),
		}), nil)
	}
}
