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

// StageName identifies this executor in AgentEvents and logs.
const StageName = "planner"

type searchStrategyOutput struct {
	Keywords          []string `json:"keywords" jsonschema:"required"`
	YearFrom          int      `json:"yearFrom,omitempty"`
	YearTo            int      `json:"yearTo,omitempty"`
	SourcePreferences []string `json:"sourcePreferences,omitempty"`
}

type plannerOutput struct {
	MainQuestion     string                 `json:"mainQuestion" jsonschema:"required"`
	SubQuestions     []string               `json:"subQuestions" jsonschema:"required,description=3 to 6 focused sub-questions covering the main question"`
	SearchStrategies []searchStrategyOutput `json:"searchStrategies" jsonschema:"required"`
	ExpectedSections []string               `json:"expectedSections" jsonschema:"required,description=Section headings the final report should have"`
}

// Planner produces a ResearchPlan from the user's query and stores it in
// mem, emitting a start event, a plan card, and a complete event.
func Planner(ctx context.Context, llm *llmclient.Client, mem *memory.Memory, query string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		start := time.Now()
		ev := startEvent(StageName, "Planning research")
		if !yield(ev, nil) {
			return
		}

		prompt := fmt.Sprintf(
			"Produce a research plan for the question: %q\n"+
				"Break it into focused sub-questions, a search strategy per sub-question "+
				"(keywords, an optional year range, and preferred bibliographic sources), "+
				"and the section headings the final report should have.", query)

		out, err := llmclient.StructuredGenerate[plannerOutput](ctx, llm, llmclient.GenerateOptions{Prompt: prompt})
		if err != nil {
			yield(completeEvent(ev.ID, StageName, StatusFailed, time.Since(start), nil), fmt.Errorf("stage: planner: %w", err))
			return
		}

		plan := memory.ResearchPlan{
			MainQuestion:     out.MainQuestion,
			SubQuestions:     out.SubQuestions,
			ExpectedSections: out.ExpectedSections,
		}
		for _, s := range out.SearchStrategies {
			plan.SearchStrategies = append(plan.SearchStrategies, memory.SearchStrategy{
				Keywords:          s.Keywords,
				YearFrom:          s.YearFrom,
				YearTo:            s.YearTo,
				SourcePreferences: s.SourcePreferences,
			})
		}
		mem.SetPlan(plan)

		if !yield(Event{ID: newID(StageName), Kind: KindCard, Stage: StageName, CardKind: CardPlan, Card: plan}, nil) {
			return
		}

		yield(completeEvent(ev.ID, StageName, StatusDone, time.Since(start), map[string]any{
			"subQuestions": len(plan.SubQuestions),
		}), nil)
	}
}
