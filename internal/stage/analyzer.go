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
	"strings"
	"time"

	"github.com/kadirpekel/deepresearch/internal/llmclient"
	"github.com/kadirpekel/deepresearch/internal/memory"
)

// AnalyzerStageName identifies the analyzer executor.
const AnalyzerStageName = "analyzer"

// analyzerUncoveredThreshold is the coverage (0-100) below which a
// sub-question is treated as an uncovered topic worth surfacing as a gap.
const analyzerUncoveredThreshold = 50

type analysisOutput struct {
	Insights []string `json:"insights" jsonschema:"required,description=Key findings distilled from the newly retrieved papers"`
	Gaps     []string `json:"gaps" jsonschema:"description=Sub-questions or claims still unsupported by the retrieved papers"`
}

// Analyzer distills the papers gathered so far into insights and gaps,
// recording both into mem. It runs after each search round.
func Analyzer(ctx context.Context, llm *llmclient.Client, mem *memory.Memory) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		start := time.Now()
		ev := startEvent(AnalyzerStageName, "Analyzing retrieved papers")
		if !yield(ev, nil) {
			return
		}

		plan := mem.Plan()
		relevantContext := mem.GetRelevantContext(4000)

		prompt := fmt.Sprintf(
			"Given this research context, extract the key insights the papers support "+
				"and list any sub-questions that remain inadequately covered.\n\n"+
				"Main question: %s\n\nContext:\n%s", mainQuestionOf(plan), relevantContext)

		out, err := llmclient.StructuredGenerate[analysisOutput](ctx, llm, llmclient.GenerateOptions{Prompt: prompt})
		if err != nil {
			yield(completeEvent(ev.ID, AnalyzerStageName, StatusFailed, time.Since(start), nil), fmt.Errorf("stage: analyzer: %w", err))
			return
		}

		for _, insight := range out.Insights {
			if strings.TrimSpace(insight) == "" {
				continue
			}
			mem.AddInsight(insight)
		}
		for _, gap := range out.Gaps {
			if strings.TrimSpace(gap) == "" {
				continue
			}
			mem.AddTrackedGap(gap, "identified by analyzer")
		}

		for _, topic := range mem.GetUncoveredTopics(analyzerUncoveredThreshold) {
			mem.AddTrackedGap(topic.Topic, "coverage below threshold")
		}

		yield(completeEvent(ev.ID, AnalyzerStageName, StatusDone, time.Since(start), map[string]any{
			"insights": len(out.Insights),
			"gaps":     len(out.Gaps),
		}), nil)
	}
}

func mainQuestionOf(plan *memory.ResearchPlan) string {
	if plan == nil {
		return ""
	}
	return plan.MainQuestion
}
