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

// WriterStageName identifies the writer executor.
const WriterStageName = "writer"

// Writer drafts the report section by section, streaming each section's
// text as KindTextDelta events, then saves the assembled draft as a new
// ReportVersion. Once mem holds at least two report versions, each section
// prompt also lists mem.Gaps() as revision targets; tracked gaps and the
// Critic's improvement suggestions are not added to the prompt.
func Writer(ctx context.Context, llm *llmclient.Client, mem *memory.Memory) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		start := time.Now()
		ev := startEvent(WriterStageName, "Writing report")
		if !yield(ev, nil) {
			return
		}

		plan := mem.Plan()
		sections := plan.ExpectedSections
		if len(sections) == 0 {
			sections = []string{"Introduction", "Findings", "Conclusion"}
		}

		var draft strings.Builder
		for _, section := range sections {
			prompt := writerPrompt(mem, plan, section)
			id := newID(WriterStageName)
			for chunk, err := range llm.StreamText(ctx, llmclient.GenerateOptions{Prompt: prompt}) {
				if err != nil {
					yield(completeEvent(ev.ID, WriterStageName, StatusFailed, time.Since(start), nil), fmt.Errorf("stage: writer: %w", err))
					return
				}
				draft.WriteString(chunk)
				if !yield(Event{ID: id, Kind: KindTextDelta, Stage: WriterStageName, Delta: chunk}, nil) {
					return
				}
			}
			draft.WriteString("\n\n")
		}

		version := mem.SaveReportVersion(draft.String(), nil, nil)

		if !yield(Event{ID: newID(WriterStageName), Kind: KindCard, Stage: WriterStageName, CardKind: CardDocument, Card: version}, nil) {
			return
		}

		yield(completeEvent(ev.ID, WriterStageName, StatusDone, time.Since(start), map[string]any{
			"version": version.Version,
			"chars":   len(version.Content),
		}), nil)
	}
}

func writerPrompt(mem *memory.Memory, plan *memory.ResearchPlan, section string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the %q section of a research report answering: %s\n\n", section, mainQuestionOf(plan))
	b.WriteString("Ground every claim in the supplied context and cite papers by their id in square brackets.\n\n")
	b.WriteString(mem.GetRelevantContext(4000))

	if _, ok := mem.GetPrevious(); ok {
		b.WriteString("\n\nRevise against the previous draft where the following gaps were identified:\n")
		for _, gap := range mem.Gaps() {
			fmt.Fprintf(&b, "- %s\n", gap)
		}
	}
	return b.String()
}
