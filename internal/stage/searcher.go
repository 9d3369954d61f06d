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

	"github.com/kadirpekel/deepresearch/internal/federator"
	"github.com/kadirpekel/deepresearch/internal/memory"
	"github.com/kadirpekel/deepresearch/internal/source"
)

// SearcherStageName identifies the searcher executor.
const SearcherStageName = "searcher"

// DefaultMaxSearchRounds bounds how many search strategies a single
// Searcher call will execute, matching spec.md §4.8's default round cap.
const DefaultMaxSearchRounds = 5

// searchTopicCoverageMinPapers is a heuristic: a round that returns at
// least this many papers counts the topic as fully covered.
const searchTopicCoverageMinPapers = 3

// Searcher runs the plan's search strategies against fed, one round per
// strategy (bounded by maxRounds), skipping any query ResearchMemory
// already considers redundant. Each round's new papers are recorded via
// mem.AddSearchRound and the sub-question is marked processed.
func Searcher(ctx context.Context, fed *federator.Federator, mem *memory.Memory, sessionID string, maxRounds int) iter.Seq2[Event, error] {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxSearchRounds
	}

	return func(yield func(Event, error) bool) {
		plan := mem.Plan()
		if plan == nil {
			yield(completeEvent(newID(SearcherStageName), SearcherStageName, StatusFailed, 0, nil), fmt.Errorf("stage: searcher: no research plan in memory"))
			return
		}

		round := 0
		for i, strategy := range plan.SearchStrategies {
			if round >= maxRounds {
				break
			}
			query := strings.Join(strategy.Keywords, " ")
			if query == "" {
				continue
			}
			if mem.IsSearchRedundant(query) {
				continue
			}

			start := time.Now()
			topic := topicFor(plan, i)
			ev := startEvent(SearcherStageName, fmt.Sprintf("Searching: %s", query))
			if !yield(ev, nil) {
				return
			}

			opts := source.SearchOptions{
				Query:    query,
				YearFrom: strategy.YearFrom,
				YearTo:   strategy.YearTo,
			}

			result, err := fed.Search(ctx, query, opts, sessionID)
			if err != nil {
				yield(completeEvent(ev.ID, SearcherStageName, StatusFailed, time.Since(start), nil), fmt.Errorf("stage: searcher: %w", err))
				return
			}

			sr := mem.AddSearchRound(query, topic, result.Papers, result.SourceBreakdown)
			coverage := topicCoverage(len(sr.PaperIDs))
			mem.TrackProcessedTopic(topic, query, sr.PaperIDs, coverage)

			if !yield(Event{ID: newID(SearcherStageName), Kind: KindCard, Stage: SearcherStageName, CardKind: CardPaperList, Card: result.Papers}, nil) {
				return
			}

			if !yield(completeEvent(ev.ID, SearcherStageName, StatusDone, time.Since(start), map[string]any{
				"query":     query,
				"papers":    len(sr.PaperIDs),
				"totalHits": result.TotalHits,
				"round":     round + 1,
			}), nil) {
				return
			}
			round++
		}
	}
}

func topicFor(plan *memory.ResearchPlan, i int) string {
	if i < len(plan.SubQuestions) {
		return plan.SubQuestions[i]
	}
	return plan.MainQuestion
}

func topicCoverage(papers int) float64 {
	if papers >= searchTopicCoverageMinPapers {
		return 100
	}
	return 100 * float64(papers) / float64(searchTopicCoverageMinPapers)
}
