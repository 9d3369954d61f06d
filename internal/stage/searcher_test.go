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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/internal/federator"
	"github.com/kadirpekel/deepresearch/internal/memory"
	"github.com/kadirpekel/deepresearch/internal/source"
)

func newTestFederator() *federator.Federator {
	return federator.New(federator.Config{
		Sources: []source.Client{&fakeSourceClient{name: "fake", papers: samplePapers()}},
	})
}

func TestSearcherRunsEachStrategyAndRecordsRounds(t *testing.T) {
	mem := newTestMemory()
	mem.SetPlan(memory.ResearchPlan{
		MainQuestion: "q",
		SubQuestions: []string{"sub1", "sub2"},
		SearchStrategies: []memory.SearchStrategy{
			{Keywords: []string{"quantum", "error"}},
			{Keywords: []string{"surface", "codes"}},
		},
	})

	fed := newTestFederator()

	events, err := collectEvents(Searcher(t.Context(), fed, mem, "sess-1", 0))
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	assert.Equal(t, 2, len(mem.SearchRounds()))

	for _, ev := range events {
		if ev.Kind == KindCard {
			assert.Equal(t, CardPaperList, ev.CardKind)
		}
	}
}

func TestSearcherSkipsRedundantQueries(t *testing.T) {
	mem := newTestMemory()
	mem.SetPlan(memory.ResearchPlan{
		MainQuestion: "q",
		SearchStrategies: []memory.SearchStrategy{
			{Keywords: []string{"quantum", "error"}},
			{Keywords: []string{"quantum", "error"}},
		},
	})

	fed := newTestFederator()

	_, err := collectEvents(Searcher(t.Context(), fed, mem, "sess-1", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, len(mem.SearchRounds()))
}

func TestSearcherRespectsMaxRounds(t *testing.T) {
	mem := newTestMemory()
	mem.SetPlan(memory.ResearchPlan{
		MainQuestion: "q",
		SearchStrategies: []memory.SearchStrategy{
			{Keywords: []string{"a"}},
			{Keywords: []string{"b"}},
			{Keywords: []string{"c"}},
		},
	})

	fed := newTestFederator()

	_, err := collectEvents(Searcher(t.Context(), fed, mem, "sess-1", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, len(mem.SearchRounds()))
}

func TestSearcherErrorsWithoutPlan(t *testing.T) {
	mem := newTestMemory()
	fed := newTestFederator()

	_, err := collectEvents(Searcher(t.Context(), fed, mem, "sess-1", 0))
	require.Error(t, err)
}
