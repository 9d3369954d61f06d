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
)

func TestCriticPassesWhenScoreClearsGate(t *testing.T) {
	content := `{"overallScore":85,"coverageScore":80,"citationDensity":4,"recencyScore":70,` +
		`"uniqueSourcesUsed":5,"openAccessPercentage":60,"gapsIdentified":[],"improvementSuggestions":[]}`
	srv := chatServer(t, content)
	defer srv.Close()

	llm := testLLMClient(t, srv)
	mem := newTestMemory()
	mem.SaveReportVersion("draft content", nil, nil)

	events, err := collectEvents(Critic(t.Context(), llm, mem, 0, 0))
	require.NoError(t, err)

	var result CriticResult
	for _, ev := range events {
		if ev.Kind == KindCard {
			result = ev.Card.(CriticResult)
		}
	}
	assert.Equal(t, DecisionPass, result.Decision)
	assert.Equal(t, 85.0, result.Metrics.OverallScore)
}

func TestCriticIteratesWhenBelowGateAndUnderMaxIterations(t *testing.T) {
	content := `{"overallScore":40,"gapsIdentified":["missing recent trials"],"improvementSuggestions":[]}`
	srv := chatServer(t, content)
	defer srv.Close()

	llm := testLLMClient(t, srv)
	mem := newTestMemory()
	mem.SaveReportVersion("draft content", nil, nil)

	events, err := collectEvents(Critic(t.Context(), llm, mem, 70, 3))
	require.NoError(t, err)

	var result CriticResult
	for _, ev := range events {
		if ev.Kind == KindCard {
			result = ev.Card.(CriticResult)
		}
	}
	assert.Equal(t, DecisionIterate, result.Decision)

	gaps := mem.TrackedGaps()
	require.Len(t, gaps, 1)
	assert.Equal(t, "missing recent trials", gaps[0].Description)
}

func TestCriticFailsAtMaxIterations(t *testing.T) {
	content := `{"overallScore":40,"gapsIdentified":[],"improvementSuggestions":[]}`
	srv := chatServer(t, content)
	defer srv.Close()

	llm := testLLMClient(t, srv)
	mem := newTestMemory()
	mem.SaveReportVersion("draft content", nil, nil)
	mem.IncrementIteration()
	mem.IncrementIteration()

	events, err := collectEvents(Critic(t.Context(), llm, mem, 70, 2))
	require.NoError(t, err)

	var result CriticResult
	for _, ev := range events {
		if ev.Kind == KindCard {
			result = ev.Card.(CriticResult)
		}
	}
	assert.Equal(t, DecisionFail, result.Decision)
}

func TestCriticErrorsWithoutDraft(t *testing.T) {
	srv := chatServer(t, `{}`)
	defer srv.Close()

	llm := testLLMClient(t, srv)
	mem := newTestMemory()

	_, err := collectEvents(Critic(t.Context(), llm, mem, 0, 0))
	require.Error(t, err)
}
