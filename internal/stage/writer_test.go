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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/internal/memory"
)

func streamingServer(t *testing.T, delta string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"` + delta + `"}}]}` + "\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
}

// multiChunkStreamingServer streams each of chunks as its own SSE frame, so
// tests can assert on how a single section's delta stream is grouped.
func multiChunkStreamingServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"` + c + `"}}]}` + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
}

func TestWriterStreamsSectionsAndSavesVersion(t *testing.T) {
	srv := streamingServer(t, "Findings text.")
	defer srv.Close()

	llm := testLLMClient(t, srv)
	mem := newTestMemory()
	mem.SetPlan(memory.ResearchPlan{
		MainQuestion:     "q",
		ExpectedSections: []string{"Introduction", "Conclusion"},
	})

	events, err := collectEvents(Writer(t.Context(), llm, mem))
	require.NoError(t, err)

	var deltas int
	var sawCard bool
	for _, ev := range events {
		switch ev.Kind {
		case KindTextDelta:
			deltas++
			assert.Equal(t, "Findings text.", ev.Delta)
		case KindCard:
			sawCard = true
			assert.Equal(t, CardDocument, ev.CardKind)
		}
	}
	assert.Equal(t, 2, deltas)
	assert.True(t, sawCard)

	latest, ok := mem.GetLatest()
	require.True(t, ok)
	assert.Contains(t, latest.Content, "Findings text.")
	assert.Equal(t, 1, latest.Version)
}

// TestWriterGroupsDeltasBySection asserts the id invariant from spec.md
// §4.10: every KindTextDelta event streamed for one section shares a single
// id, and different sections get different ids, so a client can reconcile
// a section's full delta stream by grouping on event id.
func TestWriterGroupsDeltasBySection(t *testing.T) {
	srv := multiChunkStreamingServer(t, "Intro ", "part one.")
	defer srv.Close()

	llm := testLLMClient(t, srv)
	mem := newTestMemory()
	mem.SetPlan(memory.ResearchPlan{
		MainQuestion:     "q",
		ExpectedSections: []string{"Introduction", "Conclusion"},
	})

	events, err := collectEvents(Writer(t.Context(), llm, mem))
	require.NoError(t, err)

	idsBySection := make(map[string]map[string]struct{})
	var order []string
	for _, ev := range events {
		if ev.Kind != KindTextDelta {
			continue
		}
		if _, ok := idsBySection[ev.ID]; !ok {
			idsBySection[ev.ID] = make(map[string]struct{})
			order = append(order, ev.ID)
		}
	}

	require.Len(t, order, 2, "expected one distinct delta id per section")

	var firstSectionID string
	var deltaCountForFirstSection int
	for _, ev := range events {
		if ev.Kind != KindTextDelta {
			continue
		}
		if firstSectionID == "" {
			firstSectionID = ev.ID
		}
		if ev.ID == firstSectionID {
			deltaCountForFirstSection++
			assert.Equal(t, firstSectionID, ev.ID)
		}
	}
	assert.Equal(t, 2, deltaCountForFirstSection, "both chunks of the first section's stream should share one id")
	assert.NotEqual(t, order[0], order[1], "sections must not share a delta id")
}

func TestWriterDefaultsSectionsWhenPlanOmitsThem(t *testing.T) {
	srv := streamingServer(t, "text")
	defer srv.Close()

	llm := testLLMClient(t, srv)
	mem := newTestMemory()
	mem.SetPlan(memory.ResearchPlan{MainQuestion: "q"})

	_, err := collectEvents(Writer(t.Context(), llm, mem))
	require.NoError(t, err)

	latest, ok := mem.GetLatest()
	require.True(t, ok)
	assert.NotEmpty(t, latest.Content)
}
