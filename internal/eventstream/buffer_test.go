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

package eventstream

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/internal/coordinator"
	"github.com/kadirpekel/deepresearch/internal/stage"
)

func TestReplayBufferEvictsOldestBeyondSize(t *testing.T) {
	b := NewReplayBuffer(2)
	b.append(Frame{Type: TypeLogLine, Body: []byte(`"one"`)})
	b.append(Frame{Type: TypeLogLine, Body: []byte(`"two"`)})
	b.append(Frame{Type: TypeLogLine, Body: []byte(`"three"`)})

	frames := b.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, []byte(`"two"`), frames[0].Body)
	assert.Equal(t, []byte(`"three"`), frames[1].Body)
}

func TestReplayBufferWriteToRendersSSEFrames(t *testing.T) {
	b := NewReplayBuffer(10)
	b.append(Frame{Type: TypeLogLine, Body: []byte(`{"text":"hi"}`)})

	var buf bytes.Buffer
	b.WriteTo(&buf)

	assert.Equal(t, "event: data-log-line\ndata: {\"text\":\"hi\"}\n\n", buf.String())
}

func TestRegistryGetOrCreateReusesBufferPerSession(t *testing.T) {
	r := NewRegistry(5)
	a := r.GetOrCreate("s1")
	b := r.GetOrCreate("s1")
	assert.Same(t, a, b)

	_, ok := r.Get("unknown")
	assert.False(t, ok)
}

func TestRegistryDropRemovesBuffer(t *testing.T) {
	r := NewRegistry(5)
	r.GetOrCreate("s1")
	r.Drop("s1")

	_, ok := r.Get("s1")
	assert.False(t, ok)
}

func TestWriterAppendsStructuredFramesToAttachedReplayBuffer(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := New(rec, time.Hour)
	require.NoError(t, err)
	defer sw.Close()

	buf := NewReplayBuffer(10)
	sw.Attach(buf)

	sw.Write(coordinator.Event{Kind: coordinator.KindStage, Stage: stage.Event{
		ID: "writer-1", Kind: stage.KindTextDelta, Delta: "hello",
	}})
	sw.Write(coordinator.Event{Kind: coordinator.KindLogLine, Text: "note"})

	frames := buf.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, TypeTextDelta, frames[0].Type)
	assert.Equal(t, TypeLogLine, frames[1].Type)
}

func TestWriterDoesNotBufferHeartbeats(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := New(rec, 10*time.Millisecond)
	require.NoError(t, err)
	defer sw.Close()

	buf := NewReplayBuffer(10)
	sw.Attach(buf)

	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, buf.Frames(), "transient heartbeat frames must not be retained for replay")
}
