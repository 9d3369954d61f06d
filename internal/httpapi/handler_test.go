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

package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/internal/config"
	"github.com/kadirpekel/deepresearch/internal/coordinator"
	"github.com/kadirpekel/deepresearch/internal/eventstream"
	"github.com/kadirpekel/deepresearch/internal/sessionmgr"
)

func newHandler(t *testing.T, env config.Env) *Handler {
	t.Helper()
	return New(sessionmgr.New(sessionmgr.Config{}), nil, nil, env, nil, nil)
}

func TestHandleChatStreamRequiresAPIKey(t *testing.T) {
	h := newHandler(t, config.Env{})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()

	h.handleChatStream(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleChatStreamRejectsInvalidBody(t *testing.T) {
	h := newHandler(t, config.Env{OpenRouterAPIKey: "key"})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()

	h.handleChatStream(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatStreamRequiresUserMessage(t *testing.T) {
	h := newHandler(t, config.Env{OpenRouterAPIKey: "key"})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"messages":[{"role":"assistant","content":"hi"}]}`))
	rec := httptest.NewRecorder()

	h.handleChatStream(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRequestLastUserQuery(t *testing.T) {
	req := chatRequest{Messages: []chatMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
	}}
	assert.Equal(t, "second", req.lastUserQuery())

	assert.Equal(t, "", chatRequest{}.lastUserQuery())
}

func TestHandleResolveCheckpointValidatesFields(t *testing.T) {
	h := newHandler(t, config.Env{})

	req := httptest.NewRequest(http.MethodPost, "/checkpoints/resolve", bytes.NewBufferString(`{"sessionId":"s1"}`))
	rec := httptest.NewRecorder()

	h.handleResolveCheckpoint(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResolveCheckpointUnknownSession(t *testing.T) {
	h := newHandler(t, config.Env{})

	body := `{"sessionId":"missing","checkpointId":"cp1","action":"continue"}`
	req := httptest.NewRequest(http.MethodPost, "/checkpoints/resolve", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.handleResolveCheckpoint(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReplayUnknownSession(t *testing.T) {
	h := newHandler(t, config.Env{})

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing/replay", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReplayReturnsBufferedFrames(t *testing.T) {
	sessions := sessionmgr.New(sessionmgr.Config{})
	h := New(sessions, nil, nil, config.Env{}, nil, nil)

	sess := sessions.Create("query", nil)

	srcRec := httptest.NewRecorder()
	sw, err := eventstream.New(srcRec, time.Hour)
	require.NoError(t, err)
	sw.Attach(h.replay.GetOrCreate(sess.ID))
	sw.Write(coordinator.Event{Kind: coordinator.KindLogLine, Text: "hi"})
	sw.Close()

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID+"/replay", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hi")
}

func TestHandleReplayEmptyBufferReturnsEmptyBody(t *testing.T) {
	sessions := sessionmgr.New(sessionmgr.Config{})
	h := New(sessions, nil, nil, config.Env{}, nil, nil)

	sess := sessions.Create("query", nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID+"/replay", nil)
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandleResolveCheckpointResolvesPending(t *testing.T) {
	sessions := sessionmgr.New(sessionmgr.Config{})
	h := New(sessions, nil, nil, config.Env{}, nil, nil)

	sess := sessions.Create("query", nil)
	require.NoError(t, sessions.SetCheckpoint(sess.ID, sessionmgr.Checkpoint{Type: "low_confidence"}))
	cp, err := sessions.PendingCheckpoint(sess.ID)
	require.NoError(t, err)

	body := `{"sessionId":"` + sess.ID + `","checkpointId":"` + cp.ID + `","action":"continue"}`
	req := httptest.NewRequest(http.MethodPost, "/checkpoints/resolve", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	h.handleResolveCheckpoint(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
