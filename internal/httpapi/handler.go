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

// Package httpapi implements the core-facing HTTP contract of spec.md §6:
// a single POST endpoint that turns a chat-style request into a streamed
// research session, and a companion POST that resolves a pending
// checkpoint. Grounded on the teacher's pkg/a2a/server.go for the
// SSE-handler shape (method check, http.Flusher check, drain-a-channel
// event loop) and respondJSON helper, and pkg/transport's chi-based
// metrics middleware for request instrumentation.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/deepresearch/internal/config"
	"github.com/kadirpekel/deepresearch/internal/coordinator"
	"github.com/kadirpekel/deepresearch/internal/errs"
	"github.com/kadirpekel/deepresearch/internal/eventstream"
	"github.com/kadirpekel/deepresearch/internal/memory"
	"github.com/kadirpekel/deepresearch/internal/observability"
	"github.com/kadirpekel/deepresearch/internal/sessionmgr"
)

// Handler wires the SessionManager, Coordinator and EventStreamWriter
// together behind the HTTP contract of spec.md §6.
type Handler struct {
	sessions *sessionmgr.Manager
	coord    *coordinator.Coordinator
	papers   memory.PaperStore
	env      config.Env

	tracer  *observability.Tracer
	metrics *observability.Metrics

	heartbeatInterval time.Duration
	replay            *eventstream.Registry
}

// New builds a Handler. tracer and metrics may both be nil; every method
// on them already no-ops on a nil receiver.
func New(sessions *sessionmgr.Manager, coord *coordinator.Coordinator, papers memory.PaperStore, env config.Env, tracer *observability.Tracer, metrics *observability.Metrics) *Handler {
	return &Handler{
		sessions:          sessions,
		coord:             coord,
		papers:            papers,
		env:               env,
		tracer:            tracer,
		metrics:           metrics,
		heartbeatInterval: eventstream.DefaultHeartbeatInterval,
		replay:            eventstream.NewRegistry(eventstream.DefaultReplayBufferSize),
	}
}

// Routes mounts the chat-stream, checkpoint-resolve and replay endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.instrument)
	r.Post("/chat", h.handleChatStream)
	r.Post("/checkpoints/resolve", h.handleResolveCheckpoint)
	r.Get("/sessions/{sessionID}/replay", h.handleReplay)
	return r
}

// DropReplayBuffer discards a session's buffered replay frames. Intended
// to be called once SessionManager.Sweep reports a session evicted, so
// the registry doesn't retain state for a session a client can no longer
// reconnect to.
func (h *Handler) DropReplayBuffer(sessionID string) {
	h.replay.Drop(sessionID)
}

// handleChatStream implements the core-facing POST endpoint: it accepts
// {messages[], id?}, extracts the last user message's text as query,
// creates and starts a session, and streams the event sequence as SSE.
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if h.env.OpenRouterAPIKey == "" {
		http.Error(w, "OPENROUTER_API_KEY is not configured", http.StatusInternalServerError)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	query := req.lastUserQuery()
	if query == "" {
		http.Error(w, "messages must contain at least one user message", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Create(query, h.papers)
	if err := h.sessions.Start(sess.ID); err != nil {
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	writer, err := eventstream.New(w, h.heartbeatInterval)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	defer writer.Close()
	writer.Attach(h.replay.GetOrCreate(sess.ID))

	ctx, span := h.tracer.StartSession(r.Context(), sess.ID, query)
	defer span.End()

	h.metrics.RecordSessionStarted()

	for ev, runErr := range h.coord.Run(ctx, sess) {
		if runErr != nil {
			h.tracer.RecordError(span, string(errs.KindOf(runErr)), runErr)
			continue
		}
		writer.Write(ev)

		switch ev.Kind {
		case coordinator.KindComplete:
			h.metrics.RecordSessionFinished("completed")
		case coordinator.KindError:
			h.metrics.RecordSessionFinished("error")
		case coordinator.KindPaused:
			h.metrics.RecordSessionFinished("aborted")
		}
	}
}

// handleResolveCheckpoint implements the companion POST endpoint: it
// accepts {sessionId, checkpointId, action, data?} and resolves the
// session's pending checkpoint.
func (h *Handler) handleResolveCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.CheckpointID == "" || req.Action == "" {
		http.Error(w, "sessionId, checkpointId and action are required", http.StatusBadRequest)
		return
	}

	checkpointType := ""
	if cp, err := h.sessions.PendingCheckpoint(req.SessionID); err == nil {
		checkpointType = string(cp.Type)
	}

	if err := h.sessions.ResolveCheckpoint(req.SessionID, req.CheckpointID, req.Action, req.Data); err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	h.metrics.RecordCheckpointResolved(checkpointType, req.Action)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReplay hands a reconnecting client the structured events buffered
// for a session (spec.md §4.9's grace-period reconnection, extended per
// SPEC_FULL.md's replay-buffer supplement), as a one-shot SSE response: it
// drains the buffer and returns, it does not keep the connection open for
// new events, since the pipeline that produces them runs to completion
// inside the original chat-stream request.
func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := h.sessions.Get(sessionID); !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	buf, ok := h.replay.Get(sessionID)
	if !ok {
		return
	}
	buf.WriteTo(w)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
