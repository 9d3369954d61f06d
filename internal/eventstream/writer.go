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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kadirpekel/deepresearch/internal/coordinator"
	"github.com/kadirpekel/deepresearch/internal/stage"
)

// DefaultHeartbeatInterval is the transport heartbeat period of spec.md
// §4.9: a transient notification emitted whenever a suspension or long
// call would otherwise let an intermediate proxy's connection idle.
const DefaultHeartbeatInterval = 15 * time.Second

// Writer is a single-writer-per-session EventStreamWriter: it serialises
// coordinator.Event values onto an SSE response in generation order and
// runs a best-effort heartbeat off a separate timer. Grounded on the
// teacher's pkg/a2a/server.sendSSEEvent "event: %s\ndata: %s\n\n" framing.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool

	lastActivity time.Time
	replay       *ReplayBuffer

	stopHeartbeat chan struct{}
	stopOnce      sync.Once
}

// New prepares w for SSE streaming (headers, flusher check) and starts
// the heartbeat timer. Returns an error if w does not support flushing,
// matching the teacher's "Streaming not supported" check.
func New(w http.ResponseWriter, heartbeatInterval time.Duration) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("eventstream: response writer does not support flushing")
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sw := &Writer{
		w:             w,
		flusher:       flusher,
		lastActivity:  time.Now(),
		stopHeartbeat: make(chan struct{}),
	}
	go sw.heartbeatLoop(heartbeatInterval)
	return sw, nil
}

// Attach wires buf so every subsequent structured frame is also retained
// for replay; nil detaches. Frames written before Attach are not retained.
func (sw *Writer) Attach(buf *ReplayBuffer) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.replay = buf
}

// Close stops the heartbeat timer; every Write after Close is a silent
// no-op, per spec.md §5's "writes after close are silently dropped".
func (sw *Writer) Close() {
	sw.stopOnce.Do(func() { close(sw.stopHeartbeat) })
	sw.mu.Lock()
	sw.closed = true
	sw.mu.Unlock()
}

func (sw *Writer) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sw.stopHeartbeat:
			return
		case <-ticker.C:
			sw.mu.Lock()
			idle := !sw.closed && time.Since(sw.lastActivity) >= interval
			sw.mu.Unlock()
			if idle {
				sw.emit(TypeNotification, NotificationPayload{Message: "heartbeat", Level: "info"})
			}
		}
	}
}

// Write maps a coordinator.Event onto its external wire frame(s) and
// writes them, in order, to the underlying response. A KindStage event
// carrying a start/update/complete/card/text-delta stage.Event may emit
// zero or more frames depending on its stage.Kind.
func (sw *Writer) Write(ev coordinator.Event) {
	switch ev.Kind {
	case coordinator.KindStage:
		sw.writeStage(ev.Stage)
	case coordinator.KindCheckpoint:
		if ev.Checkpoint != nil {
			sw.emit(TypeCheckpoint, *ev.Checkpoint)
		}
	case coordinator.KindPaused:
		sw.emit(TypeAgentPaused, PausedPayload{Reason: ev.Reason})
	case coordinator.KindError:
		sw.emit(TypeSessionError, SessionErrorPayload{Error: ev.Text, Recoverable: ev.Recoverable})
	case coordinator.KindComplete:
		sw.emit(TypeSessionComplete, SessionCompletePayload{Timestamp: ev.CompletedAt})
	case coordinator.KindLogLine:
		sw.emit(TypeLogLine, LogLinePayload{Text: ev.Text})
	}
}

func (sw *Writer) writeStage(ev stage.Event) {
	switch ev.Kind {
	case stage.KindStart:
		sw.emit(TypeAgentEvent, AgentEventPayload{
			ID: ev.ID, Stage: ev.Stage, Status: string(ev.Status),
			TitleEn: ev.Title, Iteration: ev.Iteration, TotalIterations: ev.TotalIterations, Meta: ev.Meta,
		})
	case stage.KindUpdate:
		sw.emit(TypeAgentEventUpdate, AgentEventPayload{
			ID: ev.ID, Stage: ev.Stage, Status: string(ev.Status),
			TitleEn: ev.Title, Iteration: ev.Iteration, TotalIterations: ev.TotalIterations, Meta: ev.Meta,
		})
	case stage.KindComplete:
		sw.emit(TypeAgentEventComplete, AgentEventCompletePayload{
			ID: ev.ID, Status: string(ev.Status), Duration: ev.Duration, Meta: ev.Meta,
		})
	case stage.KindTextDelta:
		sw.emit(TypeTextDelta, TextDeltaPayload{ID: ev.ID, Delta: ev.Delta})
	case stage.KindCard:
		sw.emit(cardFrameType(ev.CardKind), CardPayload{ID: ev.ID, Data: ev.Card})
	}
}

func cardFrameType(kind stage.CardType) Type {
	switch kind {
	case stage.CardPlan:
		return TypePlan
	case stage.CardPaperList:
		return TypePaperList
	case stage.CardQuality:
		return TypeQuality
	default:
		return TypeDocument
	}
}

// emit writes one SSE frame and, for structured (non-transient) frames,
// bumps the last-activity timestamp the heartbeat loop watches.
func (sw *Writer) emit(t Type, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return
	}
	if !t.transient() {
		sw.lastActivity = time.Now()
		if sw.replay != nil {
			sw.replay.append(Frame{Type: t, Body: body})
		}
	}
	fmt.Fprintf(sw.w, "event: %s\n", t)
	fmt.Fprintf(sw.w, "data: %s\n\n", body)
	sw.flusher.Flush()
}
