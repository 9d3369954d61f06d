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

// Package eventstream implements EventStreamWriter, spec.md §4.10: it
// normalises coordinator.Event values into the external SSE contract of
// spec.md §6, one frame type per discriminator. Grounded on the teacher's
// pkg/a2a/server.go sendSSEEvent: "event: <type>\ndata: <json>\n\n" over an
// http.Flusher, one frame at a time under a single writer lock.
package eventstream

import "time"

// Type is an SSE frame discriminator, per spec.md §6's event stream table.
type Type string

const (
	TypeNotification       Type = "data-notification"
	TypeAgentEvent         Type = "data-agent-event"
	TypeAgentEventUpdate   Type = "data-agent-event-update"
	TypeAgentEventComplete Type = "data-agent-event-complete"
	TypePlan               Type = "data-plan"
	TypePaperList          Type = "data-paper-list"
	TypeQuality            Type = "data-quality"
	TypeDocument           Type = "data-document"
	TypeTextDelta          Type = "text-delta"
	TypeCheckpoint         Type = "data-checkpoint"
	TypeLogLine            Type = "data-log-line"
	TypeAgentPaused        Type = "data-agent-paused"
	TypeSessionComplete    Type = "data-session-complete"
	TypeSessionError       Type = "data-session-error"
)

// transient reports whether frames of this type must never appear in a
// persisted message record (spec.md §4.9's heartbeat language, extended to
// data-notification, the only transient frame type in the table).
func (t Type) transient() bool {
	return t == TypeNotification
}

// NotificationPayload backs data-notification frames, including the
// best-effort heartbeat the Writer emits on its own timer.
type NotificationPayload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// AgentEventPayload backs data-agent-event and data-agent-event-update
// frames; the two share a shape because an update is a diff of the start.
type AgentEventPayload struct {
	ID              string         `json:"id"`
	Stage           string         `json:"stage"`
	Status          string         `json:"status"`
	TitleEn         string         `json:"titleEn"`
	TitleZh         string         `json:"titleZh,omitempty"`
	Iteration       int            `json:"iteration,omitempty"`
	TotalIterations int            `json:"totalIterations,omitempty"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// AgentEventCompletePayload backs data-agent-event-complete frames.
type AgentEventCompletePayload struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Duration time.Duration  `json:"duration"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// CardPayload backs data-plan/data-paper-list/data-quality/data-document
// frames: a card-specific body keyed by the id of the AgentEvent it
// belongs to.
type CardPayload struct {
	ID   string `json:"id"`
	Data any    `json:"data"`
}

// TextDeltaPayload backs text-delta frames; the same ID groups an entire
// streamed chunk sequence.
type TextDeltaPayload struct {
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

// LogLinePayload backs data-log-line frames.
type LogLinePayload struct {
	Text string `json:"text"`
	Icon string `json:"icon,omitempty"`
}

// PausedPayload backs data-agent-paused frames.
type PausedPayload struct {
	Reason string `json:"reason"`
}

// SessionCompletePayload backs data-session-complete frames.
type SessionCompletePayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// SessionErrorPayload backs data-session-error frames.
type SessionErrorPayload struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable,omitempty"`
}
