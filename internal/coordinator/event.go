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

package coordinator

import (
	"time"

	"github.com/kadirpekel/deepresearch/internal/sessionmgr"
	"github.com/kadirpekel/deepresearch/internal/stage"
)

// Kind discriminates a coordinator Event. This vocabulary is a superset of
// stage.Kind: it adds the session-lifecycle and suspension signals that
// only the Coordinator (not an individual stage executor) can produce.
// EventStreamWriter (spec.md §4.10) maps this onto the external wire
// frames of spec.md §6.
type Kind string

const (
	// KindStage wraps a passthrough stage.Event.
	KindStage Kind = "stage"
	// KindCheckpoint carries a full Checkpoint the client must resolve.
	KindCheckpoint Kind = "checkpoint"
	// KindPaused signals the session suspended on abort.
	KindPaused Kind = "paused"
	// KindError is the one terminal error event per run.
	KindError Kind = "error"
	// KindComplete is the one terminal success event per run.
	KindComplete Kind = "complete"
	// KindLogLine is a human-readable progress note, e.g. an implicit
	// checkpoint approval or an iteration-loop notice.
	KindLogLine Kind = "log-line"
)

// Event is one item of the Coordinator's output sequence.
type Event struct {
	Kind Kind

	// Stage is populated when Kind == KindStage.
	Stage stage.Event

	// Checkpoint is populated when Kind == KindCheckpoint.
	Checkpoint *sessionmgr.Checkpoint

	// Reason is populated when Kind == KindPaused.
	Reason string

	// Err and Recoverable are populated when Kind == KindError.
	Err         error
	Recoverable bool

	// Text is populated when Kind == KindLogLine (and, as a short label,
	// on KindError).
	Text string

	// CompletedAt is populated when Kind == KindComplete.
	CompletedAt time.Time
}
