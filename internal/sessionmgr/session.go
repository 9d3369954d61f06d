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

// Package sessionmgr implements SessionManager, spec.md §4.9: session
// lifecycle, abort, and the checkpoint rendezvous between a Coordinator
// task and the client that resolves it. The rendezvous slot is modeled
// directly on the teacher's task.Awaiter: a map of one-shot channels keyed
// by id, filled at most once, read with a select over timeout/abort/fill.
package sessionmgr

import (
	"time"

	"github.com/kadirpekel/deepresearch/internal/memory"
)

// State is a Session's lifecycle state. Transitions are strictly
// monotonic; completed/error/aborted are terminal.
type State string

const (
	StatePending            State = "pending"
	StateRunning            State = "running"
	StateAwaitingCheckpoint State = "awaiting_checkpoint"
	StateCompleted          State = "completed"
	StateError              State = "error"
	StateAborted            State = "aborted"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateAborted
}

// CheckpointType names the three pause points of spec.md §4.8's state
// machine.
type CheckpointType string

const (
	CheckpointPlanApproval    CheckpointType = "plan_approval"
	CheckpointQualityDecision CheckpointType = "quality_decision"
	CheckpointReportReview    CheckpointType = "report_review"
)

// CheckpointOption is one button/action a client may resolve a Checkpoint
// with.
type CheckpointOption struct {
	ID      string
	Label   string
	Variant string
	Action  string // approve | edit | iterate
}

// Checkpoint is a pending decision point, per spec.md §3.
type Checkpoint struct {
	ID          string
	Type        CheckpointType
	Title       string
	Description string
	CardID      string
	Options     []CheckpointOption
	CreatedAt   time.Time

	ResolvedAt *time.Time
	Action     string
	Data       any
}

// Resolution is what waitForCheckpoint returns once the slot is filled.
type Resolution struct {
	Action string
	Data   any
}

// Session is the per-request unit of work: a ResearchMemory, an abort
// signal, and at most one unresolved Checkpoint.
type Session struct {
	ID        string
	Query     string
	CreatedAt time.Time

	state State
	err   string

	Memory *memory.Memory

	checkpoint *Checkpoint
	resolution chan Resolution

	abortCh chan struct{}
	aborted bool

	completedAt time.Time
}
