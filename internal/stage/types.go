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

// Package stage implements the six stage executors of spec.md §4.7:
// Planner, Searcher, Analyzer, Writer, Critic, Validator. Each executor
// consumes ResearchMemory (and, for most, the opaque LLM client) and emits
// a lazy sequence of Events the Coordinator relays onward. Modeled on the
// teacher's v2/model.StreamingAggregator: an iter.Seq2 producer that
// accumulates state across a call and yields incrementally, using
// uuid-based ids the same way v2/model/aggregator.go mints thinking-block
// ids.
package stage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates an Event's shape. This is the executor-facing
// vocabulary; EventStreamWriter (spec.md §4.10) maps it onto the external
// wire frames of spec.md §6.
type Kind string

const (
	KindStart     Kind = "start"
	KindUpdate    Kind = "update"
	KindComplete  Kind = "complete"
	KindTextDelta Kind = "text-delta"
	KindCard      Kind = "card"
)

// Status is an AgentEvent's lifecycle status.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// CardType names the kind of card payload a KindCard Event carries.
type CardType string

const (
	CardPlan      CardType = "plan"
	CardPaperList CardType = "paper-list"
	CardQuality   CardType = "quality"
	CardDocument  CardType = "document"
)

// Event is one item of a stage executor's output sequence.
type Event struct {
	ID              string
	Kind            Kind
	Stage           string
	Status          Status
	Title           string
	Iteration       int
	TotalIterations int
	Meta            map[string]any
	Duration        time.Duration

	// Delta is set only for KindTextDelta.
	Delta string

	// Card and CardKind are set only for KindCard.
	CardKind CardType
	Card     any
}

// newID mints an AgentEvent id the same way the teacher's aggregator mints
// thinking-block ids: a short uuid-derived token.
func newID(stage string) string {
	return fmt.Sprintf("%s-%s", stage, uuid.NewString()[:8])
}

func startEvent(stage, title string) Event {
	return Event{ID: newID(stage), Kind: KindStart, Stage: stage, Status: StatusRunning, Title: title}
}

func completeEvent(id, stage string, status Status, duration time.Duration, meta map[string]any) Event {
	return Event{ID: id, Kind: KindComplete, Stage: stage, Status: status, Duration: duration, Meta: meta}
}
