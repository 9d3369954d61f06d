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

// Package coordinator implements the Coordinator of spec.md §4.8: the only
// component with full knowledge of the pipeline order. It drives the six
// stage executors through the state machine Init → Planning →
// [plan_approval] → Searching/Analyzing → Writing → Reviewing → decision →
// [quality_decision | report_review] → Finalising, suspending at
// checkpoints via SessionManager and folding classified stage errors into
// a terminal event rather than a panic.
//
// The lazy event sequence is the portable re-architecture the Design Notes
// call for: rather than a language coroutine, Run returns an iter.Seq2
// that writes into the caller's yield function and explicitly blocks on
// SessionManager.WaitForCheckpoint at each suspension point, the same
// shape task.Awaiter gives the teacher's resumable tasks.
package coordinator

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/kadirpekel/deepresearch/internal/compression"
	"github.com/kadirpekel/deepresearch/internal/errs"
	"github.com/kadirpekel/deepresearch/internal/federator"
	"github.com/kadirpekel/deepresearch/internal/llmclient"
	"github.com/kadirpekel/deepresearch/internal/memory"
	"github.com/kadirpekel/deepresearch/internal/paper"
	"github.com/kadirpekel/deepresearch/internal/sessionmgr"
	"github.com/kadirpekel/deepresearch/internal/stage"
)

// QualityGate mirrors spec.md §4.8's qualityGate config block.
type QualityGate struct {
	MinOverallScore float64
	MaxIterations   int
}

// Config is the per-run configuration spec.md §4.8 says is "passed at
// start".
type Config struct {
	MaxSearchRounds          int
	MaxIterations            int
	MinPapersRequired        int
	EnableMultiSource        bool
	EnableCitationValidation bool
	EnableContextCompression bool
	CitationStyle            string
	QualityGate              QualityGate

	// CheckpointTimeout overrides sessionmgr.DefaultCheckpointTimeout for
	// this run; zero uses the package default.
	CheckpointTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSearchRounds <= 0 {
		c.MaxSearchRounds = stage.DefaultMaxSearchRounds
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = stage.DefaultMaxIterations
	}
	if c.QualityGate.MinOverallScore <= 0 {
		c.QualityGate.MinOverallScore = stage.DefaultMinOverallScore
	}
	if c.QualityGate.MaxIterations <= 0 {
		c.QualityGate.MaxIterations = c.MaxIterations
	}
	return c
}

// Coordinator wires the stage executors, the Federator and
// CompressionService, and the SessionManager's checkpoint rendezvous into
// one driven pipeline.
type Coordinator struct {
	cfg        Config
	llm        *llmclient.Client
	fed        *federator.Federator
	compressor *compression.Service
	sessions   *sessionmgr.Manager
}

// New builds a Coordinator. compressor may be nil when
// Config.EnableContextCompression is false.
func New(cfg Config, llm *llmclient.Client, fed *federator.Federator, compressor *compression.Service, sessions *sessionmgr.Manager) *Coordinator {
	return &Coordinator{
		cfg:        cfg.withDefaults(),
		llm:        llm,
		fed:        fed,
		compressor: compressor,
		sessions:   sessions,
	}
}

// Run drives sess through the full pipeline, yielding Events in generation
// order. The sequence terminates after a KindPaused, KindError or
// KindComplete event; the session's SessionManager state is updated to
// match before each such terminal yield.
func (c *Coordinator) Run(ctx context.Context, sess *sessionmgr.Session) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		r := &run{c: c, ctx: ctx, sess: sess, yield: yield}
		r.exec()
	}
}

// run holds the mutable state of one Coordinator.Run invocation; splitting
// it out of Run keeps each stage transition a plain method instead of a
// deeply nested closure.
type run struct {
	c     *Coordinator
	ctx   context.Context
	sess  *sessionmgr.Session
	yield func(Event, error) bool

	// iteration tracks the writing/critic loop count.
	iteration int
}

func (r *run) emitStage(ev stage.Event) bool {
	return r.yield(Event{Kind: KindStage, Stage: ev}, nil)
}

func (r *run) emitLog(text string) bool {
	return r.yield(Event{Kind: KindLogLine, Text: text}, nil)
}

// aborted reports whether the session's abort signal has fired, without
// blocking.
func (r *run) aborted() bool {
	ch, err := r.c.sessions.AbortSignal(r.sess.ID)
	if err != nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (r *run) pause(reason string) {
	_ = r.c.sessions.Abort(r.sess.ID)
	r.yield(Event{Kind: KindPaused, Reason: reason}, nil)
}

// fail classifies err, transitions the session to its terminal error
// state, and emits the one terminal KindError event spec.md §4.8/§7 call
// for. stageName labels which executor raised, for the log line only.
func (r *run) fail(stageName string, err error) {
	kind := errs.KindOf(err)
	_ = r.c.sessions.SetError(r.sess.ID, err.Error())
	r.yield(Event{
		Kind:        KindError,
		Err:         err,
		Recoverable: kind.Recoverable(),
		Text:        fmt.Sprintf("%s: %v", stageName, err),
	}, nil)
}

// finish marks the session completed and emits the terminal complete
// event.
func (r *run) finish() {
	_ = r.c.sessions.Complete(r.sess.ID)
	r.yield(Event{Kind: KindComplete, CompletedAt: time.Now()}, nil)
}

// runStage drains a stage executor's event sequence, relaying every event
// and returning false (stop) on abort, consumer backpressure, or a stage
// error (which has already been classified and emitted via fail).
func (r *run) runStage(stageName string, seq iter.Seq2[stage.Event, error]) bool {
	for ev, err := range seq {
		if err != nil {
			r.fail(stageName, err)
			return false
		}
		if !r.emitStage(ev) {
			return false
		}
		if r.aborted() {
			r.pause("aborted mid-" + stageName)
			return false
		}
	}
	return true
}

// checkpoint registers cp with the SessionManager and blocks until it
// resolves, the configured timeout elapses (implicit approve, per
// spec.md §4.8), or the session aborts.
func (r *run) checkpoint(cp sessionmgr.Checkpoint) (sessionmgr.Resolution, bool) {
	if err := r.c.sessions.SetCheckpoint(r.sess.ID, cp); err != nil {
		r.fail("checkpoint", err)
		return sessionmgr.Resolution{}, false
	}
	pending, err := r.c.sessions.PendingCheckpoint(r.sess.ID)
	if err != nil {
		r.fail("checkpoint", err)
		return sessionmgr.Resolution{}, false
	}

	if !r.yield(Event{Kind: KindCheckpoint, Checkpoint: &pending}, nil) {
		return sessionmgr.Resolution{}, false
	}

	res, err := r.c.sessions.WaitForCheckpoint(r.ctx, r.sess.ID, r.c.cfg.CheckpointTimeout)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindTimeout:
			res = sessionmgr.Resolution{Action: "approve"}
			r.emitLog(fmt.Sprintf("checkpoint %s timed out, treating as implicit approve", cp.Type))
		case errs.KindAbort:
			r.pause("aborted awaiting " + string(cp.Type))
			return sessionmgr.Resolution{}, false
		default:
			r.fail("checkpoint", err)
			return sessionmgr.Resolution{}, false
		}
	}
	_ = r.c.sessions.ClearCheckpoint(r.sess.ID)
	return res, true
}

// critique runs the Critic stage and extracts its Decision from the
// CardQuality event it emits.
func (r *run) critique() (stage.Decision, bool) {
	mem := r.sess.Memory
	decision := stage.DecisionIterate
	for ev, err := range stage.Critic(r.ctx, r.c.llm, mem, r.c.cfg.QualityGate.MinOverallScore, r.c.cfg.QualityGate.MaxIterations) {
		if err != nil {
			r.fail(stage.CriticStageName, err)
			return "", false
		}
		if ev.Kind == stage.KindCard && ev.CardKind == stage.CardQuality {
			if result, ok := ev.Card.(stage.CriticResult); ok {
				decision = result.Decision
			}
		}
		if !r.emitStage(ev) {
			return "", false
		}
	}
	return decision, true
}

// compress folds a CompressionService.Compress summary into memory as an
// insight so the Writer's GetRelevantContext-based prompt picks it up.
func (r *run) compress(mem *memory.Memory) {
	if !r.c.cfg.EnableContextCompression || r.c.compressor == nil {
		return
	}
	question := ""
	if plan := mem.Plan(); plan != nil {
		question = plan.MainQuestion
	}

	papers := make([]*paper.Paper, 0, len(mem.PaperIDs()))
	for _, id := range mem.PaperIDs() {
		if p, ok := mem.GetPaper(id); ok {
			papers = append(papers, p)
		}
	}
	if len(papers) == 0 {
		return
	}

	bundle, err := r.c.compressor.Compress(r.ctx, papers, question)
	if err != nil {
		r.emitLog(fmt.Sprintf("context compression skipped: %v", err))
		return
	}
	mem.AddInsight(bundle.Summary)
}

func (r *run) exec() {
	_ = r.c.sessions.Start(r.sess.ID)
	mem := r.sess.Memory

	if !r.runStage(stage.StageName, stage.Planner(r.ctx, r.c.llm, mem, r.sess.Query)) {
		return
	}
	if r.aborted() {
		r.pause("aborted after planning")
		return
	}

	res, ok := r.checkpoint(sessionmgr.Checkpoint{
		Type:        sessionmgr.CheckpointPlanApproval,
		Title:       "Approve research plan?",
		Description: "Review the proposed sub-questions and search strategies before searching begins.",
		Options: []sessionmgr.CheckpointOption{
			{ID: "approve", Label: "Approve", Action: "approve"},
			{ID: "edit", Label: "Edit", Action: "edit"},
		},
	})
	if !ok {
		return
	}
	if res.Action == "edit" {
		query := r.sess.Query
		if res.Data != nil {
			query = fmt.Sprintf("%s\n\nAdditional instruction: %v", query, res.Data)
		}
		if !r.runStage(stage.StageName, stage.Planner(r.ctx, r.c.llm, mem, query)) {
			return
		}
	}

	if !r.runStage(stage.SearcherStageName, stage.Searcher(r.ctx, r.c.fed, mem, r.sess.ID, r.c.cfg.MaxSearchRounds)) {
		return
	}
	if !r.runStage(stage.AnalyzerStageName, stage.Analyzer(r.ctx, r.c.llm, mem)) {
		return
	}
	if r.aborted() {
		r.pause("aborted after analysis")
		return
	}

	r.compress(mem)

	for {
		r.iteration = mem.IncrementIteration()
		if !r.runStage(stage.WriterStageName, stage.Writer(r.ctx, r.c.llm, mem)) {
			return
		}

		if r.c.cfg.EnableCitationValidation {
			if !r.runStage(stage.ValidatorStageName, stage.Validator(mem)) {
				return
			}
		}

		decision, ok := r.critique()
		if !ok {
			return
		}

		switch decision {
		case stage.DecisionPass:
			if _, ok := r.checkpoint(sessionmgr.Checkpoint{
				Type:  sessionmgr.CheckpointReportReview,
				Title: "Report ready",
				Options: []sessionmgr.CheckpointOption{
					{ID: "approve", Label: "Finish", Action: "approve"},
				},
			}); !ok {
				return
			}
			r.finish()
			return
		case stage.DecisionIterate:
			if r.iteration < r.c.cfg.MaxIterations {
				r.emitLog(fmt.Sprintf("iterating (round %d of %d)", r.iteration+1, r.c.cfg.MaxIterations))
				continue
			}
			fallthrough
		case stage.DecisionFail:
			res, ok := r.checkpoint(sessionmgr.Checkpoint{
				Type:        sessionmgr.CheckpointQualityDecision,
				Title:       "Quality gate not cleared",
				Description: "The draft did not reach the configured quality bar. Choose how to proceed.",
				Options: []sessionmgr.CheckpointOption{
					{ID: "iterate", Label: "Iterate once more", Action: "iterate"},
					{ID: "approve", Label: "Accept as-is", Action: "approve"},
				},
			})
			if !ok {
				return
			}
			if res.Action == "iterate" {
				continue
			}
			r.finish()
			return
		}
	}
}
