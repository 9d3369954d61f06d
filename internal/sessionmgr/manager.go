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

package sessionmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/deepresearch/internal/errs"
	"github.com/kadirpekel/deepresearch/internal/memory"
)

// DefaultCheckpointTimeout is the per-checkpoint wait default of spec.md
// §4.8: a timeout is treated as an implicit approve by the caller.
const DefaultCheckpointTimeout = 5 * time.Minute

// DefaultRemoveAfter is how long a terminal session stays queryable
// before eviction, per spec.md §4.9.
const DefaultRemoveAfter = 60 * time.Second

// DefaultMaxLiveSessions bounds total live sessions; over the cap, the
// oldest session is evicted (and implicitly aborted) to make room.
const DefaultMaxLiveSessions = 100

// Config configures a Manager.
type Config struct {
	RemoveAfter     time.Duration
	MaxLiveSessions int
}

func (c Config) withDefaults() Config {
	if c.RemoveAfter <= 0 {
		c.RemoveAfter = DefaultRemoveAfter
	}
	if c.MaxLiveSessions <= 0 {
		c.MaxLiveSessions = DefaultMaxLiveSessions
	}
	return c
}

// PaperStore is the narrow PaperCache interface a new Session's Memory is
// backed by.
type PaperStore = memory.PaperStore

// Manager owns every live Session under a single indexed structure,
// guarded by one lock; each Session's own mutation is additionally
// guarded by its own per-session lock (sessionState).
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*sessionState
	order    []string // creation order, oldest first
}

// sessionState wraps a Session with the mutex and rendezvous bookkeeping
// Manager needs; Session itself stays a plain data holder so callers
// outside this package (the Coordinator) can read it freely.
type sessionState struct {
	mu   sync.Mutex
	sess *Session
}

// New builds an empty Manager.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*sessionState),
	}
}

// Create allocates a new pending Session backed by papers for its Memory's
// paper lookups, evicting the oldest live session first if the manager is
// at MaxLiveSessions.
func (m *Manager) Create(query string, papers PaperStore) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) >= m.cfg.MaxLiveSessions {
		m.evictOldestLocked()
	}

	id := uuid.NewString()
	sess := &Session{
		ID:        id,
		Query:     query,
		CreatedAt: time.Now(),
		state:     StatePending,
		Memory:    memory.New(papers),
		abortCh:   make(chan struct{}),
	}
	m.sessions[id] = &sessionState{sess: sess}
	m.order = append(m.order, id)
	return sess
}

func (m *Manager) evictOldestLocked() {
	if len(m.order) == 0 {
		return
	}
	oldest := m.order[0]
	m.order = m.order[1:]
	if st, ok := m.sessions[oldest]; ok {
		st.mu.Lock()
		if !st.sess.state.Terminal() {
			st.sess.aborted = true
			closeOnce(st.sess.abortCh)
			st.sess.state = StateAborted
		}
		st.mu.Unlock()
	}
	delete(m.sessions, oldest)
}

func (m *Manager) get(id string) (*sessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("sessionmgr: unknown session %q", id)
	}
	return st, nil
}

// Get returns the Session for id, for read-only inspection by callers
// such as the HTTP layer.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return st.sess, true
}

// Start transitions a session from pending to running.
func (m *Manager) Start(id string) error {
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sess.state = StateRunning
	return nil
}

// Complete transitions a session to its terminal completed state.
func (m *Manager) Complete(id string) error {
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sess.state = StateCompleted
	st.sess.completedAt = time.Now()
	return nil
}

// SetError transitions a session to its terminal error state.
func (m *Manager) SetError(id, msg string) error {
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sess.state = StateError
	st.sess.err = msg
	st.sess.completedAt = time.Now()
	return nil
}

// Abort signals a session's abort channel and transitions it to aborted.
// Idempotent: aborting an already-terminal session is a no-op.
func (m *Manager) Abort(id string) error {
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sess.state.Terminal() {
		return nil
	}
	st.sess.aborted = true
	closeOnce(st.sess.abortCh)
	st.sess.state = StateAborted
	st.sess.completedAt = time.Now()
	return nil
}

// IsAborted reports whether a session's abort signal has fired.
func (m *Manager) IsAborted(id string) bool {
	st, err := m.get(id)
	if err != nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sess.aborted
}

// AbortSignal returns the channel that closes when the session aborts, for
// select-based cancellation in the Coordinator.
func (m *Manager) AbortSignal(id string) (<-chan struct{}, error) {
	st, err := m.get(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sess.abortCh, nil
}

// Remove deletes a session outright, regardless of state.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetCheckpoint attaches checkpoint to the session, transitions it to
// awaiting_checkpoint, and lazily creates the one-shot resolution slot.
func (m *Manager) SetCheckpoint(id string, cp Checkpoint) error {
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	st.sess.checkpoint = &cp
	st.sess.resolution = make(chan Resolution, 1)
	st.sess.state = StateAwaitingCheckpoint
	return nil
}

// PendingCheckpoint returns a copy of the session's current checkpoint, if
// any, including the id SetCheckpoint minted for it.
func (m *Manager) PendingCheckpoint(id string) (Checkpoint, error) {
	st, err := m.get(id)
	if err != nil {
		return Checkpoint{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sess.checkpoint == nil {
		return Checkpoint{}, fmt.Errorf("sessionmgr: session %q has no pending checkpoint", id)
	}
	return *st.sess.checkpoint, nil
}

// WaitForCheckpoint blocks until the session's pending checkpoint is
// resolved, the timeout elapses, or the session aborts, whichever first.
// A zero timeout uses DefaultCheckpointTimeout.
func (m *Manager) WaitForCheckpoint(ctx context.Context, id string, timeout time.Duration) (Resolution, error) {
	if timeout <= 0 {
		timeout = DefaultCheckpointTimeout
	}

	st, err := m.get(id)
	if err != nil {
		return Resolution{}, err
	}
	st.mu.Lock()
	ch := st.sess.resolution
	abortCh := st.sess.abortCh
	st.mu.Unlock()

	if ch == nil {
		return Resolution{}, fmt.Errorf("sessionmgr: session %q has no pending checkpoint", id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Resolution{}, errs.Abort("sessionmgr.WaitForCheckpoint", ctx.Err())
	case <-abortCh:
		return Resolution{}, errs.Abort("sessionmgr.WaitForCheckpoint", errs.ErrAborted)
	case <-timer.C:
		return Resolution{}, errs.Timeout("sessionmgr.WaitForCheckpoint", errs.ErrCheckpointTimeout)
	case res := <-ch:
		return res, nil
	}
}

// ResolveCheckpoint fills the resolution slot for the session's current
// pending checkpoint. Must match the pending checkpoint id; a mismatched
// or already-resolved checkpoint id is a silent no-op (idempotent, per
// spec.md §4.9).
func (m *Manager) ResolveCheckpoint(id, checkpointID, action string, data any) error {
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	cp := st.sess.checkpoint
	if cp == nil || cp.ID != checkpointID || cp.ResolvedAt != nil {
		return nil
	}

	now := time.Now()
	cp.ResolvedAt = &now
	cp.Action = action
	cp.Data = data

	select {
	case st.sess.resolution <- Resolution{Action: action, Data: data}:
	default:
	}
	return nil
}

// ClearCheckpoint drops the session's pending checkpoint and resolution
// slot after it has been acted on.
func (m *Manager) ClearCheckpoint(id string) error {
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sess.checkpoint = nil
	st.sess.resolution = nil
	return nil
}

// Sweep removes every terminal session whose completedAt is older than
// RemoveAfter and returns the removed session ids, so a caller can also
// evict any per-session state it keeps outside the Manager (e.g. an
// eventstream.Registry's replay buffers). Intended to be called
// periodically by the owning process.
func (m *Manager) Sweep() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.cfg.RemoveAfter)
	var removed []string
	kept := m.order[:0:0]
	for _, id := range m.order {
		st := m.sessions[id]
		st.mu.Lock()
		expired := st.sess.state.Terminal() && st.sess.completedAt.Before(cutoff)
		st.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed
}

// LiveSessionIDs returns every tracked session id, oldest first.
func (m *Manager) LiveSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
