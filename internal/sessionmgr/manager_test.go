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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/deepresearch/internal/errs"
	"github.com/kadirpekel/deepresearch/internal/paper"
)

// fakePapers is a minimal PaperStore for tests.
type fakePapers struct{}

func (fakePapers) Get(id string) (*paper.Paper, bool) { return nil, false }
func (fakePapers) Set(p *paper.Paper)                 {}

func TestCreateStartCompleteLifecycle(t *testing.T) {
	m := New(Config{})
	sess := m.Create("what is X?", fakePapers{})
	require.NotEmpty(t, sess.ID)

	require.NoError(t, m.Start(sess.ID))
	got, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, StateRunning, got.state)

	require.NoError(t, m.Complete(sess.ID))
	got, _ = m.Get(sess.ID)
	assert.Equal(t, StateCompleted, got.state)
	assert.True(t, got.state.Terminal())
}

func TestAbortClosesSignalAndIsIdempotent(t *testing.T) {
	m := New(Config{})
	sess := m.Create("q", fakePapers{})

	require.NoError(t, m.Abort(sess.ID))
	assert.True(t, m.IsAborted(sess.ID))

	sig, err := m.AbortSignal(sess.ID)
	require.NoError(t, err)
	select {
	case <-sig:
	default:
		t.Fatal("expected abort channel to be closed")
	}

	require.NoError(t, m.Abort(sess.ID)) // idempotent
}

func TestCheckpointResolveUnblocksWait(t *testing.T) {
	m := New(Config{})
	sess := m.Create("q", fakePapers{})

	cp := Checkpoint{Type: CheckpointPlanApproval, Title: "Approve plan?"}
	require.NoError(t, m.SetCheckpoint(sess.ID, cp))

	got, _ := m.Get(sess.ID)
	cpID := got.checkpoint.ID
	require.NotEmpty(t, cpID)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = m.ResolveCheckpoint(sess.ID, cpID, "approve", nil)
	}()

	res, err := m.WaitForCheckpoint(t.Context(), sess.ID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "approve", res.Action)
}

func TestCheckpointResolveMismatchedIDIsNoOp(t *testing.T) {
	m := New(Config{})
	sess := m.Create("q", fakePapers{})
	require.NoError(t, m.SetCheckpoint(sess.ID, Checkpoint{Type: CheckpointPlanApproval}))

	require.NoError(t, m.ResolveCheckpoint(sess.ID, "wrong-id", "approve", nil))

	_, err := m.WaitForCheckpoint(t.Context(), sess.ID, 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, errs.KindTimeout, errs.KindOf(err))
}

func TestCheckpointResolveIsIdempotent(t *testing.T) {
	m := New(Config{})
	sess := m.Create("q", fakePapers{})
	require.NoError(t, m.SetCheckpoint(sess.ID, Checkpoint{Type: CheckpointPlanApproval}))
	got, _ := m.Get(sess.ID)
	cpID := got.checkpoint.ID

	require.NoError(t, m.ResolveCheckpoint(sess.ID, cpID, "approve", nil))
	require.NoError(t, m.ResolveCheckpoint(sess.ID, cpID, "iterate", nil))

	res, err := m.WaitForCheckpoint(t.Context(), sess.ID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "approve", res.Action, "second resolve must be ignored")
}

func TestWaitForCheckpointTimesOut(t *testing.T) {
	m := New(Config{})
	sess := m.Create("q", fakePapers{})
	require.NoError(t, m.SetCheckpoint(sess.ID, Checkpoint{Type: CheckpointPlanApproval}))

	_, err := m.WaitForCheckpoint(t.Context(), sess.ID, 5*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, errs.KindTimeout, errs.KindOf(err))
}

func TestWaitForCheckpointReturnsAbortErrorOnAbort(t *testing.T) {
	m := New(Config{})
	sess := m.Create("q", fakePapers{})
	require.NoError(t, m.SetCheckpoint(sess.ID, Checkpoint{Type: CheckpointPlanApproval}))

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = m.Abort(sess.ID)
	}()

	_, err := m.WaitForCheckpoint(t.Context(), sess.ID, time.Second)
	require.Error(t, err)
	assert.Equal(t, errs.KindAbort, errs.KindOf(err))
}

func TestMaxLiveSessionsEvictsOldest(t *testing.T) {
	m := New(Config{MaxLiveSessions: 2})
	first := m.Create("q1", fakePapers{})
	_ = m.Create("q2", fakePapers{})
	_ = m.Create("q3", fakePapers{})

	assert.Len(t, m.LiveSessionIDs(), 2)
	_, ok := m.Get(first.ID)
	assert.False(t, ok, "oldest session should have been evicted")
}

func TestSweepRemovesExpiredTerminalSessions(t *testing.T) {
	m := New(Config{RemoveAfter: time.Millisecond})
	sess := m.Create("q", fakePapers{})
	require.NoError(t, m.Complete(sess.ID))

	time.Sleep(5 * time.Millisecond)
	removed := m.Sweep()
	assert.Equal(t, []string{sess.ID}, removed)
	_, ok := m.Get(sess.ID)
	assert.False(t, ok)
}
