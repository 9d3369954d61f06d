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

package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindRecoverable(t *testing.T) {
	recoverable := []Kind{KindRateLimit, KindNetwork, KindTransient, KindTimeout, KindValidation}
	for _, k := range recoverable {
		assert.True(t, k.Recoverable(), "expected %s to be recoverable", k)
	}

	unrecoverable := []Kind{KindAuth, KindAbort, KindInternal}
	for _, k := range unrecoverable {
		assert.False(t, k.Recoverable(), "expected %s to be unrecoverable", k)
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindNetwork, "searcher: federator.Search", cause)

	assert.Equal(t, "searcher: federator.Search: network: boom", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	bare := New(KindInternal, "coordinator: run", nil)
	assert.Equal(t, "coordinator: run: internal", bare.Error())
}

func TestConstructorsSetKind(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"Auth", Auth("op", cause), KindAuth},
		{"RateLimit", RateLimit("op", cause), KindRateLimit},
		{"Network", Network("op", cause), KindNetwork},
		{"Transient", Transient("op", cause), KindTransient},
		{"Timeout", Timeout("op", cause), KindTimeout},
		{"Abort", Abort("op", cause), KindAbort},
		{"Validation", Validation("op", cause), KindValidation},
		{"Internal", Internal("op", cause), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, tc.err.Kind)
			assert.Equal(t, "op", tc.err.Op)
			assert.Equal(t, cause, tc.err.Err)
		})
	}
}

func TestKindOf(t *testing.T) {
	classified := RateLimit("source: arxiv.Search", errors.New("429"))
	assert.Equal(t, KindRateLimit, KindOf(classified))

	assert.Equal(t, KindInternal, KindOf(errors.New("unclassified")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestWrappedSentinelsMatchErrorsIs(t *testing.T) {
	timeoutErr := Timeout("sessionmgr: waitForCheckpoint", ErrCheckpointTimeout)
	assert.True(t, errors.Is(timeoutErr, ErrCheckpointTimeout))

	abortErr := Abort("sessionmgr: waitForCheckpoint", ErrAborted)
	assert.True(t, errors.Is(abortErr, ErrAborted))
}
