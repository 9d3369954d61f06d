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

// Package errs implements the error taxonomy of spec.md §7: every error
// that crosses a stage-executor/SessionManager/Coordinator boundary is
// classified into one of eight kinds so the Coordinator can decide
// recovery vs. propagation without inspecting error strings. Modeled on
// the teacher's rag.RetryError: a typed error wrapping the cause via
// Unwrap, rather than a bag of error-message substrings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for Coordinator recovery decisions.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindRateLimit  Kind = "rate_limit"
	KindNetwork    Kind = "network"
	KindTransient  Kind = "transient"
	KindTimeout    Kind = "timeout"
	KindAbort      Kind = "abort"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// Recoverable reports whether the Coordinator may retry, back off, or
// continue with a partial result after an error of this Kind, per
// spec.md §7. AuthError, AbortError and InternalError are never
// recoverable; the rest are.
func (k Kind) Recoverable() bool {
	switch k {
	case KindRateLimit, KindNetwork, KindTransient, KindTimeout, KindValidation:
		return true
	default:
		return false
	}
}

// Error is a classified, wrapped error carrying the operation that
// failed and its recovery Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a classified Error. op names the failing operation
// (e.g. "searcher: federator.Search").
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Auth(op string, err error) *Error       { return New(KindAuth, op, err) }
func RateLimit(op string, err error) *Error  { return New(KindRateLimit, op, err) }
func Network(op string, err error) *Error    { return New(KindNetwork, op, err) }
func Transient(op string, err error) *Error  { return New(KindTransient, op, err) }
func Timeout(op string, err error) *Error    { return New(KindTimeout, op, err) }
func Abort(op string, err error) *Error      { return New(KindAbort, op, err) }
func Validation(op string, err error) *Error { return New(KindValidation, op, err) }
func Internal(op string, err error) *Error   { return New(KindInternal, op, err) }

// ErrCheckpointTimeout and ErrAborted are the sentinel causes SessionManager
// wraps into a Timeout/Abort Error from waitForCheckpoint, so callers can
// also match with errors.Is against the unwrapped cause.
var (
	ErrCheckpointTimeout = errors.New("errs: checkpoint wait timed out")
	ErrAborted           = errors.New("errs: session aborted")
)

// KindOf extracts the Kind of a classified error, defaulting to
// KindInternal for anything not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
