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

package source

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle is the single-permit interval gate every SourceClient uses
// before issuing a request (spec.md §4.3). It wraps golang.org/x/time/rate
// with burst=1, the idiomatic ecosystem equivalent of hand-rolling a
// sleep-until-next-slot gate.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a Throttle at requestsPerSecond, or
// requestsPerSecondWithCredentials when hasCredentials is true.
func NewThrottle(cfg RateLimiterConfig, hasCredentials bool) *Throttle {
	r := cfg.effectiveRate(hasCredentials)
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(r), 1)}
}

// Wait blocks until a request permit is available or ctx is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
