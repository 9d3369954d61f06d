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

package llmclient

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// retryConfig configures retryClient.
type retryConfig struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// retryClient wraps http.Client with exponential-backoff retry on 429 and
// 5xx responses, per spec.md §7 (RateLimitError / NetworkError recovery is
// the provider's own responsibility; this is that responsibility). Modeled
// on the teacher's pkg/httpclient.Client, trimmed of TLS configuration and
// pluggable per-vendor header parsers since OpenRouter's rate-limit surface
// is a plain Retry-After header.
type retryClient struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newRetryClient(cfg retryConfig) *retryClient {
	return &retryClient{
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
	}
}

// do POSTs body to url with headers applied, retrying on 429/5xx. The
// caller owns the returned ReadCloser and must Close it.
func (c *retryClient) do(ctx context.Context, url string, headers map[string]string, body []byte) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.sleep(attempt, 0)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.Body, nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		lastErr = &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}

		if !retryable || attempt >= c.maxRetries {
			return nil, lastErr
		}
		c.sleep(attempt, retryAfter)
	}
	return nil, lastErr
}

func (c *retryClient) sleep(attempt int, retryAfter time.Duration) {
	delay := retryAfter
	if delay <= 0 {
		delay = time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		delay += time.Duration(rand.Float64() * float64(delay) * 0.1)
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	time.Sleep(delay)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// statusError is returned for a non-2xx response: at once for a
// non-retryable status, or once retries on 429/5xx are exhausted.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return "llmclient: http " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

// Retryable reports whether the status that produced this error is one the
// coordinator's RateLimitError/NetworkError handling (spec.md §7) would
// still want to back off on, had the client's own retries not already
// exhausted it.
func (e *statusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
