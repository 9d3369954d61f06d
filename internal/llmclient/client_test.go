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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extractedFinding struct {
	Summary    string   `json:"summary" jsonschema:"required"`
	KeyPoints  []string `json:"keyPoints,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
}

func TestStructuredGenerateSendsSchemaAndDecodesResult(t *testing.T) {
	var gotAuth string
	var gotSchemaType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.ResponseFormat)
		gotSchemaType, _ = req.ResponseFormat.JSONSchema.Schema["type"].(string)

		resp := chatResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{}}
		resp.Choices[0].Message.Content = `{"summary":"quantum error correction is advancing","keyPoints":["a","b"],"confidence":0.8}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	result, err := StructuredGenerate[extractedFinding](t.Context(), c, GenerateOptions{Prompt: "summarize"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "object", gotSchemaType)
	assert.Equal(t, "quantum error correction is advancing", result.Summary)
	assert.Equal(t, []string{"a", "b"}, result.KeyPoints)
	assert.Equal(t, 0.8, result.Confidence)
}

func TestDoChatRetriesOn429ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := chatResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{}}
		resp.Choices[0].Message.Content = "ok"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	content, err := c.doChat(t.Context(), chatRequest{Model: "m", Messages: toChatMessages([]Message{{Role: RoleUser, Content: "hi"}})})
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.Equal(t, 2, attempts)
}

func TestDoChatExhaustsRetriesOnPersistent500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.doChat(t.Context(), chatRequest{Model: "m"})
	require.Error(t, err)
	var statusErr *statusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.True(t, statusErr.Retryable())
}

func TestStreamTextYieldsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
			`data: {"choices":[{"delta":{"content":" world"}}]}`,
			`data: [DONE]`,
		}
		for _, f := range frames {
			_, _ = w.Write([]byte(f + "\n\n"))
		}
	}))
	defer srv.Close()

	c := testClient(t, srv)
	var got []string
	for delta, err := range c.StreamText(t.Context(), GenerateOptions{Prompt: "hi"}) {
		require.NoError(t, err)
		got = append(got, delta)
	}
	assert.Equal(t, []string{"Hello", " world"}, got)
}

func TestNewFromEnvMissingKeyErrors(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	_, err := NewFromEnv()
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewFromEnvUsesEnvKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	c, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.cfg.APIKey)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 0*time.Second, parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter(strconv.Itoa(3)))
	assert.Equal(t, time.Duration(0), parseRetryAfter("not-a-number"))
}
