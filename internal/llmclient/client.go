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

// Package llmclient implements spec.md §6's opaque external LLM contract:
// structuredGenerate({schema, prompt|messages, model}) -> object and
// streamText({prompt|messages, model}) -> chunks. The orchestrator treats
// the provider as a black box; this package owns retries internally so
// callers never see a transient failure that could have been absorbed.
//
// Modeled on the teacher's v2/embedder.OpenAIEmbedder (bearer-token HTTP
// client against an OpenAI-compatible endpoint), generalized to chat
// completions against OpenRouter, which exposes the same request/response
// shape for every model it proxies.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// ErrMissingAPIKey is returned by NewFromEnv when OPENROUTER_API_KEY is
// unset, per spec.md §6's "absence yields a 500 with a human-readable
// message".
var ErrMissingAPIKey = errors.New("llmclient: OPENROUTER_API_KEY is not set")

// Config configures a Client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Referer and Title populate OpenRouter's optional attribution headers.
	Referer string
	Title   string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = "openai/gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 20 * time.Second
	}
	return c
}

// Client is a single provider-backed implementation of the opaque LLM
// contract. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *retryClient
}

// New builds a Client from an explicit Config.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		http: newRetryClient(retryConfig{
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
		}),
	}
}

// NewFromEnv builds a Client reading OPENROUTER_API_KEY from the
// environment, per spec.md §6. Returns ErrMissingAPIKey if unset.
func NewFromEnv() (*Client, error) {
	key := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	return New(Config{APIKey: key}), nil
}

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-shaped prompt.
type Message struct {
	Role    Role
	Content string
}

// GenerateOptions parametrizes both StructuredGenerate and StreamText.
// Exactly one of Prompt or Messages should be set; Prompt is shorthand for
// a single user message.
type GenerateOptions struct {
	Prompt   string
	Messages []Message
	Model    string
}

func (o GenerateOptions) resolveMessages() []Message {
	if len(o.Messages) > 0 {
		return o.Messages
	}
	return []Message{{Role: RoleUser, Content: o.Prompt}}
}

func (c *Client) resolveModel(requested string) string {
	if requested != "" {
		return requested
	}
	return c.cfg.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func toChatMessages(msgs []Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// StructuredGenerate calls structuredGenerate against T's JSON schema and
// decodes the model's response into a T. T must be a struct type whose
// exported fields carry `json` tags; schema derivation uses the same
// reflector settings the teacher's function-tool package applies.
func StructuredGenerate[T any](ctx context.Context, c *Client, opts GenerateOptions) (T, error) {
	var zero T

	schema, err := schemaFor[T]()
	if err != nil {
		return zero, fmt.Errorf("llmclient: derive schema: %w", err)
	}

	req := chatRequest{
		Model:    c.resolveModel(opts.Model),
		Messages: toChatMessages(opts.resolveMessages()),
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   "structured_output",
				Strict: true,
				Schema: schema,
			},
		},
	}

	body, err := c.doChat(ctx, req)
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return zero, fmt.Errorf("llmclient: decode structured response: %w", err)
	}
	return result, nil
}

func (c *Client) doChat(ctx context.Context, req chatRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llmclient: marshal request: %w", err)
	}

	resp, err := c.http.do(ctx, c.cfg.BaseURL+"/chat/completions", c.headers(), payload)
	if err != nil {
		return "", fmt.Errorf("llmclient: request: %w", err)
	}
	defer resp.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp).Decode(&parsed); err != nil {
		return "", fmt.Errorf("llmclient: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llmclient: provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llmclient: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"Content-Type":  "application/json",
	}
	if c.cfg.Referer != "" {
		h["HTTP-Referer"] = c.cfg.Referer
	}
	if c.cfg.Title != "" {
		h["X-Title"] = c.cfg.Title
	}
	return h
}
