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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
)

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StreamText calls streamText against the provider and returns a lazy
// sequence of text deltas, per spec.md §6. Reading stops as soon as the
// consumer stops ranging over the sequence (the underlying response body is
// closed either way), matching the "backpressure is lazy" rule of spec.md
// §5.
//
// The wire parsing here follows the same "data: " SSE line-splitting shape
// the teacher's OpenAI provider uses for its Responses API stream, adapted
// to the much simpler chat-completions delta format OpenRouter emits.
func (c *Client) StreamText(ctx context.Context, opts GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := chatRequest{
			Model:    c.resolveModel(opts.Model),
			Messages: toChatMessages(opts.resolveMessages()),
			Stream:   true,
		}
		payload, err := json.Marshal(req)
		if err != nil {
			yield("", fmt.Errorf("llmclient: marshal request: %w", err))
			return
		}

		body, err := c.http.do(ctx, c.cfg.BaseURL+"/chat/completions", c.headers(), payload)
		if err != nil {
			yield("", fmt.Errorf("llmclient: request: %w", err))
			return
		}
		defer body.Close()

		reader := bufio.NewReader(body)
		for {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					return
				}
				yield("", fmt.Errorf("llmclient: read stream: %w", err))
				return
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			data := bytes.TrimSpace(line[len("data: "):])
			if string(data) == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				yield("", fmt.Errorf("llmclient: provider error: %s", chunk.Error.Message))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}
