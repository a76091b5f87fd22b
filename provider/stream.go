// Copyright 2025 Chorus
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

package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// CompleteStream executes one streaming chat-completion request over a
// single long-lived connection, invoking handler for each text chunk.
// Streams are never retried: a broken stream surfaces as a terminal error.
// The returned response carries the aggregated content.
func (c *Client) CompleteStream(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error) {
	start := time.Now()

	httpReq, err := c.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider stream request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		msg := string(body)
		if msg == "" {
			msg = httpResp.Status
		}
		return nil, &APIError{StatusCode: httpResp.StatusCode, Message: fmt.Sprintf("%s: %s", c.profile.Provider, msg)}
	}

	var content strings.Builder
	wrapped := func(chunk string) error {
		content.WriteString(chunk)
		return handler(chunk)
	}

	switch c.profile.Provider {
	case ProviderOllama:
		err = scanNDJSON(httpResp.Body, wrapped)
	case ProviderAnthropic:
		err = scanAnthropicSSE(httpResp.Body, wrapped)
	default:
		err = scanChatSSE(httpResp.Body, wrapped)
	}
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	return &CompletionResponse{
		Content: content.String(),
		Model:   model,
		Latency: time.Since(start),
	}, nil
}

// scanNDJSON reads Ollama's newline-delimited JSON stream.
func scanNDJSON(body io.Reader, emit func(string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk struct {
			Response string `json:"response"`
			Done     bool   `json:"done"`
		}
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if chunk.Response != "" {
			if err := emit(chunk.Response); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}

// scanChatSSE reads an OpenAI-style server-sent-event stream.
func scanChatSSE(body io.Reader, emit func(string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := emit(chunk.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}

// scanAnthropicSSE reads Anthropic's event stream, emitting text deltas.
func scanAnthropicSSE(body io.Reader, emit func(string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var chunk struct {
			Type  string `json:"type"`
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		switch chunk.Type {
		case "content_block_delta":
			if chunk.Delta.Text != "" {
				if err := emit(chunk.Delta.Text); err != nil {
					return err
				}
			}
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}
