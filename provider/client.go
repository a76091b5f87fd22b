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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chorus/engine/shared/logger"
)

const (
	// DefaultTimeout is the per-request HTTP timeout
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens is applied when the request does not set one
	DefaultMaxTokens = 1024

	// DefaultTemperature is applied when the request temperature is negative
	DefaultTemperature = 0.7

	anthropicVersion = "2023-06-01"
)

// Config configures an HTTP chat client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	Retry       RetryConfig

	// AllowUnauthenticated opts a remote non-cloud endpoint out of the
	// default auth requirement. Cloud providers ignore it.
	AllowUnauthenticated bool

	// HTTPClient substitutes the transport, for tests. When nil a real
	// client with Timeout is used.
	HTTPClient HTTPClient
}

// Client executes chat-completion requests against one detected provider.
// It is safe for concurrent use.
type Client struct {
	profile     Profile
	model       string
	maxTokens   int
	temperature float64
	retry       RetryConfig
	client      HTTPClient
	log         *logger.Logger
}

// NewClient detects the provider from cfg.BaseURL and validates
// authentication before any network call is made.
func NewClient(cfg Config) (*Client, error) {
	profile, err := DetectProfile(cfg.BaseURL, cfg.APIKey, cfg.AllowUnauthenticated)
	if err != nil {
		return nil, err
	}
	if err := profile.ValidateAuth(); err != nil {
		return nil, err
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("provider model is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		profile:     profile,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
		retry:       retry,
		client:      httpClient,
		log:         logger.New("provider"),
	}, nil
}

// Profile returns the detected provider profile.
func (c *Client) Profile() Profile {
	return c.profile
}

// Complete executes one chat-completion request with bounded retries.
// Transient failures (429, 5xx, connection errors, timeouts) back off
// exponentially; any other HTTP error aborts immediately.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	name := string(c.profile.Provider)

	attempts := 0
	resp, err := retryWithBackoff(ctx, c.retry, func(ctx context.Context) (*CompletionResponse, error) {
		attempts++
		return c.doComplete(ctx, req)
	})
	if attempts > 1 {
		promRetriesTotal.WithLabelValues(name).Add(float64(attempts - 1))
	}
	promRequestLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		promRequestsTotal.WithLabelValues(name, "error").Inc()
		return nil, err
	}
	promRequestsTotal.WithLabelValues(name, "success").Inc()

	resp.Latency = time.Since(start)
	return resp, nil
}

// doComplete executes a single non-streaming attempt.
func (c *Client) doComplete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	httpReq, err := c.buildRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
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

	return c.parseResponse(httpResp.Body, req)
}

// buildRequest assembles the provider-specific endpoint, body and headers.
func (c *Client) buildRequest(ctx context.Context, req CompletionRequest, stream bool) (*http.Request, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature < 0 {
		temperature = c.temperature
	}

	var endpoint string
	var body interface{}

	switch c.profile.Provider {
	case ProviderAnthropic:
		endpoint = c.profile.BaseURL + "/v1/messages"
		body = map[string]interface{}{
			"model":       model,
			"max_tokens":  maxTokens,
			"temperature": temperature,
			"messages": []map[string]string{
				{"role": "user", "content": req.Prompt},
			},
			"stream": stream,
		}
		if req.SystemPrompt != "" {
			body.(map[string]interface{})["system"] = req.SystemPrompt
		}

	case ProviderOllama:
		// Ollama's native API is single-prompt, not multi-turn chat
		endpoint = c.profile.BaseURL + "/api/generate"
		prompt := req.Prompt
		if req.SystemPrompt != "" {
			prompt = req.SystemPrompt + "\n\n" + prompt
		}
		body = map[string]interface{}{
			"model":  model,
			"prompt": prompt,
			"stream": stream,
			"options": map[string]interface{}{
				"temperature": temperature,
				"num_predict": maxTokens,
			},
		}

	case ProviderGemini:
		// Gemini uses a generateContent call with the key as a query param
		verb := "generateContent"
		if stream {
			verb = "streamGenerateContent"
		}
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", c.profile.BaseURL, model, verb, c.profile.APIKey)
		prompt := req.Prompt
		if req.SystemPrompt != "" {
			prompt = req.SystemPrompt + "\n\n" + prompt
		}
		body = map[string]interface{}{
			"contents": []map[string]interface{}{
				{"parts": []map[string]string{{"text": prompt}}},
			},
			"generationConfig": map[string]interface{}{
				"temperature":     temperature,
				"maxOutputTokens": maxTokens,
			},
		}

	default:
		// OpenAI-compatible chat completions, also spoken by Groq,
		// Mistral, Azure, LM Studio, LocalAI and vLLM
		endpoint = c.profile.BaseURL + "/v1/chat/completions"
		messages := []map[string]string{}
		if req.SystemPrompt != "" {
			messages = append(messages, map[string]string{"role": "system", "content": req.SystemPrompt})
		}
		messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})
		body = map[string]interface{}{
			"model":       model,
			"messages":    messages,
			"max_tokens":  maxTokens,
			"temperature": temperature,
			"stream":      stream,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyAuth(httpReq)

	return httpReq, nil
}

// applyAuth attaches credentials per the detected auth scheme.
func (c *Client) applyAuth(req *http.Request) {
	if !c.profile.RequiresAuth {
		return
	}
	switch c.profile.Provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", c.profile.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	case ProviderGemini:
		// Key travels as a query parameter, set in buildRequest
	case ProviderAzureOpenAI:
		req.Header.Set("api-key", c.profile.APIKey)
	default:
		req.Header.Set("Authorization", "Bearer "+c.profile.APIKey)
	}
}

// parseResponse decodes the provider-specific response shape.
func (c *Client) parseResponse(body io.Reader, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	switch c.profile.Provider {
	case ProviderAnthropic:
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			Model string `json:"model"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("failed to decode anthropic response: %w", err)
		}
		content := ""
		if len(resp.Content) > 0 {
			content = resp.Content[0].Text
		}
		if resp.Model != "" {
			model = resp.Model
		}
		return &CompletionResponse{
			Content:    content,
			Model:      model,
			TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}, nil

	case ProviderOllama:
		var resp struct {
			Response  string `json:"response"`
			Model     string `json:"model"`
			EvalCount int    `json:"eval_count"`
		}
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("failed to decode ollama response: %w", err)
		}
		if resp.Model != "" {
			model = resp.Model
		}
		return &CompletionResponse{
			Content:    resp.Response,
			Model:      model,
			TokensUsed: resp.EvalCount,
		}, nil

	case ProviderGemini:
		var resp struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
			UsageMetadata struct {
				TotalTokenCount int `json:"totalTokenCount"`
			} `json:"usageMetadata"`
		}
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("failed to decode gemini response: %w", err)
		}
		content := ""
		if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
			content = resp.Candidates[0].Content.Parts[0].Text
		}
		return &CompletionResponse{
			Content:    content,
			Model:      model,
			TokensUsed: resp.UsageMetadata.TotalTokenCount,
		}, nil

	default:
		var resp struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Model string `json:"model"`
			Usage struct {
				TotalTokens int `json:"total_tokens"`
			} `json:"usage"`
		}
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("failed to decode chat completion response: %w", err)
		}
		content := ""
		if len(resp.Choices) > 0 {
			content = resp.Choices[0].Message.Content
		}
		if resp.Model != "" {
			model = resp.Model
		}
		return &CompletionResponse{
			Content:    content,
			Model:      model,
			TokensUsed: resp.Usage.TotalTokens,
		}, nil
	}
}

// IsHealthy reports whether the provider endpoint is reachable. Any HTTP
// response counts as reachable; LLM APIs answer a bare GET with 404 or
// 405, which still proves the endpoint is up.
func (c *Client) IsHealthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profile.BaseURL, nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// Close releases pooled connections. The client must not be used after
// Close.
func (c *Client) Close() {
	if hc, ok := c.client.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
}
