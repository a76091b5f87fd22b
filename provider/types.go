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

// Package provider executes chat-completion requests against a detected
// LLM provider with authentication and bounded retries. The provider and
// its auth requirements are inferred from the endpoint URL; callers only
// supply a base URL and, where required, an API key.
package provider

import (
	"context"
	"net/http"
	"time"
)

// ProviderType identifies the detected provider behind an endpoint.
type ProviderType string

const (
	ProviderOpenAI      ProviderType = "openai"
	ProviderAnthropic   ProviderType = "anthropic"
	ProviderGemini      ProviderType = "gemini"
	ProviderGroq        ProviderType = "groq"
	ProviderMistral     ProviderType = "mistral"
	ProviderAzureOpenAI ProviderType = "azure-openai"
	ProviderOllama      ProviderType = "ollama"
	ProviderLMStudio    ProviderType = "lmstudio"
	ProviderLocalAI     ProviderType = "localai"
	ProviderVLLM        ProviderType = "vllm"
	ProviderCustom      ProviderType = "custom"
)

// AuthType identifies how credentials are attached to a request.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
	AuthBasic  AuthType = "basic"
)

// Profile is the result of provider detection for one endpoint. It is
// constructed once per client and never mutated afterwards.
type Profile struct {
	BaseURL      string
	APIKey       string
	Provider     ProviderType
	AuthType     AuthType
	RequiresAuth bool
}

// CompletionRequest encapsulates one chat-completion call.
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensUsed int
	Latency    time.Duration
}

// StreamHandler receives incremental text chunks during a streaming
// completion. Returning an error aborts the stream.
type StreamHandler func(chunk string) error

// ChatClient is the call surface the engine depends on. *Client is the
// HTTP implementation; bedrock.Client is the SDK-authenticated one.
type ChatClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	CompleteStream(ctx context.Context, req CompletionRequest, handler StreamHandler) (*CompletionResponse, error)
	Close()
}

// HTTPClient abstracts the HTTP transport so tests can substitute a mock.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
