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

package bedrock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/engine/provider"
)

func TestModelFamily(t *testing.T) {
	tests := []struct {
		modelID string
		want    string
	}{
		{"anthropic.claude-3-5-sonnet-20240620-v1:0", "anthropic"},
		{"amazon.titan-text-express-v1", "amazon"},
		{"meta.llama3-70b-instruct-v1:0", "meta"},
		{"mistral.mistral-large-2402-v1:0", "mistral"},
		{"us.anthropic.claude-3-5-sonnet-20240620-v1:0", "anthropic"},
		{"eu.anthropic.claude-sonnet-4-5-20250929-v1:0", "anthropic"},
		{"global.meta.llama3-70b-instruct-v1:0", "meta"},
		{"cohere.command-r-v1:0", ""},
		{"no-dots", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.modelID, func(t *testing.T) {
			assert.Equal(t, tt.want, modelFamily(tt.modelID))
		})
	}
}

func TestBuildRequestBodyAnthropic(t *testing.T) {
	body, err := buildRequestBody(provider.CompletionRequest{
		Prompt:       "hello",
		SystemPrompt: "be brief",
		MaxTokens:    256,
		Temperature:  0.2,
	}, "anthropic.claude-3-5-sonnet-20240620-v1:0")
	require.NoError(t, err)

	assert.Equal(t, anthropicBedrockVersion, body["anthropic_version"])
	assert.Equal(t, 256, body["max_tokens"])
	assert.Equal(t, "be brief", body["system"])

	messages := body["messages"].([]map[string]string)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0]["content"])
}

func TestBuildRequestBodyFoldsSystemPromptForTitan(t *testing.T) {
	body, err := buildRequestBody(provider.CompletionRequest{
		Prompt:       "question",
		SystemPrompt: "context",
	}, "amazon.titan-text-express-v1")
	require.NoError(t, err)
	assert.Equal(t, "context\n\nquestion", body["inputText"])
}

func TestBuildRequestBodyUnsupportedFamily(t *testing.T) {
	_, err := buildRequestBody(provider.CompletionRequest{Prompt: "x"}, "cohere.command-r-v1:0")
	assert.Error(t, err)
}

func TestParseResponseBody(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		body       string
		wantText   string
		wantTokens int
	}{
		{
			name:       "anthropic",
			model:      "anthropic.claude-3-5-sonnet-20240620-v1:0",
			body:       `{"content":[{"text":"claude says"}],"usage":{"input_tokens":10,"output_tokens":5}}`,
			wantText:   "claude says",
			wantTokens: 15,
		},
		{
			name:       "titan",
			model:      "amazon.titan-text-express-v1",
			body:       `{"results":[{"outputText":"titan says","tokenCount":4}],"inputTextTokenCount":8}`,
			wantText:   "titan says",
			wantTokens: 12,
		},
		{
			name:       "llama",
			model:      "meta.llama3-70b-instruct-v1:0",
			body:       `{"generation":"llama says","prompt_token_count":6,"generation_token_count":3}`,
			wantText:   "llama says",
			wantTokens: 9,
		},
		{
			name:       "mistral",
			model:      "mistral.mistral-large-2402-v1:0",
			body:       `{"outputs":[{"text":"mistral says"}]}`,
			wantText:   "mistral says",
			wantTokens: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := parseResponseBody([]byte(tt.body), tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Content)
			assert.Equal(t, tt.wantTokens, resp.TokensUsed)
			assert.Equal(t, tt.model, resp.Model)
		})
	}
}
