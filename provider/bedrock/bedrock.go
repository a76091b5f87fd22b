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

// Package bedrock provides a provider.ChatClient backed by AWS Bedrock.
// Authentication uses AWS Signature V4 via the ambient IAM credentials,
// so no API key is configured. Model IDs select the request and response
// shape by family (anthropic, amazon, meta, mistral).
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"chorus/engine/provider"
	"chorus/engine/shared/logger"
)

const (
	// DefaultRegion is used when none is configured
	DefaultRegion = "us-east-1"

	// DefaultModel is the model ID used when the request names none
	DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	anthropicBedrockVersion = "bedrock-2023-05-31"
)

// Client implements provider.ChatClient over the Bedrock runtime API.
type Client struct {
	client *bedrockruntime.Client
	region string
	model  string
	log    *logger.Logger
}

var _ provider.ChatClient = (*Client)(nil)

// New loads the default AWS configuration for region and returns a
// Bedrock-backed client. Config loading fails when no credentials are
// resolvable, and that error is returned rather than deferred to the
// first call.
func New(ctx context.Context, region, model string) (*Client, error) {
	if region == "" {
		region = DefaultRegion
	}
	if model == "" {
		model = DefaultModel
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}

	return &Client{
		client: bedrockruntime.NewFromConfig(awsCfg),
		region: region,
		model:  model,
		log:    logger.New("bedrock"),
	}, nil
}

// Complete invokes the model once. The SDK applies its own retry policy
// for throttling, so no additional backoff wraps the call.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := buildRequestBody(req, model)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bedrock request: %w", err)
	}

	output, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	resp, err := parseResponseBody(output.Body, model)
	if err != nil {
		return nil, err
	}
	resp.Latency = time.Since(start)
	return resp, nil
}

// CompleteStream streams the model response chunk by chunk. Only the
// anthropic family supports incremental delivery here; other families
// fall back to a buffered call emitted as one chunk.
func (c *Client) CompleteStream(ctx context.Context, req provider.CompletionRequest, handler provider.StreamHandler) (*provider.CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	if modelFamily(model) != "anthropic" {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Content != "" {
			if err := handler(resp.Content); err != nil {
				return nil, err
			}
		}
		return resp, nil
	}

	body, err := buildRequestBody(req, model)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bedrock request: %w", err)
	}

	output, err := c.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(model),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	stream := output.GetStream()
	defer stream.Close()

	var content strings.Builder
	tokens := 0

	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		var ev struct {
			Type  string `json:"type"`
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
			Usage struct {
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(chunk.Value.Bytes, &ev); err != nil {
			return nil, fmt.Errorf("malformed bedrock stream chunk: %w", err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" {
				content.WriteString(ev.Delta.Text)
				if err := handler(ev.Delta.Text); err != nil {
					return nil, err
				}
			}
		case "message_delta":
			tokens += ev.Usage.OutputTokens
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("bedrock stream interrupted: %w", err)
	}

	return &provider.CompletionResponse{
		Content:    content.String(),
		Model:      model,
		TokensUsed: tokens,
		Latency:    time.Since(start),
	}, nil
}

// Close is a no-op; the SDK client holds no pooled resources to release.
func (c *Client) Close() {}

func buildRequestBody(req provider.CompletionRequest, model string) (map[string]interface{}, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	prompt := req.Prompt
	if req.SystemPrompt != "" && modelFamily(model) != "anthropic" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}

	switch modelFamily(model) {
	case "anthropic":
		body := map[string]interface{}{
			"anthropic_version": anthropicBedrockVersion,
			"max_tokens":        maxTokens,
			"temperature":       req.Temperature,
			"messages": []map[string]string{
				{"role": "user", "content": req.Prompt},
			},
		}
		if req.SystemPrompt != "" {
			body["system"] = req.SystemPrompt
		}
		return body, nil
	case "amazon":
		return map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": maxTokens,
				"temperature":   req.Temperature,
				"topP":          0.9,
			},
		}, nil
	case "meta":
		return map[string]interface{}{
			"prompt":      prompt,
			"max_gen_len": maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}, nil
	case "mistral":
		return map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": req.Temperature,
			"top_p":       0.9,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported bedrock model family in %q", model)
	}
}

func parseResponseBody(body []byte, model string) (*provider.CompletionResponse, error) {
	switch modelFamily(model) {
	case "anthropic":
		var resp struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
		}
		content := ""
		if len(resp.Content) > 0 {
			content = resp.Content[0].Text
		}
		return &provider.CompletionResponse{
			Content:    content,
			Model:      model,
			TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}, nil

	case "amazon":
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
				TokenCount int    `json:"tokenCount"`
			} `json:"results"`
			InputTextTokenCount int `json:"inputTextTokenCount"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
		}
		content := ""
		outputTokens := 0
		if len(resp.Results) > 0 {
			content = resp.Results[0].OutputText
			outputTokens = resp.Results[0].TokenCount
		}
		return &provider.CompletionResponse{
			Content:    content,
			Model:      model,
			TokensUsed: resp.InputTextTokenCount + outputTokens,
		}, nil

	case "meta":
		var resp struct {
			Generation       string `json:"generation"`
			PromptTokenCount int    `json:"prompt_token_count"`
			GenTokenCount    int    `json:"generation_token_count"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
		}
		return &provider.CompletionResponse{
			Content:    resp.Generation,
			Model:      model,
			TokensUsed: resp.PromptTokenCount + resp.GenTokenCount,
		}, nil

	case "mistral":
		var resp struct {
			Outputs []struct {
				Text string `json:"text"`
			} `json:"outputs"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
		}
		content := ""
		if len(resp.Outputs) > 0 {
			content = resp.Outputs[0].Text
		}
		// Mistral on Bedrock reports no token counts
		return &provider.CompletionResponse{
			Content: content,
			Model:   model,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported bedrock model family in %q", model)
	}
}

// inferenceProfilePrefixes are regional prefixes that may precede the
// model family in a Bedrock inference profile ID, as in
// us.anthropic.claude-3-5-sonnet-20240620-v1:0.
var inferenceProfilePrefixes = map[string]bool{
	"us": true, "eu": true, "apac": true, "global": true,
}

var supportedFamilies = map[string]bool{
	"anthropic": true, "amazon": true, "meta": true, "mistral": true,
}

// modelFamily extracts the model family from a Bedrock model ID,
// skipping an inference profile prefix when present.
func modelFamily(modelID string) string {
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}
	family := segments[0]
	if inferenceProfilePrefixes[family] && len(segments) >= 3 {
		family = segments[1]
	}
	if supportedFamilies[family] {
		return family
	}
	return ""
}
