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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsResolver resolves a secret identifier into its value. Production
// deployments use AWS Secrets Manager; development uses environment
// variables.
type SecretsResolver interface {
	Resolve(ctx context.Context, secretID string) (string, error)
}

// AWSSecretsResolver resolves secrets from AWS Secrets Manager with a
// short-lived in-process cache.
type AWSSecretsResolver struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
}

type secretCacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewAWSSecretsResolver creates a Secrets Manager backed resolver.
func NewAWSSecretsResolver(ctx context.Context, region string) (*AWSSecretsResolver, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSecretsResolver{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    5 * time.Minute,
	}, nil
}

// Resolve fetches the secret value for the given ARN. Secrets stored as a
// JSON object are expected to carry the key under "api_key" or "value";
// plain-string secrets are returned as-is.
func (r *AWSSecretsResolver) Resolve(ctx context.Context, secretID string) (string, error) {
	r.mu.RLock()
	entry, ok := r.cache[secretID]
	r.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskSecretID(secretID), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskSecretID(secretID))
	}

	value := *result.SecretString

	// JSON-object secrets carry the key under a named field
	var fields map[string]string
	if err := json.Unmarshal([]byte(value), &fields); err == nil {
		if v, ok := fields["api_key"]; ok {
			value = v
		} else if v, ok := fields["value"]; ok {
			value = v
		}
	}

	r.mu.Lock()
	r.cache[secretID] = &secretCacheEntry{value: value, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	log.Printf("[Secrets] Resolved and cached secret %s", maskSecretID(secretID))
	return value, nil
}

// EnvSecretsResolver resolves secrets from environment variables, treating
// the secret ID as the variable name. Used in development and tests.
type EnvSecretsResolver struct{}

// Resolve reads the secret from the environment.
func (r *EnvSecretsResolver) Resolve(_ context.Context, secretID string) (string, error) {
	if v := os.Getenv(secretID); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no value for secret %s in environment", secretID)
}

// ResolveSecrets fills in secret-referenced fields on the config. Missing
// secrets are an error only for fields that were explicitly configured by
// reference.
func (c *Config) ResolveSecrets(ctx context.Context, resolver SecretsResolver) error {
	if c.Provider.APIKeySecretID != "" && c.Provider.APIKey == "" {
		key, err := resolver.Resolve(ctx, c.Provider.APIKeySecretID)
		if err != nil {
			return fmt.Errorf("resolving provider API key: %w", err)
		}
		c.Provider.APIKey = key
	}
	return nil
}

// maskSecretID masks a secret identifier for logging, keeping the tail so
// operators can still tell secrets apart.
func maskSecretID(id string) string {
	if len(id) <= 12 {
		return "***"
	}
	return "..." + id[len(id)-8:]
}
