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

// Package config loads the engine configuration from a YAML file with
// environment variable overrides. Configuration is plain data passed to
// components at construction time; there is no process-wide settings
// singleton.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Provider  ProviderConfig `yaml:"provider"`
	Engine    EngineConfig   `yaml:"engine"`
	Memory    MemoryConfig   `yaml:"memory"`
	Cache     CacheConfig    `yaml:"cache"`
	Redis     RedisConfig    `yaml:"redis"`
	Snapshots SnapshotConfig `yaml:"snapshots"`

	// Named collaborator endpoints the engine can route tasks to.
	Tools       map[string]EndpointConfig   `yaml:"tools"`
	Agents      map[string]EndpointConfig   `yaml:"agents"`
	DataSources map[string]DataSourceConfig `yaml:"datasources"`
}

// ServerConfig configures the inbound HTTP surface.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProviderConfig configures the default LLM provider call path.
type ProviderConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	APIKeySecretID string  `yaml:"api_key_secret_id"` // Secrets Manager ARN or env prefix
	Model          string  `yaml:"model"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`

	// Bedrock enables the IAM-authenticated AWS Bedrock client instead of
	// the HTTP provider detected from BaseURL.
	Bedrock BedrockConfig `yaml:"bedrock"`
}

// BedrockConfig configures the optional AWS Bedrock provider.
type BedrockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	Model   string `yaml:"model"`
}

// EngineConfig configures the orchestration state machine.
type EngineConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

// MemoryConfig configures conversation memory.
type MemoryConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxMessages int  `yaml:"max_messages"`
	TTLSeconds  int  `yaml:"ttl_seconds"`
}

// CacheConfig configures response caching.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// RedisConfig configures the shared Redis backend for memory and cache.
// When URL is empty or the server is unreachable at startup, both stores
// fall back to in-process maps.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SnapshotConfig configures execution snapshot persistence.
type SnapshotConfig struct {
	// PostgresDSN selects the Postgres snapshot store when set.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EndpointConfig describes one named tool or external agent endpoint.
type EndpointConfig struct {
	URL            string `yaml:"url"`
	AuthToken      string `yaml:"auth_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// DataSourceConfig describes one named datasource connection.
type DataSourceConfig struct {
	// Type is one of: postgres, mysql, mongodb, http.
	Type           string `yaml:"type"`
	DSN            string `yaml:"dsn"`
	Database       string `yaml:"database"`
	AuthToken      string `yaml:"auth_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Load reads configuration from the given YAML file, applies environment
// overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv applies environment variable overrides. Only the knobs that
// change between deployments are exposed here.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHORUS_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("CHORUS_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("CHORUS_PROVIDER_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("CHORUS_PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("CHORUS_PROVIDER_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("CHORUS_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("CHORUS_SNAPSHOT_POSTGRES_DSN"); v != "" {
		c.Snapshots.PostgresDSN = v
	}
	if v := os.Getenv("CHORUS_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.MaxIterations = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = 60
	}
	if c.Provider.MaxRetries <= 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = 0.7
	}
	if c.Provider.MaxTokens <= 0 {
		c.Provider.MaxTokens = 1024
	}
	if c.Engine.MaxIterations <= 0 {
		c.Engine.MaxIterations = 10
	}
	if c.Memory.MaxMessages <= 0 {
		c.Memory.MaxMessages = 50
	}
	if c.Memory.TTLSeconds <= 0 {
		c.Memory.TTLSeconds = 3600
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 300
	}
}

// Validate checks that the configuration is internally consistent.
// Provider credentials are validated later, by the provider itself,
// because auth requirements depend on the detected provider.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" && !c.Provider.Bedrock.Enabled {
		return fmt.Errorf("provider.base_url is required unless provider.bedrock is enabled")
	}
	for name, ds := range c.DataSources {
		switch ds.Type {
		case "postgres", "mysql", "mongodb", "http":
		default:
			return fmt.Errorf("datasource %s has unknown type %q", name, ds.Type)
		}
	}
	return nil
}
