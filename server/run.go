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

package server

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chorus/engine/config"
	"chorus/engine/connectors/registry"
	"chorus/engine/engine"
	"chorus/engine/provider"
	"chorus/engine/provider/bedrock"
	"chorus/engine/store"
)

// Run wires the whole service from configuration and serves until
// SIGINT or SIGTERM.
func Run() {
	configPath := flag.String("config", os.Getenv("CHORUS_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Engine] failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolver, err := buildSecretsResolver(ctx, cfg)
	if err != nil {
		log.Fatalf("[Engine] failed to initialize secrets resolver: %v", err)
	}
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		log.Fatalf("[Engine] failed to resolve secrets: %v", err)
	}

	llm, err := buildLLM(ctx, cfg)
	if err != nil {
		log.Fatalf("[Engine] failed to initialize LLM provider: %v", err)
	}
	defer llm.Close()

	if hc, ok := llm.(*provider.Client); ok && !hc.IsHealthy() {
		log.Printf("[Engine] warning: provider endpoint %s is not reachable", cfg.Provider.BaseURL)
	}

	backend := store.Open(cfg.Redis.URL)
	defer backend.Close()

	var memory *store.MemoryStore
	if cfg.Memory.Enabled {
		memory = store.NewMemoryStore(backend, cfg.Memory.MaxMessages,
			time.Duration(cfg.Memory.TTLSeconds)*time.Second)
	}
	var cache *store.CacheStore
	if cfg.Cache.Enabled {
		cache = store.NewCacheStore(backend, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}

	tools, err := registry.BuildEndpoints(cfg.Tools)
	if err != nil {
		log.Fatalf("[Engine] failed to build tool registry: %v", err)
	}
	defer tools.Close()

	agents, err := registry.BuildEndpoints(cfg.Agents)
	if err != nil {
		log.Fatalf("[Engine] failed to build agent registry: %v", err)
	}
	defer agents.Close()

	datasources, err := registry.BuildDataSources(ctx, cfg.DataSources)
	if err != nil {
		log.Fatalf("[Engine] failed to build datasource registry: %v", err)
	}
	defer datasources.Close()

	snapshots, err := buildSnapshots(ctx, cfg)
	if err != nil {
		log.Fatalf("[Engine] failed to initialize snapshot store: %v", err)
	}

	eng, err := engine.New(engine.Deps{
		LLM:           llm,
		Tools:         tools,
		Agents:        agents,
		DataSources:   datasources,
		Memory:        memory,
		Cache:         cache,
		Snapshots:     snapshots,
		MaxIterations: cfg.Engine.MaxIterations,
	})
	if err != nil {
		log.Fatalf("[Engine] failed to build engine: %v", err)
	}

	engine.RegisterMetrics()
	provider.RegisterMetrics()

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      New(eng, cfg.Server).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Printf("[Engine] listening on %s", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Engine] server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("[Engine] shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Engine] shutdown error: %v", err)
	}
}

// buildSecretsResolver picks Secrets Manager for ARN-shaped secret IDs
// and the environment otherwise. Returns nil when no secrets are
// referenced; ResolveSecrets never dereferences an unused resolver.
func buildSecretsResolver(ctx context.Context, cfg *config.Config) (config.SecretsResolver, error) {
	if cfg.Provider.APIKeySecretID == "" {
		return nil, nil
	}
	if strings.HasPrefix(cfg.Provider.APIKeySecretID, "arn:") {
		return config.NewAWSSecretsResolver(ctx, cfg.Provider.Bedrock.Region)
	}
	return &config.EnvSecretsResolver{}, nil
}

// buildLLM selects the Bedrock client when enabled, otherwise the HTTP
// provider detected from the configured base URL.
func buildLLM(ctx context.Context, cfg *config.Config) (provider.ChatClient, error) {
	if cfg.Provider.Bedrock.Enabled {
		return bedrock.New(ctx, cfg.Provider.Bedrock.Region, cfg.Provider.Bedrock.Model)
	}

	retry := provider.DefaultRetryConfig()
	if cfg.Provider.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Provider.MaxRetries
	}

	return provider.NewClient(provider.Config{
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		Model:       cfg.Provider.Model,
		Timeout:     time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
		Retry:       retry,
	})
}

func buildSnapshots(ctx context.Context, cfg *config.Config) (engine.SnapshotStore, error) {
	if cfg.Snapshots.PostgresDSN != "" {
		return engine.NewPostgresSnapshotStore(ctx, cfg.Snapshots.PostgresDSN)
	}
	return engine.NewInMemorySnapshotStore(), nil
}
