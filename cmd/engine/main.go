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

// Package main is the entry point for the Chorus orchestration engine.
//
// The engine accepts chat-style requests and orchestrates them across
// interchangeable backends: LLM providers, external agents, tool
// executors and data sources.
//
// Usage:
//
//	./engine -config config.yaml
//
// Environment Variables:
//
//	CHORUS_LISTEN_ADDR       - HTTP listen address (default: :8090)
//	CHORUS_PROVIDER_BASE_URL - LLM provider base URL
//	CHORUS_PROVIDER_API_KEY  - LLM provider API key
//	CHORUS_PROVIDER_MODEL    - LLM model name
//	CHORUS_REDIS_URL         - Redis URL for memory and cache (optional)
package main

import (
	"chorus/engine/server"
)

func main() {
	server.Run()
}
