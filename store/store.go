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

// Package store provides the key-value backend behind conversation
// memory and response caching. A Redis backend is preferred; when Redis
// is unconfigured or unreachable at startup the package degrades to an
// in-process map with the same TTL semantics. The selection happens
// exactly once, at startup, never per request.
package store

import (
	"context"
	"time"
)

// Store is a TTL-aware key-value backend. Implementations must be safe
// for concurrent use; they are the only shared mutable state between
// executions.
type Store interface {
	// Get returns the value for key. The second return is false when
	// the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key with a relative TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend connection or stops background
	// maintenance. The store must not be used after Close.
	Close() error
}
