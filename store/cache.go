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

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CacheStore memoizes computed responses on top of a Store backend.
// There is no cross-process locking: concurrent misses for the same key
// may both compute and the last writer wins, which is acceptable because
// cached values are idempotent re-derivations of the same answer.
type CacheStore struct {
	backend Store
	ttl     time.Duration
}

// NewCacheStore wraps backend with a default TTL applied by GetOrSet
// when the caller passes zero.
func NewCacheStore(backend Store, ttl time.Duration) *CacheStore {
	return &CacheStore{backend: backend, ttl: ttl}
}

func cacheKey(key string) string {
	return "cache:" + key
}

// CacheKey derives a stable key from request parts. Parts are normalized
// so trivially different spellings of the same request share an entry.
func CacheKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(part))))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	return c.backend.Get(ctx, cacheKey(key))
}

func (c *CacheStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.backend.Set(ctx, cacheKey(key), value, ttl)
}

func (c *CacheStore) Delete(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, cacheKey(key))
}

// GetOrSet returns the cached value for key, computing and storing it on
// a miss. compute must be re-entrant safe.
func (c *CacheStore) GetOrSet(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (string, error)) (string, bool, error) {
	if val, ok, err := c.Get(ctx, key); err != nil {
		return "", false, err
	} else if ok {
		return val, true, nil
	}

	val, err := compute(ctx)
	if err != nil {
		return "", false, err
	}
	if err := c.Set(ctx, key, val, ttl); err != nil {
		return "", false, err
	}
	return val, false, nil
}
