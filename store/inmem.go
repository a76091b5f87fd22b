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
	"sync"
	"time"
)

// memEntry is one value with an absolute expiry. A zero expiry never
// expires.
type memEntry struct {
	value     string
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemStore is the in-process fallback backend. Expired entries are
// dropped lazily on read and swept periodically by a janitor goroutine.
type InMemStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	done    chan struct{}
	once    sync.Once
}

var _ Store = (*InMemStore)(nil)

// NewInMemStore returns a ready store and starts its sweep loop.
func NewInMemStore() *InMemStore {
	s := &InMemStore{
		entries: make(map[string]memEntry),
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *InMemStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if entry.expired(time.Now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *InMemStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *InMemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *InMemStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *InMemStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, entry := range s.entries {
				if entry.expired(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
