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
	"encoding/json"
	"fmt"
	"time"

	"chorus/engine/shared/logger"
)

// approxCharsPerToken is the budget heuristic for GetContext. It
// deliberately overestimates for short messages rather than undercount.
const approxCharsPerToken = 4

// Message is one turn of a conversation.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MemoryStore keeps a bounded newest-first message list per user on top
// of a Store backend. The list is serialized as one JSON value per user
// so a single round trip loads or saves a whole conversation.
type MemoryStore struct {
	backend     Store
	maxMessages int
	ttl         time.Duration
	log         *logger.Logger
}

// NewMemoryStore wraps backend with conversation semantics.
// maxMessages bounds the per-user history; zero or negative disables
// the bound.
func NewMemoryStore(backend Store, maxMessages int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		backend:     backend,
		maxMessages: maxMessages,
		ttl:         ttl,
		log:         logger.New("memory"),
	}
}

func memoryKey(userID string) string {
	return "memory:" + userID
}

// AddMessage prepends one message to the user's history and trims the
// oldest entries past maxMessages.
func (m *MemoryStore) AddMessage(ctx context.Context, userID, role, content string) error {
	messages, err := m.load(ctx, userID)
	if err != nil {
		return err
	}

	msg := Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
	messages = append([]Message{msg}, messages...)
	if m.maxMessages > 0 && len(messages) > m.maxMessages {
		messages = messages[:m.maxMessages]
	}

	return m.save(ctx, userID, messages)
}

// GetContext returns the most recent messages in chronological order,
// bounded by an approximate token budget of 4 characters per token.
// The newest messages win when the budget is tight.
func (m *MemoryStore) GetContext(ctx context.Context, userID string, maxTokens int) ([]Message, error) {
	messages, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	budget := maxTokens * approxCharsPerToken
	var kept []Message
	used := 0
	for _, msg := range messages {
		cost := len(msg.Content)
		if maxTokens > 0 && used+cost > budget {
			break
		}
		kept = append(kept, msg)
		used += cost
	}

	// Stored newest-first, returned oldest-first
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept, nil
}

// Clear drops the user's history.
func (m *MemoryStore) Clear(ctx context.Context, userID string) error {
	return m.backend.Delete(ctx, memoryKey(userID))
}

func (m *MemoryStore) load(ctx context.Context, userID string) ([]Message, error) {
	raw, ok, err := m.backend.Get(ctx, memoryKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load memory for %s: %w", userID, err)
	}
	if !ok {
		return nil, nil
	}

	var messages []Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		// A corrupt history is dropped rather than poisoning every
		// later turn
		m.log.Warn(userID, "", "discarding unreadable conversation history", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, nil
	}
	return messages, nil
}

func (m *MemoryStore) save(ctx context.Context, userID string, messages []Message) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal memory for %s: %w", userID, err)
	}
	if err := m.backend.Set(ctx, memoryKey(userID), string(raw), m.ttl); err != nil {
		return fmt.Errorf("failed to save memory for %s: %w", userID, err)
	}
	return nil
}
