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
	"chorus/engine/shared/logger"
)

// Open selects the backend once at startup. With an empty URL the
// in-process store is used directly. With a URL, Redis is probed a
// single time; an unreachable server logs a warning and falls back to
// the in-process store rather than failing startup, and the choice is
// never revisited per request.
func Open(redisURL string) Store {
	log := logger.New("store")

	if redisURL == "" {
		log.Info("", "", "using in-memory store, no Redis configured", nil)
		return NewInMemStore()
	}

	rs, err := NewRedisStore(redisURL)
	if err != nil {
		log.Warn("", "", "Redis unreachable, falling back to in-memory store", map[string]interface{}{
			"error": err.Error(),
		})
		return NewInMemStore()
	}

	log.Info("", "", "connected to Redis", nil)
	return rs
}
