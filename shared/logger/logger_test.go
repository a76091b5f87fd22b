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

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func captureEntry(t *testing.T, logFn func()) LogEntry {
	t.Helper()

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	logFn()

	output := buf.String()
	jsonStart := strings.Index(output, "{")
	if jsonStart == -1 {
		t.Fatalf("No JSON found in log output: %q", output)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(output[jsonStart:])), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log: %v\nOutput: %s", err, output)
	}
	return entry
}

func TestNew(t *testing.T) {
	t.Setenv("INSTANCE_ID", "instance-123")
	l := New("engine")
	if l.Component != "engine" {
		t.Errorf("Expected component engine, got %s", l.Component)
	}
	if l.Instance != "instance-123" {
		t.Errorf("Expected instance instance-123, got %s", l.Instance)
	}
}

func TestNewFallsBackToHostname(t *testing.T) {
	t.Setenv("INSTANCE_ID", "")
	l := New("engine")
	if l.Instance == "" {
		t.Error("Expected instance to be set from hostname")
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(*Logger, string, string, string, map[string]interface{})
		level   LogLevel
	}{
		{"Info log", (*Logger).Info, INFO},
		{"Error log", (*Logger).Error, ERROR},
		{"Warn log", (*Logger).Warn, WARN},
		{"Debug log", (*Logger).Debug, DEBUG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New("test-component")
			entry := captureEntry(t, func() {
				tt.logFunc(l, "user-123", "exec-456", "test message", map[string]interface{}{"key": "value"})
			})

			if entry.Level != tt.level {
				t.Errorf("Expected level %s, got %s", tt.level, entry.Level)
			}
			if entry.Message != "test message" {
				t.Errorf("Expected message 'test message', got %q", entry.Message)
			}
			if entry.UserID != "user-123" {
				t.Errorf("Expected user ID user-123, got %q", entry.UserID)
			}
			if entry.ExecutionID != "exec-456" {
				t.Errorf("Expected execution ID exec-456, got %q", entry.ExecutionID)
			}
			if entry.Component != "test-component" {
				t.Errorf("Expected component test-component, got %q", entry.Component)
			}
			if entry.Fields["key"] != "value" {
				t.Errorf("Expected field key=value, got %v", entry.Fields["key"])
			}
			if _, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err != nil {
				t.Errorf("Invalid timestamp format: %s", entry.Timestamp)
			}
		})
	}
}

func TestInfoWithDuration(t *testing.T) {
	l := New("test-component")
	entry := captureEntry(t, func() {
		l.InfoWithDuration("user-123", "exec-456", "request completed", 123.45, map[string]interface{}{
			"endpoint": "/v1/orchestrate",
		})
	})

	if entry.Level != INFO {
		t.Errorf("Expected INFO level, got %s", entry.Level)
	}
	if entry.Fields["duration_ms"] != 123.45 {
		t.Errorf("Expected duration_ms 123.45, got %v", entry.Fields["duration_ms"])
	}
	if entry.Fields["endpoint"] != "/v1/orchestrate" {
		t.Errorf("Expected endpoint field preserved, got %v", entry.Fields["endpoint"])
	}
}

func TestErrorWithErr(t *testing.T) {
	l := New("test-component")
	entry := captureEntry(t, func() {
		l.ErrorWithErr("user-123", "exec-456", "request failed", &testError{msg: "connection refused"}, nil)
	})

	if entry.Level != ERROR {
		t.Errorf("Expected ERROR level, got %s", entry.Level)
	}
	if entry.Fields["error"] != "connection refused" {
		t.Errorf("Expected error field, got %v", entry.Fields["error"])
	}
}

func TestJSONMarshalError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	l := New("test-component")

	// Channels cannot be marshaled to JSON
	l.Info("user-123", "exec-456", "test", map[string]interface{}{"ch": make(chan int)})

	if !strings.Contains(buf.String(), "failed to marshal log entry") {
		t.Error("Expected error message about JSON marshaling failure")
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

func BenchmarkLog(b *testing.B) {
	l := New("benchmark-component")
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	fields := map[string]interface{}{
		"intent":    "data_query",
		"iteration": 3,
		"cached":    false,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Info("user-123", "exec-456", "tick", fields)
	}
}
