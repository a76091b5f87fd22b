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
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging with per-execution correlation
type Logger struct {
	Component string
	Instance  string
}

// LogEntry is a single structured log line. Every entry carries the user
// and execution identifiers so one orchestration run can be traced across
// components.
type LogEntry struct {
	Timestamp   string                 `json:"timestamp"`
	Level       LogLevel               `json:"level"`
	Component   string                 `json:"component"`
	Instance    string                 `json:"instance"`
	UserID      string                 `json:"user_id,omitempty"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Message     string                 `json:"message"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the given component
func New(component string) *Logger {
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		if host, err := os.Hostname(); err == nil {
			instance = host
		} else {
			instance = "unknown"
		}
	}

	return &Logger{
		Component: component,
		Instance:  instance,
	}
}

// Log writes one structured entry to stdout
func (l *Logger) Log(level LogLevel, userID, executionID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Level:       level,
		Component:   l.Component,
		Instance:    l.Instance,
		UserID:      userID,
		ExecutionID: executionID,
		Message:     message,
		Fields:      fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fall back to plain text if JSON marshaling fails
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(userID, executionID, message string, fields map[string]interface{}) {
	l.Log(INFO, userID, executionID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(userID, executionID, message string, fields map[string]interface{}) {
	l.Log(ERROR, userID, executionID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(userID, executionID, message string, fields map[string]interface{}) {
	l.Log(WARN, userID, executionID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(userID, executionID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, userID, executionID, message, fields)
}

// ErrorWithErr logs an error message with the error attached as a field
func (l *Logger) ErrorWithErr(userID, executionID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(userID, executionID, message, fields)
}

// InfoWithDuration logs an info message with a duration field in milliseconds
func (l *Logger) InfoWithDuration(userID, executionID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(userID, executionID, message, fields)
}
