package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	apperrors "github.com/grabfrom/core/internal/errors"
)

func TestLogger_BasicLogging(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "test")

	ctx := context.Background()
	log.Info(ctx, "test message", map[string]interface{}{
		"key": "value",
	})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Errorf("expected level info, got %s", entry.Level)
	}
	if entry.Message != "test message" {
		t.Errorf("expected message 'test message', got %s", entry.Message)
	}
	if entry.Component != "test" {
		t.Errorf("expected component test, got %s", entry.Component)
	}
	if entry.Fields["key"] != "value" {
		t.Errorf("expected field key=value, got %v", entry.Fields["key"])
	}
}

func TestLogger_RequestIDPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "")

	ctx := apperrors.WithRequestID(context.Background(), "test-request-id")
	log.Info(ctx, "test message")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry.RequestID != "test-request-id" {
		t.Errorf("expected request_id 'test-request-id', got %s", entry.RequestID)
	}
}

func TestLogger_TaskIDPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "worker")

	ctx := apperrors.WithTaskID(context.Background(), "a1b2c3d4")
	log.Info(ctx, "stage changed")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry.TaskID != "a1b2c3d4" {
		t.Errorf("expected task_id 'a1b2c3d4', got %s", entry.TaskID)
	}
}

func TestLogger_LogLevels(t *testing.T) {
	tests := []struct {
		minLevel     Level
		logLevel     string
		shouldOutput bool
	}{
		{LevelInfo, "debug", false},
		{LevelInfo, "info", true},
		{LevelWarn, "info", false},
		{LevelWarn, "warn", true},
		{LevelError, "warn", false},
		{LevelError, "error", true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		log := New(&buf, tt.minLevel, "")

		ctx := context.Background()
		switch tt.logLevel {
		case "debug":
			log.Debug(ctx, "test")
		case "info":
			log.Info(ctx, "test")
		case "warn":
			log.Warn(ctx, "test")
		case "error":
			log.Error(ctx, "test", nil)
		}

		hasOutput := buf.Len() > 0
		if hasOutput != tt.shouldOutput {
			t.Errorf("minLevel=%s, logLevel=%s: expected output=%v, got=%v",
				tt.minLevel, tt.logLevel, tt.shouldOutput, hasOutput)
		}
	}
}

func TestLogger_ErrorDetails(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, "")

	err := apperrors.FetchError("connection reset by peer")
	log.Error(context.Background(), "fetch failed", err)

	var entry LogEntry
	if jsonErr := json.Unmarshal(buf.Bytes(), &entry); jsonErr != nil {
		t.Fatalf("failed to parse log entry: %v", jsonErr)
	}

	if entry.Error == nil {
		t.Fatal("expected error details in entry")
	}
	if entry.Error.Code != apperrors.CodeFetchError {
		t.Errorf("expected code %s, got %s", apperrors.CodeFetchError, entry.Error.Code)
	}
	if entry.Error.Category != "external" {
		t.Errorf("expected category external, got %s", entry.Error.Category)
	}
	if entry.Error.StackTrace == "" {
		t.Error("expected stack trace on error-level entries")
	}
	if entry.Caller == "" {
		t.Error("expected caller on error-level entries")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"unknown", LevelInfo}, // default
		{"", LevelInfo},        // default
	}

	for _, tt := range tests {
		result := ParseLevel(tt.input)
		if result != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}
