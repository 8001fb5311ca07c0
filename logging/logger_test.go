package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/c0deZ3R0/go-docsync/errors"
)

func TestLogger(t *testing.T) {
	configs := []Config{
		{Level: "debug", Format: "text", Environment: EnvDevelopment, AddSource: true},
		{Level: "info", Format: "json", Environment: EnvProduction, AddSource: false},
	}

	for _, config := range configs {
		t.Run("Environment_"+config.Environment, func(t *testing.T) {
			logger := NewLogger(config)

			logger.Debug("Debug message", slog.String("key", "value"))
			logger.Info("Info message", slog.Int("count", 42))
			logger.Warn("Warning message", slog.Bool("enabled", true))

			testErr := errors.E(errors.Op("store.Put"), errors.KindStorage, fmt.Errorf("storage error"))
			logger.LogError(context.Background(), testErr, "Operation failed")

			childLogger := logger.WithComponent(Component("test"))
			childLogger.Info("Child logger message")
		})
	}
}

func TestNewLoggerWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(Config{Level: "warn", Format: "json", Environment: EnvProduction}, &buf)

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info message logged despite warn level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn message missing from output")
	}
}

func TestLogErrorIncludesStructuredError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(Config{Level: "debug", Format: "json", Environment: EnvProduction}, &buf)

	err := errors.E(errors.Op("gateway.Upsert"), errors.Component("remote"), errors.KindTransient, fmt.Errorf("timeout"))
	logger.LogError(context.Background(), err, "upsert failed")

	var entry map[string]any
	if uerr := json.Unmarshal(buf.Bytes(), &entry); uerr != nil {
		t.Fatalf("log output is not JSON: %v", uerr)
	}
	se, ok := entry["sync_error"].(map[string]any)
	if !ok {
		t.Fatalf("sync_error group missing: %v", entry)
	}
	if se["kind"] != "transient" {
		t.Errorf("kind = %v, want transient", se["kind"])
	}
	if se["retryable"] != true {
		t.Errorf("retryable = %v, want true", se["retryable"])
	}
}

func TestLogErrorToleratesNilError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(Config{Level: "debug", Format: "json", Environment: EnvProduction}, &buf)

	logger.LogError(context.Background(), nil, "operation failed without error detail")

	var typedNil *errors.SyncError
	logger.LogError(context.Background(), typedNil, "operation failed with typed nil")

	out := buf.String()
	if !strings.Contains(out, "operation failed without error detail") {
		t.Error("nil error message missing from output")
	}
	if !strings.Contains(out, "operation failed with typed nil") {
		t.Error("typed nil error message missing from output")
	}
}

func TestSyncErrorValuer(t *testing.T) {
	err := errors.E(errors.Op("sync"), errors.Component("engine"), errors.KindStorage, fmt.Errorf("underlying error"))
	valuer := SyncErrorValuer{SyncError: err.(*errors.SyncError)}
	logValue := valuer.LogValue()

	if logValue.Kind() != slog.KindGroup {
		t.Errorf("Expected group value, got %v", logValue.Kind())
	}
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_ADD_SOURCE", "true")

	config := GetConfigFromEnv()
	if config.Level != "warn" {
		t.Errorf("Level = %q, want warn", config.Level)
	}
	if config.Format != "json" {
		t.Errorf("Format = %q, want json", config.Format)
	}
	if config.Environment != EnvProduction {
		t.Errorf("Environment = %q, want production", config.Environment)
	}
	if config.AddSource {
		t.Error("production config must disable AddSource")
	}
}
