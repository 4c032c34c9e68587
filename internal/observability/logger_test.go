package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoclip/internal/config"
)

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Info("test message", slog.String("key", "value"))

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, `"key":"value"`)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &parsed))
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf)
	logger.Info("test message", slog.String("key", "value"))

	assert.Contains(t, buf.String(), "key=value")
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name        string
		configLevel string
		logLevel    slog.Level
		shouldLog   bool
	}{
		{"debug logs at debug level", "debug", slog.LevelDebug, true},
		{"debug suppressed at info level", "info", slog.LevelDebug, false},
		{"info logs at info level", "info", slog.LevelInfo, true},
		{"info suppressed at warn level", "warn", slog.LevelInfo, false},
		{"error logs at error level", "error", slog.LevelError, true},
		{"unknown level falls back to info", "loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(config.LoggingConfig{Level: tt.configLevel, Format: "json"}, &buf)
			logger.Log(context.Background(), tt.logLevel, "probe")
			assert.Equal(t, tt.shouldLog, strings.Contains(buf.String(), "probe"))
		})
	}
}

func TestNewLogger_CustomTimeFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json", TimeFormat: "2006"}, &buf)
	logger.Info("tick")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	ts, ok := parsed["time"].(string)
	require.True(t, ok)
	assert.Len(t, ts, 4)
}

func TestNewLogger_RedactsPasswordField(t *testing.T) {
	type redisSettings struct {
		Addr     string
		Password string
	}

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	logger.Info("connecting", slog.Any("redis", redisSettings{Addr: "localhost:6379", Password: "hunter2"}))

	output := buf.String()
	assert.Contains(t, output, "localhost:6379")
	assert.NotContains(t, output, "hunter2")
}

func TestNewLogger_RedactsConfiguredValues(t *testing.T) {
	type request struct {
		SourceURL string
	}

	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "json", Redact: []string{"s3cr3t"}}
	logger := NewLoggerWithWriter(cfg, &buf)
	logger.Info("submitted", slog.Any("request", request{SourceURL: "https://example.com/v?key=s3cr3t"}))

	assert.NotContains(t, buf.String(), "s3cr3t")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf), "worker")
	logger.Info("hello")
	assert.Contains(t, buf.String(), `"component":"worker"`)
}

func TestWithJobID(t *testing.T) {
	var buf bytes.Buffer
	logger := WithJobID(NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf), "01HX")
	logger.Info("hello")
	assert.Contains(t, buf.String(), `"job_id":"01HX"`)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	WithError(base, errors.New("boom")).Info("failed")
	assert.Contains(t, buf.String(), `"error":"boom"`)

	assert.Same(t, base, WithError(base, nil))
}

func TestContextWithLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFromContext(ctx))
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
}

func TestContextWithRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestTimedOperation_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	var err error
	done := TimedOperation(context.Background(), logger, "persist", &err)
	done()

	assert.Contains(t, buf.String(), "operation completed")
	assert.Contains(t, buf.String(), `"operation":"persist"`)
}

func TestTimedOperation_Failure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	var err error
	done := TimedOperation(context.Background(), logger, "persist", &err)
	err = errors.New("disk full")
	done()

	assert.Contains(t, buf.String(), "operation failed")
	assert.Contains(t, buf.String(), "disk full")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestParseLevel_CaseInsensitive(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}
