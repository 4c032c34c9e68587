// Package observability builds the process logger and carries per-request
// and per-job loggers through contexts.
package observability

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/masq"

	"github.com/jmylchreest/autoclip/internal/config"
)

type ctxKey int

const (
	requestIDCtxKey ctxKey = iota
	loggerCtxKey
)

// credentialParam matches credentials commonly embedded in source URLs.
var credentialParam = regexp.MustCompile(`(?i)(token|api_key|apikey|sig|signature)=`)

// NewLoggerWithWriter returns a logger writing JSON (or text, when
// cfg.Format is "text") to w. Struct fields named Password or Token,
// strings carrying credential query parameters and any value containing
// one of cfg.Redact are masked before they reach the handler.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	mask := masq.New(maskOptions(cfg.Redact)...)
	layout := cfg.TimeFormat

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 || a.Key != slog.TimeKey {
				return mask(groups, a)
			}
			if t, ok := a.Value.Any().(time.Time); ok && layout != "" {
				a.Value = slog.StringValue(t.Format(layout))
			}
			return a
		},
	}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func maskOptions(values []string) []masq.Option {
	opts := []masq.Option{
		masq.WithFieldName("Password"),
		masq.WithFieldName("Token"),
		masq.WithRegex(credentialParam),
	}
	for _, v := range values {
		if v != "" {
			opts = append(opts, masq.WithContain(v))
		}
	}
	return opts
}

// parseLevel accepts slog's level names in any case; anything else is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithComponent tags records with the subsystem that emitted them.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithJobID tags records with the job being processed.
func WithJobID(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With(slog.String("job_id", jobID))
}

// WithError returns logger unchanged when err is nil.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}

// LoggerFromContext returns the logger stored by ContextWithLogger, or
// slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// TimedOperation logs the start of operation at debug and returns a func
// that logs its outcome with the elapsed time. When errPtr points at a
// non-nil error by then, the operation is logged as failed.
//
//	done := observability.TimedOperation(ctx, logger, "recover_jobs", &err)
//	defer done()
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	logger = logger.With(slog.String("operation", operation))
	logger.DebugContext(ctx, "operation started")

	return func() {
		elapsed := slog.Duration("duration", time.Since(start))
		if errPtr != nil && *errPtr != nil {
			WithError(logger, *errPtr).ErrorContext(ctx, "operation failed", elapsed)
			return
		}
		logger.InfoContext(ctx, "operation completed", elapsed)
	}
}
