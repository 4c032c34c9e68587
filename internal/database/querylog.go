package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	slowQueryThreshold = 500 * time.Millisecond
	maxStatementLen    = 200
)

var queryLogLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

// parseQueryLogLevel defaults to warn, which reports errors and slow queries.
func parseQueryLogLevel(level string) gormlogger.LogLevel {
	if l, ok := queryLogLevels[level]; ok {
		return l
	}
	return gormlogger.Warn
}

// queryLogger routes GORM's logging through slog. At info every statement
// is written at debug, so it still needs a debug-enabled handler to show.
type queryLogger struct {
	log   *slog.Logger
	level gormlogger.LogLevel
}

func newQueryLogger(log *slog.Logger, level string) *queryLogger {
	return &queryLogger{
		log:   log.With(slog.String("component", "database")),
		level: parseQueryLogLevel(level),
	}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	q.printf(ctx, gormlogger.Info, slog.LevelInfo, msg, args)
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	q.printf(ctx, gormlogger.Warn, slog.LevelWarn, msg, args)
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	q.printf(ctx, gormlogger.Error, slog.LevelError, msg, args)
}

func (q *queryLogger) printf(ctx context.Context, min gormlogger.LogLevel, level slog.Level, msg string, args []any) {
	if q.level < min {
		return
	}
	q.log.Log(ctx, level, fmt.Sprintf(msg, args...))
}

// Trace reports failed statements, slow statements and, at info, all of
// them. A lookup that finds no row is not a failure.
func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && err.Error() != gorm.ErrRecordNotFound.Error()

	var (
		level slog.Level
		msg   string
	)
	switch {
	case failed && q.level >= gormlogger.Error:
		level, msg = slog.LevelError, "database error"
	case elapsed > slowQueryThreshold && q.level >= gormlogger.Warn:
		level, msg = slog.LevelWarn, "slow query"
	case q.level >= gormlogger.Info:
		level, msg = slog.LevelDebug, "database query"
	default:
		return
	}
	if !q.log.Enabled(ctx, level) {
		return
	}

	stmt, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", shortenStatement(stmt)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if failed {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	q.log.LogAttrs(ctx, level, msg, attrs...)
}

func shortenStatement(stmt string) string {
	if len(stmt) <= maxStatementLen {
		return stmt
	}
	return stmt[:maxStatementLen] + "... (truncated)"
}
