package logging

import (
	"context"
	"log/slog"

	sqldblogger "github.com/simukti/sqldb-logger"
)

// SQLLogger forwards sqldb-logger events to slog. Driver level errors are
// logged as errors, everything else at debug.
type SQLLogger struct {
	Logger *slog.Logger
}

var _ sqldblogger.Logger = (*SQLLogger)(nil)

// NewSQLLogger returns an adapter bound to logger, or slog.Default when nil.
func NewSQLLogger(logger *slog.Logger) *SQLLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLLogger{Logger: logger.With("component", "sql")}
}

// Log implements sqldblogger.Logger.
func (l *SQLLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := make([]slog.Attr, 0, len(data))
	for key, value := range data {
		attrs = append(attrs, slog.Any(key, value))
	}

	slogLevel := slog.LevelDebug
	if level == sqldblogger.LevelError {
		slogLevel = slog.LevelError
	}
	logger.LogAttrs(ctx, slogLevel, msg, attrs...)
}
