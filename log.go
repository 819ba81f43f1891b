package quarry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/syssam/quarry/dialect/sql"
)

// QueryLogger is the optional logging collaborator. The engine reports
// duration and row count on success and the failing SQL with its
// parameters on failure.
type QueryLogger interface {
	LogQuery(ctx context.Context, query string, params map[string]sql.Value, duration time.Duration, rows int)
	LogError(ctx context.Context, query string, params map[string]sql.Value, err error)
}

// SlogLogger is a QueryLogger backed by a *slog.Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a QueryLogger writing to l. A nil l uses the
// default logger.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

// LogQuery logs a completed statement.
func (s *SlogLogger) LogQuery(ctx context.Context, query string, params map[string]sql.Value, duration time.Duration, rows int) {
	s.l.InfoContext(ctx, "query executed",
		"query", query,
		"params", sql.ParamsKey(params),
		"duration", duration,
		"rows", rows,
	)
}

// LogError logs a failed statement.
func (s *SlogLogger) LogError(ctx context.Context, query string, params map[string]sql.Value, err error) {
	s.l.ErrorContext(ctx, "query failed",
		"query", query,
		"params", sql.ParamsKey(params),
		"error", err,
	)
}

// FileLogger is a QueryLogger appending JSON records to a log file.
type FileLogger struct {
	SlogLogger
	f *os.File
}

// NewFileLogger opens (or creates) path for appending and returns a
// file-backed query logger.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		SlogLogger: SlogLogger{l: slog.New(slog.NewJSONHandler(f, nil))},
		f:          f,
	}, nil
}

// Close closes the underlying log file.
func (f *FileLogger) Close() error { return f.f.Close() }
