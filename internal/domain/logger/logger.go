package logger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

type QueryLogger struct {
	Operation string
	Query     string
	Args      []any
	StartTime time.Time
}

func NewQueryLogger(operation, query string, args ...any) *QueryLogger {
	return &QueryLogger{
		Operation: operation,
		Query:     query,
		Args:      args,
		StartTime: time.Now(),
	}
}

func (l *QueryLogger) Log(err error, rowsAffected int64) {
	duration := time.Since(l.StartTime)

	if err != nil {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", l.Operation),
			slog.String("query", l.Query),
			slog.Any("args", l.Args),
			slog.Duration("took", duration),
			slog.Any("error", err),
		)
		return
	}

	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("operation", l.Operation),
		slog.String("query", l.Query),
		slog.Duration("took", duration),
		slog.Int64("affected_rows", rowsAffected),
	)
}

// QueryHook logs every bun query. Queries slower than Slow are logged as
// warnings; a zero Slow disables the check.
type QueryHook struct {
	Slow time.Duration
}

var _ bun.QueryHook = (*QueryHook)(nil)

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime)

	// no rows is an expected outcome for lookups
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		slog.Error("Query failed",
			slog.String("type", "db"),
			slog.String("operation", event.Operation()),
			slog.String("query", event.Query),
			slog.Duration("took", took),
			slog.Any("error", event.Err))
		return
	}

	if h.Slow > 0 && took > h.Slow {
		slog.Warn("Slow query",
			slog.String("type", "db"),
			slog.String("operation", event.Operation()),
			slog.String("query", event.Query),
			slog.Duration("took", took))
		return
	}

	slog.Debug("Query executed",
		slog.String("type", "db"),
		slog.String("operation", event.Operation()),
		slog.Duration("took", took))
}
