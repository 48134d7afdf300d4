package audit

import (
	"context"
	"log/slog"

	"github.com/meridian-hq/meridian-access/internal/permission"
)

// Writer persists one decision record.
type Writer interface {
	Insert(ctx context.Context, rec permission.AuditRecord) error
}

// StoreSink writes decision records straight to PostgreSQL. Used when no
// task queue is configured, or by the worker that drains the queue.
type StoreSink struct {
	writer Writer
	logger *slog.Logger
}

// NewStoreSink creates a sink backed by the given writer.
func NewStoreSink(writer Writer, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{writer: writer, logger: logger}
}

// Record persists the decision. Failures are logged, never propagated to
// the caller's request path.
func (s *StoreSink) Record(ctx context.Context, rec permission.AuditRecord) error {
	if err := s.writer.Insert(ctx, rec); err != nil {
		s.logger.Error("audit record dropped",
			slog.Int64("user_id", rec.UserID),
			slog.String("pattern", rec.Pattern),
			slog.Any("error", err))
		return err
	}
	return nil
}

// LogSink emits decision records as structured log lines. It is the
// fallback when neither PostgreSQL nor the task queue is reachable.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Record logs the decision at info level.
func (s *LogSink) Record(_ context.Context, rec permission.AuditRecord) error {
	s.logger.Info("permission decision",
		slog.Int64("user_id", rec.UserID),
		slog.String("pattern", rec.Pattern),
		slog.Bool("granted", rec.Granted),
		slog.String("source", rec.Source),
		slog.String("matched", rec.MatchedPattern),
		slog.Int64("tenant_id", rec.TenantID),
		slog.Int64("duration_ms", rec.DurationMs))
	return nil
}
