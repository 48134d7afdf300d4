package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-hq/meridian-access/internal/jobs"
	"github.com/meridian-hq/meridian-access/internal/permission"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditDecision is the task type for persisting decision records.
	TaskTypeAuditDecision = "audit:decision"
)

// NewAuditDecisionTask constructs an Asynq task carrying one decision record.
func NewAuditDecisionTask(rec permission.AuditRecord) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditDecision, data, asynq.Queue(QueueDefault)), nil
}

// DecisionWriter persists a decision record. Satisfied by audit.StoreSink.
type DecisionWriter interface {
	Record(ctx context.Context, rec permission.AuditRecord) error
}

// NewAuditDecisionHandler returns the worker-side handler that drains
// audit:decision tasks into the given writer.
func NewAuditDecisionHandler(writer DecisionWriter, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var rec permission.AuditRecord
		if err := json.Unmarshal(t.Payload(), &rec); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("audit_decision")
		return tracker.End(writer.Record(ctx, rec))
	}
}

// AuditEnqueuer pushes decision records onto the task queue. It implements
// the resolver's sink contract; enqueue failures fall through to the
// fallback sink so records survive a queue outage.
type AuditEnqueuer struct {
	client   *asynq.Client
	fallback DecisionWriter
	logger   *slog.Logger
}

// NewAuditEnqueuer constructs an enqueuer with an optional fallback sink.
func NewAuditEnqueuer(client *asynq.Client, fallback DecisionWriter, logger *slog.Logger) *AuditEnqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditEnqueuer{client: client, fallback: fallback, logger: logger}
}

// Record enqueues the decision record for asynchronous persistence.
func (e *AuditEnqueuer) Record(ctx context.Context, rec permission.AuditRecord) error {
	task, err := NewAuditDecisionTask(rec)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		e.logger.Warn("audit enqueue failed, writing directly",
			slog.Int64("user_id", rec.UserID),
			slog.Any("error", err))
		if e.fallback != nil {
			return e.fallback.Record(ctx, rec)
		}
		return err
	}
	return nil
}
