package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-hq/meridian-access/internal/jobs"
	"github.com/meridian-hq/meridian-access/internal/permission"
)

const (
	// TaskTypeIntegrityScan triggers the nightly inheritance integrity scan.
	TaskTypeIntegrityScan = "rbac:integrity"
)

// IntegrityScanPayload carries scheduling metadata.
type IntegrityScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityScanTask constructs an Asynq task for the integrity scan.
func NewIntegrityScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// NewIntegrityScanHandler returns the worker-side handler that walks the
// role and permission inheritance graphs looking for cycles and dangling
// references. Findings are logged, never repaired automatically.
func NewIntegrityScanHandler(store permission.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IntegrityScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("rbac_integrity")
		return tracker.End(RunIntegrityScan(ctx, store, logger, metrics))
	}
}

// RunIntegrityScan performs one scan pass. Exposed so the worker binary can
// run it on demand.
func RunIntegrityScan(ctx context.Context, store permission.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) error {
	roles, err := store.RoleGrants(ctx)
	if err != nil {
		return fmt.Errorf("jobs: load roles: %w", err)
	}
	rules, err := store.InheritanceRules(ctx)
	if err != nil {
		return fmt.Errorf("jobs: load inheritance rules: %w", err)
	}

	findings := 0
	for code, role := range roles {
		for _, parent := range role.Inherits {
			if _, ok := roles[parent]; !ok {
				findings++
				metrics.AddFindings("dangling_parent", 1)
				logger.Warn("role inherits unknown parent",
					slog.String("role", code),
					slog.String("parent", parent))
			}
		}
		if hasCycle(code, func(c string) []string {
			if r, ok := roles[c]; ok {
				return r.Inherits
			}
			return nil
		}) {
			findings++
			metrics.AddFindings("role_cycle", 1)
			logger.Warn("role inheritance cycle", slog.String("role", code))
		}
	}
	for parent := range rules {
		if hasCycle(parent, func(c string) []string { return rules[c] }) {
			findings++
			metrics.AddFindings("permission_cycle", 1)
			logger.Warn("permission inheritance cycle", slog.String("parent", parent))
		}
	}

	logger.Info("integrity scan completed",
		slog.Int("roles", len(roles)),
		slog.Int("inheritance_rules", len(rules)),
		slog.Int("findings", findings))
	return nil
}

// hasCycle reports whether start is reachable from its own successors.
func hasCycle(start string, next func(string) []string) bool {
	visited := map[string]bool{}
	queue := append([]string(nil), next(start)...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == start {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		queue = append(queue, next(current)...)
	}
	return false
}
