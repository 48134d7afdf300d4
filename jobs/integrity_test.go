package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hq/meridian-access/internal/permission"
)

type staticStore struct {
	roles map[string]permission.RoleGrant
	rules map[string][]string
	err   error
}

func (s *staticStore) ActiveUserRoles(ctx context.Context, userID int64, now time.Time) ([]permission.UserRole, error) {
	return nil, nil
}

func (s *staticStore) ActiveUserGrants(ctx context.Context, userID int64, now time.Time) ([]permission.UserGrant, error) {
	return nil, nil
}

func (s *staticStore) RoleGrants(ctx context.Context) (map[string]permission.RoleGrant, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.roles, nil
}

func (s *staticStore) InheritanceRules(ctx context.Context) (map[string][]string, error) {
	return s.rules, nil
}

func TestHasCycle(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {"a"},
	}
	next := func(code string) []string { return graph[code] }

	assert.True(t, hasCycle("a", next))
	assert.True(t, hasCycle("b", next))
	// d reaches the cycle but is not on it.
	assert.False(t, hasCycle("d", next))
	assert.False(t, hasCycle("z", next))
}

func TestRunIntegrityScanLogsWithoutFailing(t *testing.T) {
	store := &staticStore{
		roles: map[string]permission.RoleGrant{
			"a": {Code: "a", Inherits: []string{"b"}},
			"b": {Code: "b", Inherits: []string{"a"}},
			"c": {Code: "c", Inherits: []string{"ghost"}},
		},
		rules: map[string][]string{
			"x.read.own": {"y.read.own"},
			"y.read.own": {"x.read.own"},
		},
	}

	err := RunIntegrityScan(context.Background(), store, slog.Default(), nil)
	assert.NoError(t, err)
}

func TestRunIntegrityScanPropagatesStoreError(t *testing.T) {
	store := &staticStore{err: errors.New("db down")}
	err := RunIntegrityScan(context.Background(), store, slog.Default(), nil)
	assert.Error(t, err)
}

type captureWriter struct {
	records []permission.AuditRecord
	err     error
}

func (c *captureWriter) Record(ctx context.Context, rec permission.AuditRecord) error {
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, rec)
	return nil
}

func TestAuditDecisionHandler(t *testing.T) {
	writer := &captureWriter{}
	handler := NewAuditDecisionHandler(writer, nil)

	rec := permission.AuditRecord{UserID: 7, Pattern: "invoices.read.tenant", Granted: true, Source: "direct"}
	task, err := NewAuditDecisionTask(rec)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, writer.records, 1)
	assert.Equal(t, rec.UserID, writer.records[0].UserID)
	assert.Equal(t, rec.Pattern, writer.records[0].Pattern)
}

func TestAuditDecisionHandlerSkipsMalformedPayload(t *testing.T) {
	writer := &captureWriter{}
	handler := NewAuditDecisionHandler(writer, nil)

	task := asynq.NewTask(TaskTypeAuditDecision, []byte("not json"))
	err := handler(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, writer.records)
}

func TestIntegrityScanHandlerSkipsMalformedPayload(t *testing.T) {
	handler := NewIntegrityScanHandler(&staticStore{}, slog.Default(), nil)
	task := asynq.NewTask(TaskTypeIntegrityScan, []byte("not json"))
	err := handler(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIntegrityScanTaskPayload(t *testing.T) {
	at := time.Date(2026, 8, 31, 1, 45, 0, 0, time.UTC)
	task, err := NewIntegrityScanTask(at)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeIntegrityScan, task.Type())

	var payload IntegrityScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.True(t, payload.ScheduledFor.Equal(at))
}
