package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian-access/internal/permission"
)

// Repository provides PostgreSQL backed persistence for the decision audit
// trail. Rows are append-only; the application never updates or deletes
// them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one decision record.
func (r *Repository) Insert(ctx context.Context, rec permission.AuditRecord) error {
	occurredAt := rec.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permission_audits
			(user_id, pattern, resource, action, granted, source, matched_pattern,
			 tenant_id, duration_ms, request_id, ip, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, 0), $9,
			NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13)`,
		rec.UserID, rec.Pattern, rec.Resource, rec.Action, rec.Granted, rec.Source,
		rec.MatchedPattern, rec.TenantID, rec.DurationMs, rec.RequestID, rec.IP,
		rec.UserAgent, occurredAt)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Timeline returns decision rows matching the filters, newest first. The
// caller passes limit+1 to detect a following page.
func (r *Repository) Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filters.From.IsZero() {
		conditions = append(conditions, "occurred_at >= "+arg(filters.From))
	}
	if !filters.To.IsZero() {
		conditions = append(conditions, "occurred_at < "+arg(filters.To))
	}
	if filters.UserID != 0 {
		conditions = append(conditions, "user_id = "+arg(filters.UserID))
	}
	if filters.TenantID != 0 {
		conditions = append(conditions, "tenant_id = "+arg(filters.TenantID))
	}
	if filters.Pattern != "" {
		conditions = append(conditions, "pattern = "+arg(filters.Pattern))
	}
	if filters.Source != "" {
		conditions = append(conditions, "source = "+arg(filters.Source))
	}
	if filters.Granted != nil {
		conditions = append(conditions, "granted = "+arg(*filters.Granted))
	}
	query := `
		SELECT id, occurred_at, user_id, pattern, resource, action, granted, source,
		       COALESCE(matched_pattern, ''), COALESCE(tenant_id, 0), duration_ms,
		       COALESCE(request_id, ''), COALESCE(ip, ''), COALESCE(user_agent, '')
		FROM permission_audits`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT " + arg(limit)
	}
	if offset > 0 {
		query += " OFFSET " + arg(offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.ID, &row.OccurredAt, &row.UserID, &row.Pattern, &row.Resource,
			&row.Action, &row.Granted, &row.Source, &row.MatchedPattern, &row.TenantID,
			&row.DurationMs, &row.RequestID, &row.IP, &row.UserAgent); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
