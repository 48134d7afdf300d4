package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for permission data.
// It implements both Store and Mutator.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveUserRoles returns role assignments active at now. The validity
// window is half-open: [valid_from, valid_until).
func (r *Repository) ActiveUserRoles(ctx context.Context, userID int64, now time.Time) ([]UserRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ur.role_id, ro.code, ur.valid_from, ur.valid_until, ur.granted_by
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		  AND ur.valid_from <= $2
		  AND (ur.valid_until IS NULL OR ur.valid_until > $2)
		ORDER BY ur.role_id`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.RoleID, &ur.RoleCode, &ur.ValidFrom, &ur.ValidUntil, &ur.GrantedBy); err != nil {
			return nil, err
		}
		assignments = append(assignments, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// ActiveUserGrants returns direct grants and revocations that have not
// expired.
func (r *Repository) ActiveUserGrants(ctx context.Context, userID int64, now time.Time) ([]UserGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.pattern, up.granted, up.granted_by, up.grant_reason,
		       up.valid_until, COALESCE(up.resource_type, ''), COALESCE(up.resource_id, '')
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.user_id = $1
		  AND (up.valid_until IS NULL OR up.valid_until > $2)
		ORDER BY up.id`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []UserGrant
	for rows.Next() {
		var g UserGrant
		if err := rows.Scan(&g.Pattern, &g.Granted, &g.GrantedBy, &g.GrantReason, &g.ValidUntil, &g.ResourceType, &g.ResourceID); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// RoleGrants loads every role with its direct patterns and inherited codes.
// RBAC configuration is small, so a full load keeps the resolver simple.
func (r *Repository) RoleGrants(ctx context.Context) (map[string]RoleGrant, error) {
	roleRows, err := r.pool.Query(ctx, `SELECT code, COALESCE(inherits, '{}') FROM roles ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer roleRows.Close()
	grants := make(map[string]RoleGrant)
	for roleRows.Next() {
		var g RoleGrant
		if err := roleRows.Scan(&g.Code, &g.Inherits); err != nil {
			return nil, err
		}
		grants[g.Code] = g
	}
	if err := roleRows.Err(); err != nil {
		return nil, err
	}

	permRows, err := r.pool.Query(ctx, `
		SELECT ro.code, p.pattern
		FROM role_permissions rp
		JOIN roles ro ON ro.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id
		ORDER BY ro.code, p.pattern`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var code, pattern string
		if err := permRows.Scan(&code, &pattern); err != nil {
			return nil, err
		}
		g := grants[code]
		g.Code = code
		g.Patterns = append(g.Patterns, pattern)
		grants[code] = g
	}
	if err := permRows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// InheritanceRules loads the permission inheritance table keyed by parent
// pattern.
func (r *Repository) InheritanceRules(ctx context.Context) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT parent.pattern, child.pattern
		FROM permission_inheritance pi
		JOIN permissions parent ON parent.id = pi.parent_permission_id
		JOIN permissions child ON child.id = pi.child_permission_id
		ORDER BY parent.pattern, child.pattern`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rules := make(map[string][]string)
	for rows.Next() {
		var parent, child string
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		rules[parent] = append(rules[parent], child)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// EnsurePermission upserts a permission row for the pattern.
func (r *Repository) EnsurePermission(ctx context.Context, p Pattern, priority int32, description string) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (pattern, resource, action, scope, is_wildcard, priority, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pattern) DO UPDATE SET priority = EXCLUDED.priority, description = EXCLUDED.description
		RETURNING id, pattern, resource, action, scope, is_wildcard, priority, description, created_at`,
		p.String(), p.Resource, p.Action, p.Scope, p.IsWildcard(), priority, description).
		Scan(&perm.ID, &perm.Pattern, &perm.Resource, &perm.Action, &perm.Scope, &perm.IsWildcard, &perm.Priority, &perm.Description, &perm.CreatedAt)
	if err != nil {
		return Permission{}, fmt.Errorf("permission: ensure %s: %w", p, err)
	}
	return perm, nil
}

// GrantPermission records a direct grant for the user.
func (r *Repository) GrantPermission(ctx context.Context, userID int64, pattern string, opts GrantOptions) error {
	return r.writeGrant(ctx, userID, pattern, true, opts)
}

// RevokePermission records an explicit deny for the exact pattern.
func (r *Repository) RevokePermission(ctx context.Context, userID int64, pattern string, revokedBy int64, reason string) error {
	return r.writeGrant(ctx, userID, pattern, false, GrantOptions{GrantedBy: revokedBy, GrantReason: reason})
}

func (r *Repository) writeGrant(ctx context.Context, userID int64, pattern string, granted bool, opts GrantOptions) error {
	var conditions []byte
	if opts.Conditions != nil {
		raw, err := json.Marshal(opts.Conditions)
		if err != nil {
			return fmt.Errorf("permission: marshal conditions: %w", err)
		}
		conditions = raw
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_permissions (user_id, permission_id, granted, granted_by, grant_reason, valid_until, resource_type, resource_id, conditions)
		SELECT $1, p.id, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9
		FROM permissions p WHERE p.pattern = $2
		ON CONFLICT (user_id, permission_id) DO UPDATE SET
			granted = EXCLUDED.granted,
			granted_by = EXCLUDED.granted_by,
			grant_reason = EXCLUDED.grant_reason,
			valid_until = EXCLUDED.valid_until,
			resource_type = EXCLUDED.resource_type,
			resource_id = EXCLUDED.resource_id,
			conditions = EXCLUDED.conditions`,
		userID, pattern, granted, opts.GrantedBy, opts.GrantReason, opts.ValidUntil, opts.ResourceType, opts.ResourceID, conditions)
	if err != nil {
		return fmt.Errorf("permission: write grant %s: %w", pattern, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pattern %s not registered", ErrNotFound, pattern)
	}
	return nil
}

// RemoveGrant deletes a direct grant or deny record entirely.
func (r *Repository) RemoveGrant(ctx context.Context, userID int64, pattern string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_permissions up
		USING permissions p
		WHERE p.id = up.permission_id AND up.user_id = $1 AND p.pattern = $2`, userID, pattern)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignRole opens a validity window for the role assignment.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID, grantedBy int64, validFrom time.Time, validUntil *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, valid_from, valid_until, granted_by)
		VALUES ($1, $2, $3, $4, $5)`, userID, roleID, validFrom, validUntil, grantedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("permission: role %d already assigned to user %d", roleID, userID)
		}
		return err
	}
	return nil
}

// UnassignRole closes the assignment window now instead of deleting, so the
// grant history stays intact.
func (r *Repository) UnassignRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles SET valid_until = NOW()
		WHERE user_id = $1 AND role_id = $2
		  AND (valid_until IS NULL OR valid_until > NOW())`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindPermission fetches a registered permission by pattern.
func (r *Repository) FindPermission(ctx context.Context, pattern string) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx, `
		SELECT id, pattern, resource, action, scope, is_wildcard, priority, description, created_at
		FROM permissions WHERE pattern = $1`, pattern).
		Scan(&perm.ID, &perm.Pattern, &perm.Resource, &perm.Action, &perm.Scope, &perm.IsWildcard, &perm.Priority, &perm.Description, &perm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions returns all registered permissions ordered by pattern.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, pattern, resource, action, scope, is_wildcard, priority, description, created_at
		FROM permissions ORDER BY pattern`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Pattern, &perm.Resource, &perm.Action, &perm.Scope, &perm.IsWildcard, &perm.Priority, &perm.Description, &perm.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// AddInheritance records that holding parent implies holding child.
func (r *Repository) AddInheritance(ctx context.Context, parentID, childID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permission_inheritance (parent_permission_id, child_permission_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`, parentID, childID)
	return err
}
