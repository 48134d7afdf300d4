package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian-access/internal/platform/db"
	"github.com/meridian-hq/meridian-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, code, name, description, level, tenant_id, COALESCE(inherits, '{}'), created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.Level, &role.TenantID, &role.Inherits, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles ordered by level descending, then code.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY level DESC, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// GetRoleByCode fetches a role by its stable code.
func (r *Repository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO roles (code, name, description, level, tenant_id, inherits)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+roleColumns,
		role.Code, role.Name, role.Description, role.Level, role.TenantID, role.Inherits))
}

// UpdateRole updates a role's mutable attributes. The code is stable and
// cannot change.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	updated, err := scanRole(r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, level = $4, inherits = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.Level, role.Inherits))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return updated, err
}

// DeleteRole removes a role by ID.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountActiveHolders counts users currently holding the role.
func (r *Repository) CountActiveHolders(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_roles
		WHERE role_id = $1 AND valid_from <= NOW()
		  AND (valid_until IS NULL OR valid_until > NOW())`, id).Scan(&count)
	return count, err
}

// SetRolePermissions replaces the role's permission assignments.
func (r *Repository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

// UsersWithRole returns ids of users currently holding the role, used to
// invalidate their cached permission sets after role edits.
func (r *Repository) UsersWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM user_roles
		WHERE role_id = $1 AND valid_from <= NOW()
		  AND (valid_until IS NULL OR valid_until > NOW())`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
