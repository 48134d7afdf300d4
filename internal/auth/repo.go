package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hq/meridian-access/internal/shared"
)

// Repository defines persistence needed by the auth service.
type Repository interface {
	FindToken(ctx context.Context, id string) (ServiceToken, error)
	CreateToken(ctx context.Context, token ServiceToken) error
	RevokeToken(ctx context.Context, id string) error
	UserRoleCodes(ctx context.Context, userID int64) ([]string, error)
}

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindToken loads a token by id.
func (r *PGRepository) FindToken(ctx context.Context, id string) (ServiceToken, error) {
	var token ServiceToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, secret_hash, user_id, created_at, revoked_at
		FROM service_tokens WHERE id = $1`, id).
		Scan(&token.ID, &token.Name, &token.SecretHash, &token.UserID, &token.CreatedAt, &token.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceToken{}, shared.ErrInvalidToken
	}
	return token, err
}

// CreateToken persists a newly issued token.
func (r *PGRepository) CreateToken(ctx context.Context, token ServiceToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_tokens (id, name, secret_hash, user_id)
		VALUES ($1, $2, $3, $4)`,
		token.ID, token.Name, token.SecretHash, token.UserID)
	return err
}

// RevokeToken marks the token revoked without deleting its issue history.
func (r *PGRepository) RevokeToken(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL`, id, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UserRoleCodes returns codes of roles the user currently holds, used to
// populate the principal for super admin shortcuts.
func (r *PGRepository) UserRoleCodes(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.code
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.valid_from <= NOW()
		  AND (ur.valid_until IS NULL OR ur.valid_until > NOW())
		ORDER BY ro.code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}
