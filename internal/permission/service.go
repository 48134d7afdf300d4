package permission

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service applies administrative mutations to the permission store. Every
// mutation invalidates the affected user's cache entries before returning,
// so a check issued right after a grant or revocation sees fresh data.
type Service struct {
	store  Mutator
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the mutation service.
func NewService(store Mutator, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// GrantPermission records a direct grant for the user. The pattern must be
// well formed and already registered.
func (s *Service) GrantPermission(ctx context.Context, userID int64, pattern string, opts GrantOptions) error {
	if userID == 0 {
		return ErrMissingUser
	}
	if _, err := ParsePattern(pattern); err != nil {
		return err
	}
	if err := s.store.GrantPermission(ctx, userID, pattern, opts); err != nil {
		return fmt.Errorf("permission: grant %s to user %d: %w", pattern, userID, err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// RevokePermission writes an explicit deny for the exact pattern. The deny
// overrides role-derived grants of the same pattern but leaves other
// wildcard patterns untouched.
func (s *Service) RevokePermission(ctx context.Context, userID int64, pattern string, revokedBy int64, reason string) error {
	if userID == 0 {
		return ErrMissingUser
	}
	if _, err := ParsePattern(pattern); err != nil {
		return err
	}
	if err := s.store.RevokePermission(ctx, userID, pattern, revokedBy, reason); err != nil {
		return fmt.Errorf("permission: revoke %s from user %d: %w", pattern, userID, err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// RemoveGrant deletes a direct grant or deny record entirely.
func (s *Service) RemoveGrant(ctx context.Context, userID int64, pattern string) error {
	if userID == 0 {
		return ErrMissingUser
	}
	if err := s.store.RemoveGrant(ctx, userID, pattern); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// AssignRole opens a role assignment window for the user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID, grantedBy int64, validFrom time.Time, validUntil *time.Time) error {
	if userID == 0 {
		return ErrMissingUser
	}
	if validFrom.IsZero() {
		validFrom = time.Now()
	}
	if err := s.store.AssignRole(ctx, userID, roleID, grantedBy, validFrom, validUntil); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// UnassignRole closes the user's active assignment of the role.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID int64) error {
	if userID == 0 {
		return ErrMissingUser
	}
	if err := s.store.UnassignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// RegisterPermission validates and upserts a permission definition.
func (s *Service) RegisterPermission(ctx context.Context, pattern string, priority int32, description string) (Permission, error) {
	parsed, err := ParsePattern(pattern)
	if err != nil {
		return Permission{}, err
	}
	return s.store.EnsurePermission(ctx, parsed, priority, description)
}

// invalidate clears the user's cache entries. A failed invalidation is
// logged loudly but does not roll back the mutation: staleness is bounded
// by the cache TTLs, while rolling back would silently drop the grant.
func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.logger.Error("cache invalidation failed, stale decisions possible until TTL",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}
}
