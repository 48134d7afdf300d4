package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrCyclicInheritance indicates a role edit that would let a role
	// inherit itself, directly or transitively.
	ErrCyclicInheritance = errors.New("roles: cyclic inheritance")
	// ErrRoleInUse indicates a delete attempt while users hold the role.
	ErrRoleInUse = errors.New("roles: role still assigned to users")
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, code string) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountActiveHolders(ctx context.Context, id int64) (int64, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	UsersWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// CacheInvalidator clears a user's cached permission data after role edits.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole validates and inserts a new role.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	role.Code = strings.TrimSpace(role.Code)
	role.Name = strings.TrimSpace(role.Name)
	if role.Code == "" {
		return Role{}, errors.New("roles: code required")
	}
	if role.Name == "" {
		return Role{}, errors.New("roles: name required")
	}
	if err := s.checkAcyclic(ctx, role.Code, role.Inherits); err != nil {
		return Role{}, err
	}
	return s.repo.CreateRole(ctx, role)
}

// UpdateRole validates and applies role edits, then invalidates every
// current holder so their cached sets rebuild with the new definition.
func (s *Service) UpdateRole(ctx context.Context, role Role) (Role, error) {
	current, err := s.repo.GetRole(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	if err := s.checkAcyclic(ctx, current.Code, role.Inherits); err != nil {
		return Role{}, err
	}
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.invalidateHolders(ctx, role.ID)
	return updated, nil
}

// DeleteRole removes a role, refusing while any user still holds it.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	holders, err := s.repo.CountActiveHolders(ctx, id)
	if err != nil {
		return err
	}
	if holders > 0 {
		return fmt.Errorf("%w: %d active holders", ErrRoleInUse, holders)
	}
	return s.repo.DeleteRole(ctx, id)
}

// SetRolePermissions replaces the role's permission assignments and
// invalidates every current holder.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := s.repo.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.invalidateHolders(ctx, roleID)
	return nil
}

// checkAcyclic walks the inheritance graph starting from the proposed
// parents and fails if it ever reaches code again.
func (s *Service) checkAcyclic(ctx context.Context, code string, inherits []string) error {
	visited := map[string]struct{}{}
	worklist := append([]string(nil), inherits...)
	for len(worklist) > 0 {
		current := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if current == code {
			return fmt.Errorf("%w: %s reachable from its own parents", ErrCyclicInheritance, code)
		}
		if _, ok := visited[current]; ok {
			continue
		}
		visited[current] = struct{}{}
		parent, err := s.repo.GetRoleByCode(ctx, current)
		if err != nil {
			// Unknown parents are tolerated here; the hierarchy walk logs
			// them at resolve time.
			continue
		}
		worklist = append(worklist, parent.Inherits...)
	}
	return nil
}

func (s *Service) invalidateHolders(ctx context.Context, roleID int64) {
	if s.cache == nil {
		return
	}
	users, err := s.repo.UsersWithRole(ctx, roleID)
	if err != nil {
		s.logger.Error("list role holders for invalidation", slog.Int64("role_id", roleID), slog.Any("error", err))
		return
	}
	for _, userID := range users {
		if err := s.cache.InvalidateUser(ctx, userID); err != nil {
			s.logger.Error("cache invalidation failed, stale decisions possible until TTL",
				slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
}
