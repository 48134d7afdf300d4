package permission

import (
	"context"
	"time"
)

// Store is the read model the resolver depends on. It is the single source
// of truth; cache entries are derived from it and never consulted as
// authority. Implementations filter validity windows server-side so callers
// only ever see grants active at the supplied instant.
type Store interface {
	// ActiveUserRoles returns role assignments whose validity window
	// contains now.
	ActiveUserRoles(ctx context.Context, userID int64, now time.Time) ([]UserRole, error)
	// ActiveUserGrants returns unexpired direct grants and revocations.
	ActiveUserGrants(ctx context.Context, userID int64, now time.Time) ([]UserGrant, error)
	// RoleGrants returns every role definition keyed by code, with direct
	// patterns and inherited role codes.
	RoleGrants(ctx context.Context) (map[string]RoleGrant, error)
	// InheritanceRules returns the permission inheritance table as parent
	// pattern to child patterns.
	InheritanceRules(ctx context.Context) (map[string][]string, error)
}

// Mutator is the write model used by the admin service. Every mutation must
// be followed by cache invalidation for the affected user.
type Mutator interface {
	EnsurePermission(ctx context.Context, p Pattern, priority int32, description string) (Permission, error)
	GrantPermission(ctx context.Context, userID int64, pattern string, opts GrantOptions) error
	RevokePermission(ctx context.Context, userID int64, pattern string, revokedBy int64, reason string) error
	RemoveGrant(ctx context.Context, userID int64, pattern string) error
	AssignRole(ctx context.Context, userID, roleID, grantedBy int64, validFrom time.Time, validUntil *time.Time) error
	UnassignRole(ctx context.Context, userID, roleID int64) error
}

// GrantOptions carries the optional attributes of a direct grant.
type GrantOptions struct {
	GrantedBy    int64
	GrantReason  string
	ValidUntil   *time.Time
	ResourceType string
	ResourceID   string
	Conditions   map[string]any
}
