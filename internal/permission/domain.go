package permission

import (
	"errors"
	"time"
)

var (
	// ErrMalformedPattern indicates a permission string that does not follow
	// the resource.action.scope convention.
	ErrMalformedPattern = errors.New("permission: malformed pattern")
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("permission: not found")
	// ErrMissingUser indicates a check without a user identity.
	ErrMissingUser = errors.New("permission: user id required")
)

// Permission is an immutable registered pattern. Priority is carried for
// audit ordering only; match results are boolean.
type Permission struct {
	ID          int64
	Pattern     string
	Resource    string
	Action      string
	Scope       string
	IsWildcard  bool
	Priority    int32
	Description string
	CreatedAt   time.Time
}

// RoleGrant is a role with the role-permission patterns attached directly
// to it plus the codes of the roles it inherits from.
type RoleGrant struct {
	Code     string
	Patterns []string
	Inherits []string
}

// UserRole is an active role assignment for a user. Assignments outside
// their validity window are filtered out by the store.
type UserRole struct {
	RoleID     int64
	RoleCode   string
	ValidFrom  time.Time
	ValidUntil *time.Time
	GrantedBy  int64
}

// UserGrant is a direct per-user grant or, when Granted is false, an
// explicit revocation of the exact pattern.
type UserGrant struct {
	Pattern      string
	Granted      bool
	GrantedBy    int64
	GrantReason  string
	ValidUntil   *time.Time
	ResourceType string
	ResourceID   string
}

// CheckContext carries the identity being checked plus optional request
// metadata forwarded to the audit sink.
type CheckContext struct {
	UserID     int64
	Roles      []string
	TenantID   int64
	ResourceID string
	RequestID  string
	IP         string
	UserAgent  string
}

// Decision sources reported in CheckResult and audit records.
const (
	SourceSuperAdmin = "super_admin"
	SourceCache      = "cache"
	SourceDirect     = "direct"
	SourceWildcard   = "wildcard"
	SourceDeny       = "explicit_deny"
	SourceNone       = "none"
	SourceError      = "error"
)

// CheckResult is the outcome of a permission check.
type CheckResult struct {
	Granted        bool          `json:"granted"`
	Source         string        `json:"source"`
	MatchedPattern string        `json:"matched_pattern,omitempty"`
	Duration       time.Duration `json:"-"`
	DurationMs     int64         `json:"duration_ms"`
}

// PermissionSet is the cached, fully expanded view of what a user holds.
// Denies are kept alongside so a cached set answers checks without another
// store round trip. The set is derived data only, never authoritative.
type PermissionSet struct {
	UserID     int64     `json:"user_id"`
	Patterns   []string  `json:"patterns"`
	Denies     []string  `json:"denies"`
	Version    int64     `json:"version"`
	ComputedAt time.Time `json:"computed_at"`
}

// Has reports whether the set contains a pattern matching required,
// honouring exact-pattern explicit denies first.
func (s PermissionSet) Has(required Pattern) (matched string, granted, denied bool) {
	want := required.String()
	for _, d := range s.Denies {
		if d == want {
			return d, false, true
		}
	}
	for _, raw := range s.Patterns {
		p, err := ParsePattern(raw)
		if err != nil {
			continue
		}
		if p.Matches(required) {
			return raw, true, false
		}
	}
	return "", false, false
}
