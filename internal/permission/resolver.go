package permission

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// AuditRecord captures one decision for the append-only audit trail.
type AuditRecord struct {
	UserID         int64     `json:"user_id"`
	Pattern        string    `json:"pattern"`
	Resource       string    `json:"resource"`
	Action         string    `json:"action"`
	Granted        bool      `json:"granted"`
	Source         string    `json:"source"`
	MatchedPattern string    `json:"matched_pattern,omitempty"`
	TenantID       int64     `json:"tenant_id,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	RequestID      string    `json:"request_id,omitempty"`
	IP             string    `json:"ip,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AuditSink receives decision records. Implementations must be safe for
// concurrent use; failures are the sink's problem to report, never the
// resolver's to propagate.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// Metrics is the observability hook the resolver reports into.
type Metrics interface {
	ObserveDecision(source string, granted bool, d time.Duration)
	CacheEvent(tier string, hit bool)
}

// Resolver is the permission decision engine. All collaborators are
// injected; there is no package-level state.
type Resolver struct {
	store     Store
	cache     *Cache
	hierarchy *Hierarchy
	audit     AuditSink
	logger    *slog.Logger
	metrics   Metrics

	superAdminRole string
	buildGroup     singleflight.Group
}

// ResolverConfig collects the resolver's dependencies.
type ResolverConfig struct {
	Store          Store
	Cache          *Cache
	Audit          AuditSink
	Logger         *slog.Logger
	Metrics        Metrics
	SuperAdminRole string
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	role := cfg.SuperAdminRole
	if role == "" {
		role = "super_admin"
	}
	return &Resolver{
		store:          cfg.Store,
		cache:          cfg.Cache,
		hierarchy:      NewHierarchy(logger),
		audit:          cfg.Audit,
		logger:         logger,
		metrics:        cfg.Metrics,
		superAdminRole: role,
	}
}

// HasPermission decides whether the user in check holds the required
// permission. It only errors on invalid input; every internal failure
// resolves to a denial (fail closed).
func (r *Resolver) HasPermission(ctx context.Context, check CheckContext, required string) (CheckResult, error) {
	if check.UserID == 0 {
		return CheckResult{}, ErrMissingUser
	}
	req, err := ParsePattern(required)
	if err != nil {
		return CheckResult{}, err
	}

	start := time.Now()
	result := r.resolve(ctx, check, req)
	result.Duration = time.Since(start)
	result.DurationMs = result.Duration.Milliseconds()

	if r.metrics != nil {
		r.metrics.ObserveDecision(result.Source, result.Granted, result.Duration)
	}
	r.emitAudit(ctx, check, req, result)
	return result, nil
}

func (r *Resolver) resolve(ctx context.Context, check CheckContext, req Pattern) CheckResult {
	// The super admin bypass is absolute: no cache, store, or scope rules.
	if slices.Contains(check.Roles, r.superAdminRole) {
		return CheckResult{Granted: true, Source: SourceSuperAdmin}
	}

	required := req.String()
	if cached, err := r.cache.Decision(ctx, check.UserID, required); err == nil {
		r.cacheEvent("decision", true)
		cached.Source = SourceCache
		return cached
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("decision cache read failed", slog.Any("error", err))
	}
	r.cacheEvent("decision", false)

	set, err := r.userSet(ctx, check.UserID)
	if err != nil {
		r.logger.Error("permission check failed",
			slog.Int64("user_id", check.UserID),
			slog.String("pattern", required),
			slog.Any("error", err))
		return CheckResult{Granted: false, Source: SourceError}
	}

	matched, granted, denied := set.Has(req)
	result := CheckResult{Granted: granted}
	switch {
	case denied:
		result.Source = SourceDeny
		result.MatchedPattern = matched
	case granted && strings.Contains(matched, Wildcard):
		result.Source = SourceWildcard
		result.MatchedPattern = matched
	case granted:
		result.Source = SourceDirect
		result.MatchedPattern = matched
	default:
		result.Source = SourceNone
	}

	if err := r.cache.StoreDecision(ctx, check.UserID, required, result); err != nil {
		r.logger.Warn("decision cache write failed", slog.Any("error", err))
	}
	return result
}

// userSet returns the cached expanded set, rebuilding it from the store on
// miss. Concurrent rebuilds for one user are collapsed; losers reuse the
// winner's set since both compute from the same underlying data.
func (r *Resolver) userSet(ctx context.Context, userID int64) (PermissionSet, error) {
	if set, err := r.cache.UserSet(ctx, userID); err == nil {
		r.cacheEvent("set", true)
		return set, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("permission set cache read failed", slog.Any("error", err))
	}
	r.cacheEvent("set", false)

	value, err, _ := r.buildGroup.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return r.buildSet(ctx, userID)
	})
	if err != nil {
		return PermissionSet{}, err
	}
	return value.(PermissionSet), nil
}

func (r *Resolver) buildSet(ctx context.Context, userID int64) (PermissionSet, error) {
	now := time.Now()

	roles, err := r.store.ActiveUserRoles(ctx, userID, now)
	if err != nil {
		return PermissionSet{}, err
	}
	grants, err := r.store.ActiveUserGrants(ctx, userID, now)
	if err != nil {
		return PermissionSet{}, err
	}

	var patterns []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}

	if len(roles) > 0 {
		defs, err := r.store.RoleGrants(ctx)
		if err != nil {
			return PermissionSet{}, err
		}
		rules, err := r.store.InheritanceRules(ctx)
		if err != nil {
			return PermissionSet{}, err
		}
		for _, role := range roles {
			for _, p := range r.hierarchy.ExpandRole(role.RoleCode, defs, rules) {
				add(p)
			}
		}
	}

	var denies []string
	for _, grant := range grants {
		if grant.Granted {
			add(grant.Pattern)
		} else {
			denies = append(denies, grant.Pattern)
		}
	}

	version, err := r.cache.Version(ctx, userID)
	if err != nil {
		r.logger.Warn("cache version read failed", slog.Any("error", err))
	}
	set := PermissionSet{
		UserID:     userID,
		Patterns:   ExpandScopes(patterns),
		Denies:     denies,
		Version:    version,
		ComputedAt: now,
	}
	if err := r.cache.StoreUserSet(ctx, set); err != nil {
		r.logger.Warn("permission set cache write failed", slog.Any("error", err))
	}
	return set, nil
}

// ExpandedPermissions exposes the full expanded set, bypassing the decision
// cache. Used by admin tooling to inspect what a user effectively holds.
func (r *Resolver) ExpandedPermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	if userID == 0 {
		return PermissionSet{}, ErrMissingUser
	}
	return r.userSet(ctx, userID)
}

func (r *Resolver) emitAudit(ctx context.Context, check CheckContext, req Pattern, result CheckResult) {
	if r.audit == nil {
		return
	}
	rec := AuditRecord{
		UserID:         check.UserID,
		Pattern:        req.String(),
		Resource:       req.Resource,
		Action:         req.Action,
		Granted:        result.Granted,
		Source:         result.Source,
		MatchedPattern: result.MatchedPattern,
		TenantID:       check.TenantID,
		DurationMs:     result.DurationMs,
		RequestID:      check.RequestID,
		IP:             check.IP,
		UserAgent:      check.UserAgent,
		OccurredAt:     time.Now(),
	}
	// Fire and forget: a failed audit write never changes or delays the
	// decision already computed.
	go func(ctx context.Context) {
		if err := r.audit.Record(ctx, rec); err != nil {
			r.logger.Error("audit write failed", slog.Any("error", err))
		}
	}(context.WithoutCancel(ctx))
}

func (r *Resolver) cacheEvent(tier string, hit bool) {
	if r.metrics != nil {
		r.metrics.CacheEvent(tier, hit)
	}
}
