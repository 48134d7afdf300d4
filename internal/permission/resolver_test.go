package permission

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	roles    []UserRole
	grants   []UserGrant
	roleDefs map[string]RoleGrant
	rules    map[string][]string

	rolesErr error

	roleCalls  int
	grantCalls int
	defCalls   int
}

func (m *mockStore) ActiveUserRoles(ctx context.Context, userID int64, now time.Time) ([]UserRole, error) {
	m.roleCalls++
	if m.rolesErr != nil {
		return nil, m.rolesErr
	}
	return m.roles, nil
}

func (m *mockStore) ActiveUserGrants(ctx context.Context, userID int64, now time.Time) ([]UserGrant, error) {
	m.grantCalls++
	return m.grants, nil
}

func (m *mockStore) RoleGrants(ctx context.Context) (map[string]RoleGrant, error) {
	m.defCalls++
	return m.roleDefs, nil
}

func (m *mockStore) InheritanceRules(ctx context.Context) (map[string][]string, error) {
	return m.rules, nil
}

type recordingSink struct {
	records chan AuditRecord
}

func (s *recordingSink) Record(ctx context.Context, rec AuditRecord) error {
	s.records <- rec
	return nil
}

func newTestResolver(t *testing.T, store Store, sink AuditSink) *Resolver {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, 15*time.Minute, 5*time.Minute)
	return NewResolver(ResolverConfig{
		Store:  store,
		Cache:  cache,
		Audit:  sink,
		Logger: slog.Default(),
	})
}

func TestHasPermissionWildcardRoleGrant(t *testing.T) {
	store := &mockStore{
		roles: []UserRole{{RoleID: 1, RoleCode: "editor"}},
		roleDefs: map[string]RoleGrant{
			"editor": {Code: "editor", Patterns: []string{"invoices.*.tenant"}},
		},
	}
	r := newTestResolver(t, store, nil)

	result, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "invoices.read.tenant")
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, SourceWildcard, result.Source)
	assert.Equal(t, "invoices.*.tenant", result.MatchedPattern)
}

func TestHasPermissionScopeDominance(t *testing.T) {
	store := &mockStore{
		roles: []UserRole{{RoleID: 1, RoleCode: "auditor"}},
		roleDefs: map[string]RoleGrant{
			"auditor": {Code: "auditor", Patterns: []string{"reports.view.global"}},
		},
	}
	r := newTestResolver(t, store, nil)

	for _, required := range []string{"reports.view.global", "reports.view.tenant", "reports.view.own"} {
		result, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, required)
		require.NoError(t, err)
		assert.True(t, result.Granted, required)
	}

	result, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "reports.delete.own")
	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Equal(t, SourceNone, result.Source)
}

func TestHasPermissionExplicitDenyWinsOverWildcard(t *testing.T) {
	store := &mockStore{
		roles: []UserRole{{RoleID: 1, RoleCode: "editor"}},
		roleDefs: map[string]RoleGrant{
			"editor": {Code: "editor", Patterns: []string{"invoices.*.tenant"}},
		},
		grants: []UserGrant{
			{Pattern: "invoices.delete.tenant", Granted: false},
		},
	}
	r := newTestResolver(t, store, nil)

	result, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "invoices.delete.tenant")
	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Equal(t, SourceDeny, result.Source)

	// Siblings under the wildcard stay granted.
	result, err = r.HasPermission(context.Background(), CheckContext{UserID: 7}, "invoices.read.tenant")
	require.NoError(t, err)
	assert.True(t, result.Granted)
}

func TestHasPermissionDirectUserGrant(t *testing.T) {
	store := &mockStore{
		grants: []UserGrant{
			{Pattern: "exports.run.own", Granted: true},
		},
	}
	r := newTestResolver(t, store, nil)

	result, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "exports.run.own")
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, SourceDirect, result.Source)
	assert.Equal(t, "exports.run.own", result.MatchedPattern)
}

func TestHasPermissionSuperAdminBypassesStore(t *testing.T) {
	store := &mockStore{rolesErr: errors.New("db down")}
	r := newTestResolver(t, store, nil)

	result, err := r.HasPermission(context.Background(), CheckContext{
		UserID: 7,
		Roles:  []string{"super_admin"},
	}, "anything.at.all")
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, SourceSuperAdmin, result.Source)
	assert.Zero(t, store.roleCalls)
}

func TestHasPermissionFailsClosedOnStoreError(t *testing.T) {
	store := &mockStore{rolesErr: errors.New("db down")}
	r := newTestResolver(t, store, nil)

	result, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "invoices.read.tenant")
	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Equal(t, SourceError, result.Source)
}

func TestHasPermissionInputErrors(t *testing.T) {
	r := newTestResolver(t, &mockStore{}, nil)

	_, err := r.HasPermission(context.Background(), CheckContext{}, "invoices.read.tenant")
	assert.ErrorIs(t, err, ErrMissingUser)

	_, err = r.HasPermission(context.Background(), CheckContext{UserID: 7}, "not-a-pattern")
	assert.ErrorIs(t, err, ErrMalformedPattern)
}

func TestHasPermissionDecisionCacheHit(t *testing.T) {
	store := &mockStore{
		grants: []UserGrant{{Pattern: "exports.run.own", Granted: true}},
	}
	r := newTestResolver(t, store, nil)

	first, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "exports.run.own")
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, first.Source)
	callsAfterFirst := store.grantCalls

	second, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "exports.run.own")
	require.NoError(t, err)
	assert.True(t, second.Granted)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, callsAfterFirst, store.grantCalls)
}

func TestHasPermissionSetCacheAvoidsRebuild(t *testing.T) {
	store := &mockStore{
		grants: []UserGrant{{Pattern: "exports.run.own", Granted: true}},
	}
	r := newTestResolver(t, store, nil)

	_, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "exports.run.own")
	require.NoError(t, err)
	// Different pattern misses the decision cache but reuses the set.
	_, err = r.HasPermission(context.Background(), CheckContext{UserID: 7}, "exports.schedule.own")
	require.NoError(t, err)
	assert.Equal(t, 1, store.grantCalls)
}

func TestHasPermissionDegradesWithoutRedis(t *testing.T) {
	store := &mockStore{
		grants: []UserGrant{{Pattern: "exports.run.own", Granted: true}},
	}
	r := NewResolver(ResolverConfig{
		Store:  store,
		Cache:  NewCache(nil, 15*time.Minute, 5*time.Minute),
		Logger: slog.Default(),
	})

	for i := 0; i < 2; i++ {
		result, err := r.HasPermission(context.Background(), CheckContext{UserID: 7}, "exports.run.own")
		require.NoError(t, err)
		assert.True(t, result.Granted)
	}
	assert.Equal(t, 2, store.grantCalls)
}

func TestHasPermissionEmitsAuditRecord(t *testing.T) {
	store := &mockStore{
		grants: []UserGrant{{Pattern: "exports.run.own", Granted: true}},
	}
	sink := &recordingSink{records: make(chan AuditRecord, 1)}
	r := newTestResolver(t, store, sink)

	_, err := r.HasPermission(context.Background(), CheckContext{
		UserID:    7,
		TenantID:  3,
		RequestID: "req-1",
	}, "exports.run.own")
	require.NoError(t, err)

	select {
	case rec := <-sink.records:
		assert.Equal(t, int64(7), rec.UserID)
		assert.Equal(t, "exports.run.own", rec.Pattern)
		assert.Equal(t, "exports", rec.Resource)
		assert.Equal(t, "run", rec.Action)
		assert.True(t, rec.Granted)
		assert.Equal(t, SourceDirect, rec.Source)
		assert.Equal(t, int64(3), rec.TenantID)
		assert.Equal(t, "req-1", rec.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("audit record not emitted")
	}
}

func TestExpandedPermissions(t *testing.T) {
	store := &mockStore{
		roles: []UserRole{{RoleID: 1, RoleCode: "auditor"}},
		roleDefs: map[string]RoleGrant{
			"auditor": {Code: "auditor", Patterns: []string{"reports.view.tenant"}},
		},
		grants: []UserGrant{{Pattern: "exports.run.own", Granted: false}},
	}
	r := newTestResolver(t, store, nil)

	set, err := r.ExpandedPermissions(context.Background(), 7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"reports.view.tenant", "reports.view.own"}, set.Patterns)
	assert.Equal(t, []string{"exports.run.own"}, set.Denies)

	_, err = r.ExpandedPermissions(context.Background(), 0)
	assert.ErrorIs(t, err, ErrMissingUser)
}
