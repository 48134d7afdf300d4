package permission

import (
	"context"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mutableStore backs both the resolver reads and the service mutations with
// the same in-memory state, so grant-then-check flows behave like the real
// store would.
type mutableStore struct {
	mockStore
	roleCodes map[int64]string
}

func (m *mutableStore) EnsurePermission(ctx context.Context, p Pattern, priority int32, description string) (Permission, error) {
	return Permission{Pattern: p.String(), Priority: priority, Description: description}, nil
}

func (m *mutableStore) GrantPermission(ctx context.Context, userID int64, pattern string, opts GrantOptions) error {
	m.grants = append(m.grants, UserGrant{Pattern: pattern, Granted: true, GrantedBy: opts.GrantedBy})
	return nil
}

func (m *mutableStore) RevokePermission(ctx context.Context, userID int64, pattern string, revokedBy int64, reason string) error {
	kept := m.grants[:0]
	for _, g := range m.grants {
		if g.Pattern != pattern {
			kept = append(kept, g)
		}
	}
	m.grants = append(kept, UserGrant{Pattern: pattern, Granted: false, GrantedBy: revokedBy, GrantReason: reason})
	return nil
}

func (m *mutableStore) RemoveGrant(ctx context.Context, userID int64, pattern string) error {
	kept := m.grants[:0]
	for _, g := range m.grants {
		if g.Pattern != pattern {
			kept = append(kept, g)
		}
	}
	m.grants = kept
	return nil
}

func (m *mutableStore) AssignRole(ctx context.Context, userID, roleID, grantedBy int64, validFrom time.Time, validUntil *time.Time) error {
	m.roles = append(m.roles, UserRole{RoleID: roleID, RoleCode: m.roleCodes[roleID], ValidFrom: validFrom, ValidUntil: validUntil, GrantedBy: grantedBy})
	return nil
}

func (m *mutableStore) UnassignRole(ctx context.Context, userID, roleID int64) error {
	kept := m.roles[:0]
	for _, r := range m.roles {
		if r.RoleID != roleID {
			kept = append(kept, r)
		}
	}
	m.roles = kept
	return nil
}

func newServiceFixture(t *testing.T, store *mutableStore) (*Service, *Resolver) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, 15*time.Minute, 5*time.Minute)
	svc := NewService(store, cache, slog.Default())
	resolver := NewResolver(ResolverConfig{Store: store, Cache: cache, Logger: slog.Default()})
	return svc, resolver
}

func TestGrantThenCheckSeesFreshData(t *testing.T) {
	store := &mutableStore{}
	svc, resolver := newServiceFixture(t, store)
	ctx := context.Background()
	check := CheckContext{UserID: 7}

	result, err := resolver.HasPermission(ctx, check, "exports.run.own")
	require.NoError(t, err)
	assert.False(t, result.Granted)

	require.NoError(t, svc.GrantPermission(ctx, 7, "exports.run.own", GrantOptions{GrantedBy: 1}))

	result, err = resolver.HasPermission(ctx, check, "exports.run.own")
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, SourceDirect, result.Source)
}

func TestRevokeThenCheckDeniesImmediately(t *testing.T) {
	store := &mutableStore{}
	store.grants = []UserGrant{{Pattern: "exports.run.own", Granted: true}}
	svc, resolver := newServiceFixture(t, store)
	ctx := context.Background()
	check := CheckContext{UserID: 7}

	result, err := resolver.HasPermission(ctx, check, "exports.run.own")
	require.NoError(t, err)
	require.True(t, result.Granted)

	require.NoError(t, svc.RevokePermission(ctx, 7, "exports.run.own", 1, "offboarding"))

	result, err = resolver.HasPermission(ctx, check, "exports.run.own")
	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Equal(t, SourceDeny, result.Source)
}

func TestAssignRoleThenCheck(t *testing.T) {
	store := &mutableStore{roleCodes: map[int64]string{4: "editor"}}
	store.roleDefs = map[string]RoleGrant{
		"editor": {Code: "editor", Patterns: []string{"documents.write.tenant"}},
	}
	svc, resolver := newServiceFixture(t, store)
	ctx := context.Background()
	check := CheckContext{UserID: 7}

	require.NoError(t, svc.AssignRole(ctx, 7, 4, 1, time.Time{}, nil))

	result, err := resolver.HasPermission(ctx, check, "documents.write.tenant")
	require.NoError(t, err)
	assert.True(t, result.Granted)

	require.NoError(t, svc.UnassignRole(ctx, 7, 4))

	result, err = resolver.HasPermission(ctx, check, "documents.write.tenant")
	require.NoError(t, err)
	assert.False(t, result.Granted)
}

func TestServiceValidatesInput(t *testing.T) {
	store := &mutableStore{}
	svc, _ := newServiceFixture(t, store)
	ctx := context.Background()

	assert.ErrorIs(t, svc.GrantPermission(ctx, 0, "exports.run.own", GrantOptions{}), ErrMissingUser)
	assert.ErrorIs(t, svc.GrantPermission(ctx, 7, "bad pattern", GrantOptions{}), ErrMalformedPattern)
	assert.ErrorIs(t, svc.RevokePermission(ctx, 7, "also bad", 1, ""), ErrMalformedPattern)

	_, err := svc.RegisterPermission(ctx, "too.many.parts.here", 0, "")
	assert.ErrorIs(t, err, ErrMalformedPattern)
}

func TestCacheInvalidateUserClearsBothTiers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.StoreUserSet(ctx, PermissionSet{UserID: 7, Patterns: []string{"a.b.c"}}))
	require.NoError(t, cache.StoreDecision(ctx, 7, "a.b.c", CheckResult{Granted: true}))
	require.NoError(t, cache.StoreDecision(ctx, 8, "a.b.c", CheckResult{Granted: true}))

	v1, err := cache.Version(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, cache.InvalidateUser(ctx, 7))

	_, err = cache.UserSet(ctx, 7)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = cache.Decision(ctx, 7, "a.b.c")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Other users are untouched.
	_, err = cache.Decision(ctx, 8, "a.b.c")
	assert.NoError(t, err)

	v2, err := cache.Version(ctx, 7)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)
}
