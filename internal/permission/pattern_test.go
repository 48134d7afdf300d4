package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("invoices.read.tenant")
	require.NoError(t, err)
	assert.Equal(t, "invoices", p.Resource)
	assert.Equal(t, "read", p.Action)
	assert.Equal(t, "tenant", p.Scope)
	assert.Equal(t, "invoices.read.tenant", p.String())

	for _, raw := range []string{
		"",
		"invoices",
		"invoices.read",
		"invoices.read.tenant.extra",
		"invoices..tenant",
		"Invoices.read.tenant",
		"invoices.re ad.tenant",
		"invoices.read.**x",
	} {
		_, err := ParsePattern(raw)
		assert.ErrorIs(t, err, ErrMalformedPattern, "raw=%q", raw)
	}
}

func TestParsePatternAllowsWildcardSegments(t *testing.T) {
	p, err := ParsePattern("*.*.*")
	require.NoError(t, err)
	assert.True(t, p.IsWildcard())

	p, err = ParsePattern("invoices.*.own")
	require.NoError(t, err)
	assert.True(t, p.IsWildcard())
}

func TestMatchesSegmentWise(t *testing.T) {
	cases := []struct {
		stored   string
		required string
		want     bool
	}{
		{"invoices.read.tenant", "invoices.read.tenant", true},
		{"invoices.read.tenant", "invoices.read.own", false},
		{"invoices.*.tenant", "invoices.read.tenant", true},
		{"invoices.*.tenant", "invoices.delete.tenant", true},
		{"*.read.tenant", "reports.read.tenant", true},
		{"invoices.read.*", "invoices.read.global", true},
		{"*.*.*", "anything.goes.here", true},
		{"invoices.read.tenant", "reports.read.tenant", false},
		{"invoices.write.tenant", "invoices.read.tenant", false},
	}
	for _, tc := range cases {
		stored := MustParsePattern(tc.stored)
		required := MustParsePattern(tc.required)
		assert.Equal(t, tc.want, stored.Matches(required), "%s vs %s", tc.stored, tc.required)
	}
}

func TestMatchesIsTotal(t *testing.T) {
	// Every stored pattern matches itself, and the full wildcard matches
	// every well-formed pattern.
	patterns := []string{"a.b.c", "*.b.c", "a.*.c", "a.b.*", "*.*.*"}
	all := MustParsePattern("*.*.*")
	for _, raw := range patterns {
		p := MustParsePattern(raw)
		assert.True(t, p.Matches(p), "self-match %s", raw)
		assert.True(t, all.Matches(p))
	}
}

func TestScopeDominance(t *testing.T) {
	assert.True(t, ScopeGlobal.Dominates(ScopeTenant))
	assert.True(t, ScopeGlobal.Dominates(ScopeOwn))
	assert.True(t, ScopeTenant.Dominates(ScopeOwn))
	assert.False(t, ScopeTenant.Dominates(ScopeGlobal))
	assert.False(t, ScopeOwn.Dominates(ScopeTenant))
	assert.True(t, ScopeOwn.Dominates(ScopeOwn))
}

func TestExpandScopes(t *testing.T) {
	out := ExpandScopes([]string{"invoices.read.global"})
	assert.ElementsMatch(t, []string{
		"invoices.read.global",
		"invoices.read.tenant",
		"invoices.read.own",
	}, out)

	out = ExpandScopes([]string{"invoices.read.tenant"})
	assert.ElementsMatch(t, []string{
		"invoices.read.tenant",
		"invoices.read.own",
	}, out)

	out = ExpandScopes([]string{"invoices.read.own"})
	assert.Equal(t, []string{"invoices.read.own"}, out)
}

func TestExpandScopesIdempotent(t *testing.T) {
	first := ExpandScopes([]string{"invoices.read.global", "reports.view.tenant"})
	second := ExpandScopes(first)
	assert.ElementsMatch(t, first, second)
}

func TestExpandScopesKeepsUnknownScopeLiterals(t *testing.T) {
	// Custom scope segments expand to nothing extra but are preserved.
	out := ExpandScopes([]string{"invoices.read.regional"})
	assert.Equal(t, []string{"invoices.read.regional"}, out)
}
