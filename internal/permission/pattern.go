package permission

import (
	"fmt"
	"strings"
)

// Wildcard matches any value in a single pattern segment.
const Wildcard = "*"

// Scope identifies the reach of a permission grant.
type Scope string

// Scopes ordered by dominance: global covers tenant, tenant covers own.
const (
	ScopeGlobal Scope = "global"
	ScopeTenant Scope = "tenant"
	ScopeOwn    Scope = "own"
)

// Dominates reports whether s covers other in the scope hierarchy.
func (s Scope) Dominates(other Scope) bool {
	switch s {
	case ScopeGlobal:
		return other == ScopeGlobal || other == ScopeTenant || other == ScopeOwn
	case ScopeTenant:
		return other == ScopeTenant || other == ScopeOwn
	case ScopeOwn:
		return other == ScopeOwn
	}
	return false
}

// dominatedScopes lists the scopes implied by holding s, excluding s itself.
func dominatedScopes(s Scope) []Scope {
	switch s {
	case ScopeGlobal:
		return []Scope{ScopeTenant, ScopeOwn}
	case ScopeTenant:
		return []Scope{ScopeOwn}
	}
	return nil
}

// Pattern is a parsed permission string of the form resource.action.scope.
// Each segment is either a literal identifier or the wildcard.
type Pattern struct {
	Resource string
	Action   string
	Scope    string
}

// ParsePattern validates and splits a permission string. Patterns are
// validated here, at write time; the matcher assumes well-formed input.
func ParsePattern(raw string) (Pattern, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Pattern{}, fmt.Errorf("%w: %q must have exactly three segments", ErrMalformedPattern, raw)
	}
	for _, part := range parts {
		if part == Wildcard {
			continue
		}
		if !validSegment(part) {
			return Pattern{}, fmt.Errorf("%w: %q has invalid segment %q", ErrMalformedPattern, raw, part)
		}
	}
	return Pattern{Resource: parts[0], Action: parts[1], Scope: parts[2]}, nil
}

// MustParsePattern parses raw or panics. Intended for constants and tests.
func MustParsePattern(raw string) Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// String reassembles the pattern into its wire form.
func (p Pattern) String() string {
	return p.Resource + "." + p.Action + "." + p.Scope
}

// IsWildcard reports whether any segment is the wildcard.
func (p Pattern) IsWildcard() bool {
	return p.Resource == Wildcard || p.Action == Wildcard || p.Scope == Wildcard
}

// Matches reports whether the stored pattern p covers the required
// permission. Comparison is segment-wise and case-sensitive; a wildcard
// segment in p matches any required segment. Required wildcards carry no
// special meaning.
func (p Pattern) Matches(required Pattern) bool {
	if p.Resource != Wildcard && p.Resource != required.Resource {
		return false
	}
	if p.Action != Wildcard && p.Action != required.Action {
		return false
	}
	if p.Scope != Wildcard && p.Scope != required.Scope {
		return false
	}
	return true
}

// ExpandScopes adds the synthetic patterns implied by scope dominance: a
// grant at global scope also grants tenant and own, tenant also grants own.
// The returned set is deduplicated on exact pattern text and the expansion
// is idempotent.
func ExpandScopes(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, raw := range patterns {
		add(raw)
		p, err := ParsePattern(raw)
		if err != nil {
			continue
		}
		for _, scope := range dominatedScopes(Scope(p.Scope)) {
			add(Pattern{Resource: p.Resource, Action: p.Action, Scope: string(scope)}.String())
		}
	}
	return out
}
