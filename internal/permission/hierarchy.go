package permission

import (
	"log/slog"
	"sort"
)

// Hierarchy expands roles into their transitive permission sets. Both the
// role inheritance graph and the permission inheritance table are walked
// with visited sets, so cyclic configuration data degrades to a finite
// (logged) result instead of unbounded recursion.
type Hierarchy struct {
	logger *slog.Logger
}

// NewHierarchy constructs a Hierarchy. A nil logger silences cycle reports.
func NewHierarchy(logger *slog.Logger) *Hierarchy {
	return &Hierarchy{logger: logger}
}

// ExpandRole collects every pattern granted by the role code, its inherited
// roles, and the permission inheritance rules (parent pattern implies child
// patterns). The result is deduplicated and sorted for stable output.
func (h *Hierarchy) ExpandRole(code string, roles map[string]RoleGrant, rules map[string][]string) []string {
	collected := make(map[string]struct{})

	visited := make(map[string]struct{})
	onPath := make(map[string]struct{})
	var walk func(current string)
	walk = func(current string) {
		if _, ok := onPath[current]; ok {
			if h.logger != nil {
				h.logger.Error("cyclic role inheritance detected",
					slog.String("role", current),
					slog.String("origin", code))
			}
			return
		}
		if _, ok := visited[current]; ok {
			return
		}
		visited[current] = struct{}{}
		grant, ok := roles[current]
		if !ok {
			if h.logger != nil {
				h.logger.Warn("role references unknown parent",
					slog.String("role", current),
					slog.String("origin", code))
			}
			return
		}
		for _, p := range grant.Patterns {
			collected[p] = struct{}{}
		}
		onPath[current] = struct{}{}
		for _, parent := range grant.Inherits {
			walk(parent)
		}
		delete(onPath, current)
	}
	walk(code)

	h.expandInheritance(collected, rules)

	out := make([]string, 0, len(collected))
	for p := range collected {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// expandInheritance adds child patterns implied by the permission
// inheritance rules, transitively and cycle-guarded.
func (h *Hierarchy) expandInheritance(collected map[string]struct{}, rules map[string][]string) {
	if len(rules) == 0 {
		return
	}
	visited := make(map[string]struct{}, len(collected))
	onPath := make(map[string]struct{})
	var walk func(current string)
	walk = func(current string) {
		if _, ok := onPath[current]; ok {
			if h.logger != nil {
				h.logger.Error("cyclic permission inheritance detected",
					slog.String("pattern", current))
			}
			return
		}
		if _, ok := visited[current]; ok {
			return
		}
		visited[current] = struct{}{}
		onPath[current] = struct{}{}
		for _, child := range rules[current] {
			collected[child] = struct{}{}
			walk(child)
		}
		delete(onPath, current)
	}
	roots := make([]string, 0, len(collected))
	for p := range collected {
		roots = append(roots, p)
	}
	for _, p := range roots {
		walk(p)
	}
}
