package shared

import "context"

// Principal describes the authenticated caller of the API.
type Principal struct {
	UserID    int64
	TokenID   string
	TokenName string
	Roles     []string
}

// HasRole reports whether the principal holds the role code.
func (p *Principal) HasRole(code string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == code {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
