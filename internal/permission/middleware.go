package permission

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-hq/meridian-access/internal/shared"
)

// Middleware wires permission checks into HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require ensures the caller holds the given permission pattern. Every
// failure mode maps to a generic 403; the internal error taxonomy never
// reaches the client.
func (m Middleware) Require(pattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			check := CheckContext{
				UserID:    principal.UserID,
				Roles:     principal.Roles,
				RequestID: chimw.GetReqID(r.Context()),
				IP:        r.RemoteAddr,
				UserAgent: r.UserAgent(),
			}
			result, err := m.Resolver.HasPermission(r.Context(), check, pattern)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission middleware check", slog.String("pattern", pattern), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !result.Granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
