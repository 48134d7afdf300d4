package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-hq/meridian-access/internal/platform/httpx"
	"github.com/meridian-hq/meridian-access/internal/shared"
)

// Middleware resolves the bearer token into a Principal on the request
// context. Requests without a valid token are rejected with 401.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate is the chi middleware entrypoint.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		credential, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || credential == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		principal, err := m.Service.Authenticate(r.Context(), credential)
		if err != nil {
			if m.Logger != nil && err != shared.ErrInvalidToken {
				m.Logger.Error("authenticate token", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
