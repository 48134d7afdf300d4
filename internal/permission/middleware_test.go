package permission

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-hq/meridian-access/internal/shared"
)

func TestRequireAllowsGrantedPrincipal(t *testing.T) {
	store := &mockStore{
		grants: []UserGrant{{Pattern: "reports.view.tenant", Granted: true}},
	}
	mw := Middleware{Resolver: newTestResolver(t, store, nil), Logger: slog.Default()}

	called := false
	handler := mw.Require("reports.view.tenant")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	principal := &shared.Principal{UserID: 7}
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), principal))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequireRejectsWithoutPrincipal(t *testing.T) {
	mw := Middleware{Resolver: newTestResolver(t, &mockStore{}, nil), Logger: slog.Default()}

	handler := mw.Require("reports.view.tenant")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireRejectsDeniedPrincipal(t *testing.T) {
	mw := Middleware{Resolver: newTestResolver(t, &mockStore{}, nil), Logger: slog.Default()}

	handler := mw.Require("reports.view.tenant")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 7}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireSuperAdminShortCircuits(t *testing.T) {
	mw := Middleware{Resolver: newTestResolver(t, &mockStore{}, nil), Logger: slog.Default()}

	handler := mw.Require("anything.manage.global")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{
		UserID: 1,
		Roles:  []string{"super_admin"},
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
