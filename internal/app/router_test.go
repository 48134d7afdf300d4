package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-hq/meridian-access/internal/observability"
	_ "github.com/meridian-hq/meridian-access/internal/testing/guard"
)

func TestRouterHealthzIsPublic(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  slog.Default(),
		Config:  &Config{AppEnv: "development"},
		Metrics: observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouterExposesMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  slog.Default(),
		Config:  &Config{AppEnv: "development"},
		Metrics: observability.NewMetrics(),
	})

	// Prime the HTTP metrics with one served request.
	warm := httptest.NewRecorder()
	router.ServeHTTP(warm, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "meridian_http_requests_total")
}

func TestRouterRequiresBearerToken(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.Default(),
		Config: &Config{AppEnv: "development"},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/rbac/check", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
