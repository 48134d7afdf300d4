package permission

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-hq/meridian-access/internal/platform/httpx"
)

// Handler exposes the decision and administration endpoints.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	service   *Service
	store     *Repository
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver, service *Service, store *Repository) *Handler {
	return &Handler{
		logger:    logger,
		resolver:  resolver,
		service:   service,
		store:     store,
		validator: validator.New(),
	}
}

// MountDecisionRoutes registers the check endpoint, available to any
// authenticated principal.
func (h *Handler) MountDecisionRoutes(r chi.Router) {
	r.Post("/check", h.check)
}

// MountAdminRoutes registers the administrative routes. The router places
// these behind the Require middleware.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/permissions", h.listPermissions)
	r.Post("/permissions", h.registerPermission)
	r.Get("/users/{userID}/permissions", h.expandedPermissions)
	r.Post("/grants", h.grant)
	r.Post("/grants/revoke", h.revoke)
	r.Delete("/grants", h.removeGrant)
	r.Post("/assignments", h.assignRole)
	r.Delete("/assignments", h.unassignRole)
}

type checkRequest struct {
	UserID     int64    `json:"user_id" validate:"required"`
	Permission string   `json:"permission" validate:"required"`
	Roles      []string `json:"roles"`
	TenantID   int64    `json:"tenant_id"`
	ResourceID string   `json:"resource_id"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	check := CheckContext{
		UserID:     req.UserID,
		Roles:      req.Roles,
		TenantID:   req.TenantID,
		ResourceID: req.ResourceID,
		RequestID:  chimw.GetReqID(r.Context()),
		IP:         r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	result, err := h.resolver.HasPermission(r.Context(), check, req.Permission)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type grantRequest struct {
	UserID       int64      `json:"user_id" validate:"required"`
	Pattern      string     `json:"pattern" validate:"required"`
	GrantedBy    int64      `json:"granted_by" validate:"required"`
	GrantReason  string     `json:"grant_reason"`
	ValidUntil   *time.Time `json:"valid_until"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.service.GrantPermission(r.Context(), req.UserID, req.Pattern, GrantOptions{
		GrantedBy:    req.GrantedBy,
		GrantReason:  req.GrantReason,
		ValidUntil:   req.ValidUntil,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "granted"})
}

type revokeRequest struct {
	UserID    int64  `json:"user_id" validate:"required"`
	Pattern   string `json:"pattern" validate:"required"`
	RevokedBy int64  `json:"revoked_by" validate:"required"`
	Reason    string `json:"reason"`
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RevokePermission(r.Context(), req.UserID, req.Pattern, req.RevokedBy, req.Reason); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type removeGrantRequest struct {
	UserID  int64  `json:"user_id" validate:"required"`
	Pattern string `json:"pattern" validate:"required"`
}

func (h *Handler) removeGrant(w http.ResponseWriter, r *http.Request) {
	var req removeGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RemoveGrant(r.Context(), req.UserID, req.Pattern); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type assignRequest struct {
	UserID     int64      `json:"user_id" validate:"required"`
	RoleID     int64      `json:"role_id" validate:"required"`
	GrantedBy  int64      `json:"granted_by" validate:"required"`
	ValidFrom  *time.Time `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	validFrom := time.Time{}
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, req.RoleID, req.GrantedBy, validFrom, req.ValidUntil); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"status": "assigned"})
}

type unassignRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
	RoleID int64 `json:"role_id" validate:"required"`
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	var req unassignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.UnassignRole(r.Context(), req.UserID, req.RoleID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "unassigned"})
}

type registerPermissionRequest struct {
	Pattern     string `json:"pattern" validate:"required"`
	Priority    int32  `json:"priority"`
	Description string `json:"description"`
}

func (h *Handler) registerPermission(w http.ResponseWriter, r *http.Request) {
	var req registerPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.RegisterPermission(r.Context(), req.Pattern, req.Priority, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) expandedPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	set, err := h.resolver.ExpandedPermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMalformedPattern), errors.Is(err, ErrMissingUser):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("permission handler", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
