package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-hq/meridian-access/internal/platform/httpx"
	"github.com/meridian-hq/meridian-access/internal/shared"
)

// Handler wires token management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers token routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.issueToken)
	r.Delete("/{tokenID}", h.revokeToken)
}

type issueTokenRequest struct {
	Name   string `json:"name" validate:"required"`
	UserID int64  `json:"user_id" validate:"required"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	credential, err := h.service.IssueToken(r.Context(), req.Name, req.UserID)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"token": credential})
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tokenID")
	if err := h.service.RevokeToken(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "token not found")
			return
		}
		h.logger.Error("revoke token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
