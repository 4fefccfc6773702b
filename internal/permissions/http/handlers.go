package permissionshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/feedmod/feedmod/internal/permissions"
	"github.com/feedmod/feedmod/internal/platform/httpx"
	"github.com/feedmod/feedmod/internal/shared"
)

// RoleService is the permissions contract used by the handlers.
type RoleService interface {
	ResolveRole(ctx context.Context, userDID, uri string) permissions.Role
	HighestRole(ctx context.Context, userDID string) permissions.Role
	SetRole(ctx context.Context, p permissions.SetRoleParams) error
	ListModeratorsForFeedsOrdered(ctx context.Context, uris []string) ([]permissions.FeedModerators, error)
	ListAllModeratorsForAdmin(ctx context.Context, adminDID string) ([]permissions.Moderator, error)
}

// Handler exposes role lookups and role changes over JSON.
type Handler struct {
	logger    *slog.Logger
	service   RoleService
	validator *validator.Validate
}

// NewHandler constructs a permissions handler.
func NewHandler(logger *slog.Logger, service RoleService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type roleResponse struct {
	Role permissions.Role `json:"role"`
}

type setRoleRequest struct {
	TargetDID string `json:"targetDid" validate:"required,startswith=did:"`
	URI       string `json:"uri" validate:"required,startswith=at://"`
	Role      string `json:"role" validate:"required,oneof=user mod admin"`
	FeedName  string `json:"feedName" validate:"max=300"`
}

type moderatorsRequest struct {
	URIs []string `json:"uris" validate:"max=100,dive,required"`
}

func (h *Handler) handleRoleCheck(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("targetDid"))
	uri := strings.TrimSpace(r.URL.Query().Get("uri"))
	if target == "" || uri == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "targetDid and uri are required")
		return
	}
	httpx.JSON(w, http.StatusOK, roleResponse{Role: h.service.ResolveRole(r.Context(), target, uri)})
}

func (h *Handler) handleHighestRole(w http.ResponseWriter, r *http.Request) {
	did, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, roleResponse{Role: h.service.HighestRole(r.Context(), did)})
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	acting, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req setRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	role, err := permissions.ParseRole(req.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role")
		return
	}
	err = h.service.SetRole(r.Context(), permissions.SetRoleParams{
		TargetDID: req.TargetDID,
		URI:       req.URI,
		Role:      role,
		ActingDID: acting,
		FeedName:  req.FeedName,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, permissions.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role change")
	case errors.Is(err, permissions.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you cannot change roles on this feed")
	case errors.Is(err, permissions.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "feed not found")
	default:
		h.handleServerError(w, "set role", err)
	}
}

func (h *Handler) handleModerators(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	var req moderatorsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	result, err := h.service.ListModeratorsForFeedsOrdered(r.Context(), req.URIs)
	if err != nil {
		h.handleServerError(w, "list moderators", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleAdminModerators(w http.ResponseWriter, r *http.Request) {
	did, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	mods, err := h.service.ListAllModeratorsForAdmin(r.Context(), did)
	if err != nil {
		h.handleServerError(w, "list admin moderators", err)
		return
	}
	httpx.JSON(w, http.StatusOK, mods)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	did, ok := shared.CurrentUserDID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return "", false
	}
	return did, true
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
