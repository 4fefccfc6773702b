package moderationhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/feedmod/feedmod/internal/moderation"
	"github.com/feedmod/feedmod/internal/modlog"
	"github.com/feedmod/feedmod/internal/permissions"
	"github.com/feedmod/feedmod/internal/platform/httpx"
	"github.com/feedmod/feedmod/internal/shared"
)

// ModerationService is the contract the handlers depend on.
type ModerationService interface {
	PerformAction(ctx context.Context, ev moderation.Event) (modlog.Entry, error)
	Report(ctx context.Context, r moderation.Report) (moderation.Receipt, error)
	Services(ctx context.Context) []moderation.ServiceConfig
}

// Handler serves moderation events and reports.
type Handler struct {
	logger  *slog.Logger
	service ModerationService
}

// NewHandler constructs a moderation handler.
func NewHandler(logger *slog.Logger, service ModerationService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type eventRequest struct {
	Action        string `json:"action"`
	URI           string `json:"uri"`
	TargetUserDID string `json:"targetUserDid"`
	TargetPostURI string `json:"targetPostUri"`
	Reason        string `json:"reason"`
}

type reportRequest struct {
	URI            string   `json:"uri"`
	FeedName       string   `json:"feedName"`
	TargetPostURI  string   `json:"targetPostUri"`
	TargetPostCID  string   `json:"targetPostCid"`
	TargetUserDID  string   `json:"targetUserDid"`
	ReasonType     string   `json:"reasonType"`
	AdditionalInfo string   `json:"additionalInfo"`
	ToServices     []string `json:"toServices"`
}

type serviceView struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	did, ok := shared.CurrentUserDID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	action, err := permissions.ParseAction(req.Action)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown action")
		return
	}
	entry, err := h.service.PerformAction(r.Context(), moderation.Event{
		Action:        action,
		ActingDID:     did,
		URI:           req.URI,
		TargetUserDID: req.TargetUserDID,
		TargetPostURI: req.TargetPostURI,
		Reason:        req.Reason,
	})
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusCreated, entry)
	case errors.Is(err, moderation.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid moderation event")
	case errors.Is(err, moderation.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you cannot moderate this feed")
	default:
		h.handleServerError(w, "perform moderation action", err)
	}
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	did, ok := shared.CurrentUserDID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	var req reportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	receipt, err := h.service.Report(r.Context(), moderation.Report{
		ActingDID:      did,
		URI:            req.URI,
		FeedName:       req.FeedName,
		TargetPostURI:  req.TargetPostURI,
		TargetPostCID:  req.TargetPostCID,
		TargetUserDID:  req.TargetUserDID,
		ReasonType:     req.ReasonType,
		AdditionalInfo: req.AdditionalInfo,
		ToServices:     req.ToServices,
	})
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusAccepted, receipt)
	case errors.Is(err, moderation.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.handleServerError(w, "submit report", err)
	}
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	services := h.service.Services(r.Context())
	out := make([]serviceView, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceView{Value: svc.Value, Label: svc.Label})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
