package modloghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feedmod/feedmod/internal/modlog"
	"github.com/feedmod/feedmod/internal/platform/httpx"
	"github.com/feedmod/feedmod/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxDateRange    = 90 * 24 * time.Hour
)

// LogService lists moderation log entries.
type LogService interface {
	List(ctx context.Context, scope modlog.Scope, filters modlog.Filters) (modlog.Result, error)
}

// ScopeResolver computes which feeds a viewer may read logs for.
type ScopeResolver interface {
	LogScope(ctx context.Context, viewerDID string) (modlog.Scope, error)
}

// Handler serves the moderation log view.
type Handler struct {
	logger  *slog.Logger
	service LogService
	scopes  ScopeResolver
}

// NewHandler constructs a moderation log handler.
func NewHandler(logger *slog.Logger, service LogService, scopes ScopeResolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, scopes: scopes}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.scopes == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "")
		return
	}
	viewer, ok := shared.CurrentUserDID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		var v validationError
		if errors.As(err, &v) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+v.field)
			return
		}
		h.handleServerError(w, "parse log filters", err)
		return
	}
	scope, err := h.scopes.LogScope(r.Context(), viewer)
	if err != nil {
		h.handleServerError(w, "resolve log scope", err)
		return
	}
	result, err := h.service.List(r.Context(), scope, filters)
	if err != nil {
		h.handleServerError(w, "list moderation logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilters(r *http.Request) (modlog.Filters, error) {
	query := r.URL.Query()
	filters := modlog.Filters{
		URI:           strings.TrimSpace(query.Get("uri")),
		Action:        strings.TrimSpace(query.Get("action")),
		PerformedBy:   strings.TrimSpace(query.Get("performed_by")),
		TargetUserDID: strings.TrimSpace(query.Get("target")),
		Page:          1,
		PageSize:      defaultPageSize,
	}

	var (
		err        error
		toDateOnly bool
	)
	if filters.From, _, err = parseTime(query.Get("from")); err != nil {
		return modlog.Filters{}, validationError{field: "from"}
	}
	if filters.To, toDateOnly, err = parseTime(query.Get("to")); err != nil {
		return modlog.Filters{}, validationError{field: "to"}
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if filters.From.After(filters.To) || filters.To.Sub(filters.From) > maxDateRange {
			return modlog.Filters{}, validationError{field: "range"}
		}
	}
	// A plain-date upper bound includes the whole day.
	if toDateOnly {
		filters.To = filters.To.AddDate(0, 0, 1)
	}

	switch strings.ToLower(strings.TrimSpace(query.Get("sort"))) {
	case "", "desc":
	case "asc":
		filters.Ascending = true
	default:
		return modlog.Filters{}, validationError{field: "sort"}
	}

	if v := strings.TrimSpace(query.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > modlog.MaxPage {
			return modlog.Filters{}, validationError{field: "page"}
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(query.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return modlog.Filters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

// parseTime accepts RFC3339 timestamps or plain dates, reporting whether the
// value was a plain date.
func parseTime(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	return t, err == nil, err
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
