package feedshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/feedmod/feedmod/internal/feeds"
	"github.com/feedmod/feedmod/internal/platform/httpx"
)

// FeedSource loads feed pages.
type FeedSource interface {
	GetFeed(ctx context.Context, p feeds.Params) (feeds.Page, error)
}

// Handler serves feed pages proxied from the AppView.
type Handler struct {
	logger *slog.Logger
	source FeedSource
}

// NewHandler constructs a feed handler.
func NewHandler(logger *slog.Logger, source FeedSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, source: source}
}

// MountRoutes registers the feed endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/feeds/{did}/{feedName}", h.handleFeed)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	params := feeds.Params{
		DID:      strings.TrimSpace(chi.URLParam(r, "did")),
		FeedName: strings.TrimSpace(chi.URLParam(r, "feedName")),
		Cursor:   strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	if !strings.HasPrefix(params.DID, "did:") || params.FeedName == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid feed")
		return
	}
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		params.Limit = limit
	}

	page, err := h.source.GetFeed(r.Context(), params)
	if err != nil {
		var statusErr *feeds.StatusError
		switch {
		case errors.Is(err, feeds.ErrInvalidParams):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid feed")
		case errors.As(err, &statusErr) && !statusErr.Temporary():
			h.logger.Warn("feed rejected by appview", slog.String("feed", params.FeedURI()), slog.Int("status", statusErr.Status))
			httpx.Problem(w, http.StatusNotFound, "Not Found", "feed unavailable")
		default:
			h.logger.Error("load feed", slog.String("feed", params.FeedURI()), slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}
