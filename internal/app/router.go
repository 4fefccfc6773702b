package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/feedmod/feedmod/internal/auth"
	feedshttp "github.com/feedmod/feedmod/internal/feeds/http"
	moderationhttp "github.com/feedmod/feedmod/internal/moderation/http"
	modloghttp "github.com/feedmod/feedmod/internal/modlog/http"
	"github.com/feedmod/feedmod/internal/observability"
	permissionshttp "github.com/feedmod/feedmod/internal/permissions/http"
	"github.com/feedmod/feedmod/internal/platform/httpx"
	"github.com/feedmod/feedmod/internal/shared"
	"github.com/feedmod/feedmod/jobs"
)

// ReadyCheck checks a dependency for /readyz.
type ReadyCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler        *auth.Handler
	PermissionsHandler *permissionshttp.Handler
	LogHandler         *modloghttp.Handler
	FeedsHandler       *feedshttp.Handler
	ModerationHandler  *moderationhttp.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	ReadyChecks        map[string]ReadyCheck
}

// NewRouter constructs the chi.Router with feedmod defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(params.Logger, params.ReadyChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:          params.Logger,
			Config:          params.Config,
			SessionManager:  params.SessionManager,
			CSRFManager:     params.CSRFManager,
			Metrics:         params.Metrics,
			CSRFExemptPaths: []string{"/api" + auth.SessionPath},
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		r.Route("/api", func(api chi.Router) {
			if params.AuthHandler != nil {
				params.AuthHandler.MountRoutes(api)
			}
			params.PermissionsHandler.MountRoutes(api)
			params.LogHandler.MountRoutes(api)
			params.FeedsHandler.MountRoutes(api)
			params.ModerationHandler.MountRoutes(api)
		})
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

func readyHandler(logger *slog.Logger, checks map[string]ReadyCheck) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		results := make([]string, len(names))
		g, gctx := errgroup.WithContext(ctx)
		for i, name := range names {
			g.Go(func() error {
				if err := checks[name](gctx); err != nil {
					logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
					results[i] = "down"
					return err
				}
				results[i] = "ok"
				return nil
			})
		}
		status := http.StatusOK
		if err := g.Wait(); err != nil {
			status = http.StatusServiceUnavailable
		}
		body := make(map[string]string, len(names))
		for i, name := range names {
			body[name] = results[i]
		}
		httpx.JSON(w, status, body)
	}
}
