package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feedmod/feedmod/internal/app"
	"github.com/feedmod/feedmod/internal/auth"
	"github.com/feedmod/feedmod/internal/feeds"
	feedshttp "github.com/feedmod/feedmod/internal/feeds/http"
	"github.com/feedmod/feedmod/internal/moderation"
	moderationhttp "github.com/feedmod/feedmod/internal/moderation/http"
	"github.com/feedmod/feedmod/internal/modlog"
	modloghttp "github.com/feedmod/feedmod/internal/modlog/http"
	"github.com/feedmod/feedmod/internal/observability"
	"github.com/feedmod/feedmod/internal/permissions"
	permissionshttp "github.com/feedmod/feedmod/internal/permissions/http"
	"github.com/feedmod/feedmod/internal/platform/cache"
	"github.com/feedmod/feedmod/internal/platform/db"
	"github.com/feedmod/feedmod/internal/profiles"
	"github.com/feedmod/feedmod/internal/shared"
	"github.com/feedmod/feedmod/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "feedmod_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	appview := feeds.NewClient(cfg.AppViewURL)

	profileService := profiles.NewService(profiles.NewRepository(dbpool), logger,
		profiles.WithCache(profiles.NewCache(redisClient, cfg.ProfileCacheTTL)),
		profiles.WithFetcher(appview),
		profiles.WithMaxAge(cfg.ProfileCacheTTL),
	)

	logService := modlog.NewService(modlog.NewRepository(dbpool), logger)

	permOpts := []permissions.Option{
		permissions.WithProfiles(profileService),
		permissions.WithDecisionRecorder(metrics),
	}
	if cfg.PermissionsAtomicAudit {
		permOpts = append(permOpts, permissions.WithAtomicAudit(permissions.NewTransactor(dbpool)))
	}
	permService := permissions.NewService(permissions.NewRepository(dbpool), logService, logger, permOpts...)

	redisOpts := cfg.Redis().QueueOpts()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	moderationService := moderation.NewService(permService, logService, jobClient, cfg.ModerationServices(), logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(profileService, permService), sessionManager, csrfManager, cfg.AuthBridgeToken),
		PermissionsHandler: permissionshttp.NewHandler(logger, permService),
		LogHandler:         modloghttp.NewHandler(logger, logService, permService),
		FeedsHandler:       feedshttp.NewHandler(logger, appview),
		ModerationHandler:  moderationhttp.NewHandler(logger, moderationService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		ReadyChecks: map[string]app.ReadyCheck{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"appview":  appview.Ping,
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
