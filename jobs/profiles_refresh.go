package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/feedmod/feedmod/internal/jobs"
)

const defaultRefreshLimit = 200

// ProfileRefresher re-fetches stale profiles.
type ProfileRefresher interface {
	RefreshStale(ctx context.Context, limit int) (int, error)
}

// ProfilesRefreshJob keeps stored moderator profiles current.
type ProfilesRefreshJob struct {
	Refresher ProfileRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewProfilesRefreshJob wires dependencies for the refresh handler.
func NewProfilesRefreshJob(refresher ProfileRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProfilesRefreshJob {
	return &ProfilesRefreshJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle processes TaskProfilesRefresh tasks.
func (j *ProfilesRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("profiles refresh: handler not configured")
	}
	var payload ProfilesRefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultRefreshLimit
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = jobmetrics.NewMetrics(nil)
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracker := metrics.Track(TaskProfilesRefresh)
	start := time.Now()
	updated, err := j.Refresher.RefreshStale(ctx, payload.Limit)
	if err != nil {
		logger.Error("refresh profiles", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("refreshed profiles", slog.Int("updated", updated), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}
