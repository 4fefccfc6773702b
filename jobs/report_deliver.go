package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/feedmod/feedmod/internal/feeds"
	jobmetrics "github.com/feedmod/feedmod/internal/jobs"
)

// ReportSender files reports with a moderation service.
type ReportSender interface {
	CreateReport(ctx context.Context, serviceURL, token string, in feeds.ReportInput) error
}

// ReportDeliverJob hands queued reports to their moderation service.
type ReportDeliverJob struct {
	Sender  ReportSender
	Token   string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReportDeliverJob wires dependencies for the delivery handler.
func NewReportDeliverJob(sender ReportSender, token string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportDeliverJob {
	return &ReportDeliverJob{Sender: sender, Token: token, Logger: logger, Metrics: metrics}
}

// Handle processes TaskReportDeliver tasks.
func (j *ReportDeliverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("report deliver: handler not configured")
	}
	var payload ReportDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("report deliver: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskReportDeliver)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("request_id", payload.RequestID), slog.String("service", payload.Service))
	if err := j.Sender.CreateReport(ctx, payload.Endpoint, j.Token, payload.Report); err != nil {
		j.metrics().ReportDelivered(payload.Service, false)
		var statusErr *feeds.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			logger.Error("report rejected", slog.Int("status", statusErr.Status))
			resultErr = fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			return resultErr
		}
		logger.Warn("report delivery failed, will retry", slog.Any("error", err))
		resultErr = err
		return resultErr
	}
	j.metrics().ReportDelivered(payload.Service, true)
	logger.Info("report delivered")
	return nil
}

func (j *ReportDeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReportDeliverJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
