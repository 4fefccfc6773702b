package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/feedmod/feedmod/internal/feeds"
	"github.com/feedmod/feedmod/internal/modlog"
	"github.com/feedmod/feedmod/internal/permissions"
	"github.com/feedmod/feedmod/jobs"
)

// Gate answers whether a user may perform an action on a feed.
type Gate interface {
	CanPerformAction(ctx context.Context, userDID string, action permissions.Action, uri string) bool
}

// AuditLog appends moderation log entries.
type AuditLog interface {
	Append(ctx context.Context, entry modlog.Entry) (modlog.Entry, error)
}

// ReportQueue schedules report delivery.
type ReportQueue interface {
	EnqueueReport(ctx context.Context, payload jobs.ReportDeliverPayload) error
}

// Service applies moderation events and dispatches reports.
type Service struct {
	gate      Gate
	audit     AuditLog
	queue     ReportQueue
	services  []ServiceConfig
	logger    *slog.Logger
	validator *validator.Validate
	newID     func() string
}

// NewService constructs the moderation service. Only services with an
// admin DID and an endpoint are offered to reporters.
func NewService(gate Gate, audit AuditLog, queue ReportQueue, services []ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	enabled := make([]ServiceConfig, 0, len(services))
	for _, svc := range services {
		if strings.TrimSpace(svc.AdminDID) == "" || strings.TrimSpace(svc.URL) == "" {
			continue
		}
		enabled = append(enabled, svc)
	}
	return &Service{
		gate:      gate,
		audit:     audit,
		queue:     queue,
		services:  enabled,
		logger:    logger,
		validator: validator.New(),
		newID:     func() string { return uuid.NewString() },
	}
}

// Services returns the moderation services reports can be sent to.
func (s *Service) Services(ctx context.Context) []ServiceConfig {
	out := make([]ServiceConfig, len(s.services))
	copy(out, s.services)
	return out
}

// PerformAction records a gated post or user action.
func (s *Service) PerformAction(ctx context.Context, ev Event) (modlog.Entry, error) {
	ev.ActingDID = strings.TrimSpace(ev.ActingDID)
	ev.URI = strings.TrimSpace(ev.URI)
	ev.TargetUserDID = strings.TrimSpace(ev.TargetUserDID)
	ev.TargetPostURI = strings.TrimSpace(ev.TargetPostURI)
	switch {
	case !ev.Action.Valid():
		return modlog.Entry{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, ev.Action)
	case ev.Action.IsRoleChange():
		return modlog.Entry{}, fmt.Errorf("%w: role changes go through the permissions service", ErrInvalidInput)
	case ev.ActingDID == "" || ev.URI == "":
		return modlog.Entry{}, fmt.Errorf("%w: acting did and uri required", ErrInvalidInput)
	case isPostAction(ev.Action) && ev.TargetPostURI == "":
		return modlog.Entry{}, fmt.Errorf("%w: target post required", ErrInvalidInput)
	case !isPostAction(ev.Action) && ev.TargetUserDID == "":
		return modlog.Entry{}, fmt.Errorf("%w: target user required", ErrInvalidInput)
	}

	if !s.gate.CanPerformAction(ctx, ev.ActingDID, ev.Action, ev.URI) {
		return modlog.Entry{}, fmt.Errorf("%w: %s on %s", ErrForbidden, ev.Action, ev.URI)
	}

	entry := modlog.Entry{
		URI:           ev.URI,
		PerformedBy:   ev.ActingDID,
		Action:        string(ev.Action),
		TargetUserDID: ev.TargetUserDID,
		TargetPostURI: ev.TargetPostURI,
	}
	if reason := strings.TrimSpace(ev.Reason); reason != "" {
		entry.Metadata = map[string]any{"reason": reason}
	}
	saved, err := s.audit.Append(ctx, entry)
	if err != nil {
		return modlog.Entry{}, fmt.Errorf("moderation: record action: %w", err)
	}
	return saved, nil
}

// Report queues one delivery per requested service and logs the report.
// Services whose enqueue fails are listed in Receipt.Failed; an error is
// returned only when no service could be queued.
func (s *Service) Report(ctx context.Context, r Report) (Receipt, error) {
	r.ActingDID = strings.TrimSpace(r.ActingDID)
	r.URI = strings.TrimSpace(r.URI)
	r.TargetPostURI = strings.TrimSpace(r.TargetPostURI)
	r.TargetUserDID = strings.TrimSpace(r.TargetUserDID)
	r.AdditionalInfo = strings.TrimSpace(r.AdditionalInfo)
	if err := s.validator.Struct(r); err != nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvalidInput, describe(err))
	}
	if r.TargetPostURI != "" && !strings.HasPrefix(r.TargetPostURI, "at://") {
		return Receipt{}, fmt.Errorf("%w: target post must be an at:// uri", ErrInvalidInput)
	}
	if r.TargetUserDID != "" && !strings.HasPrefix(r.TargetUserDID, "did:") {
		return Receipt{}, fmt.Errorf("%w: target user must be a did", ErrInvalidInput)
	}
	if !reasonTypes[r.ReasonType] {
		return Receipt{}, fmt.Errorf("%w: unknown reason type %q", ErrInvalidInput, r.ReasonType)
	}

	targets := make([]ServiceConfig, 0, len(r.ToServices))
	seen := make(map[string]bool, len(r.ToServices))
	for _, name := range r.ToServices {
		if seen[name] {
			continue
		}
		seen[name] = true
		svc, ok := s.lookup(name)
		if !ok {
			return Receipt{}, fmt.Errorf("%w: unknown moderation service %q", ErrInvalidInput, name)
		}
		targets = append(targets, svc)
	}

	receipt := Receipt{RequestID: s.newID()}
	input := feeds.ReportInput{
		ReasonType: r.ReasonType,
		Reason:     r.AdditionalInfo,
		Subject: feeds.Subject{
			DID:     r.TargetUserDID,
			PostURI: r.TargetPostURI,
			PostCID: r.TargetPostCID,
		},
	}
	var lastErr error
	for _, svc := range targets {
		err := s.queue.EnqueueReport(ctx, jobs.ReportDeliverPayload{
			RequestID: receipt.RequestID,
			Service:   svc.Value,
			Endpoint:  svc.URL,
			Report:    input,
		})
		if err != nil {
			s.logger.Warn("enqueue report failed",
				slog.String("request_id", receipt.RequestID), slog.String("service", svc.Value), slog.Any("error", err))
			lastErr = fmt.Errorf("moderation: enqueue report for %s: %w", svc.Value, err)
			receipt.Failed = append(receipt.Failed, svc.Value)
			continue
		}
		receipt.Services = append(receipt.Services, svc.Value)
	}
	if len(receipt.Services) == 0 {
		return Receipt{}, lastErr
	}

	meta := map[string]any{
		"reason_type": r.ReasonType,
		"services":    receipt.Services,
		"request_id":  receipt.RequestID,
	}
	if len(receipt.Failed) > 0 {
		meta["failed_services"] = receipt.Failed
	}
	if r.FeedName != "" {
		meta["feed_name"] = r.FeedName
	}
	if r.AdditionalInfo != "" {
		meta["additional_info"] = r.AdditionalInfo
	}
	if _, err := s.audit.Append(ctx, modlog.Entry{
		URI:           r.URI,
		PerformedBy:   r.ActingDID,
		Action:        ActionReport,
		TargetUserDID: r.TargetUserDID,
		TargetPostURI: r.TargetPostURI,
		Metadata:      meta,
	}); err != nil {
		s.logger.Warn("report queued without moderation log entry",
			slog.String("request_id", receipt.RequestID), slog.String("uri", r.URI), slog.Any("error", err))
	}
	return receipt, nil
}

func (s *Service) lookup(name string) (ServiceConfig, bool) {
	for _, svc := range s.services {
		if svc.Value == name {
			return svc, true
		}
	}
	return ServiceConfig{}, false
}

func isPostAction(a permissions.Action) bool {
	return a == permissions.ActionPostDelete || a == permissions.ActionPostRestore
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
