package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/feedmod/feedmod/internal/feeds"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportDeliver sends one report to one moderation service.
	TaskReportDeliver = "report:deliver"
	// TaskProfilesRefresh re-fetches stale stored profiles from the AppView.
	TaskProfilesRefresh = "profiles:refresh"
)

// ReportDeliverPayload describes a report addressed to a single service.
type ReportDeliverPayload struct {
	RequestID string            `json:"request_id"`
	Service   string            `json:"service"`
	Endpoint  string            `json:"endpoint"`
	Report    feeds.ReportInput `json:"report"`
}

// Validate checks the fields required for delivery.
func (p ReportDeliverPayload) Validate() error {
	switch {
	case strings.TrimSpace(p.Service) == "":
		return errors.New("jobs: report service required")
	case strings.TrimSpace(p.Endpoint) == "":
		return errors.New("jobs: report endpoint required")
	case p.Report.Subject.PostURI == "" && p.Report.Subject.DID == "":
		return errors.New("jobs: report subject required")
	}
	return nil
}

// NewReportDeliverTask constructs an Asynq task.
func NewReportDeliverTask(payload ReportDeliverPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportDeliver, data), nil
}

// ProfilesRefreshPayload bounds one refresh run.
type ProfilesRefreshPayload struct {
	Limit int `json:"limit"`
}

// NewProfilesRefreshTask constructs an Asynq task.
func NewProfilesRefreshTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(ProfilesRefreshPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProfilesRefresh, data), nil
}
