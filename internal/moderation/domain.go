// Package moderation performs gated moderation actions and fans out post
// reports to external moderation services.
package moderation

import (
	"errors"

	"github.com/feedmod/feedmod/internal/permissions"
)

var (
	// ErrInvalidInput indicates a malformed event or report.
	ErrInvalidInput = errors.New("moderation: invalid input")
	// ErrForbidden indicates the acting user may not perform the action.
	ErrForbidden = errors.New("moderation: forbidden")
)

// ActionReport is the log action recorded when a user files a report.
const ActionReport = "report"

// Report reason types understood by moderation services.
const (
	ReasonSpam       = "com.atproto.moderation.defs#reasonSpam"
	ReasonViolation  = "com.atproto.moderation.defs#reasonViolation"
	ReasonMisleading = "com.atproto.moderation.defs#reasonMisleading"
	ReasonSexual     = "com.atproto.moderation.defs#reasonSexual"
	ReasonRude       = "com.atproto.moderation.defs#reasonRude"
	ReasonOther      = "com.atproto.moderation.defs#reasonOther"
)

var reasonTypes = map[string]bool{
	ReasonSpam:       true,
	ReasonViolation:  true,
	ReasonMisleading: true,
	ReasonSexual:     true,
	ReasonRude:       true,
	ReasonOther:      true,
}

// ServiceConfig is a moderation service reports can be sent to.
type ServiceConfig struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	AdminDID string `json:"admin_did"`
	URL      string `json:"-"`
}

// Event is a post or user moderation action on a feed.
type Event struct {
	Action        permissions.Action
	ActingDID     string
	URI           string
	TargetUserDID string
	TargetPostURI string
	Reason        string
}

// Report is a user's request to have a post or account reviewed.
type Report struct {
	ActingDID      string   `validate:"required,startswith=did:"`
	URI            string   `validate:"required,startswith=at://"`
	FeedName       string   `validate:"max=300"`
	TargetPostURI  string   `validate:"required_without=TargetUserDID"`
	TargetPostCID  string   `validate:"max=128"`
	TargetUserDID  string   `validate:"required_without=TargetPostURI"`
	ReasonType     string   `validate:"required"`
	AdditionalInfo string   `validate:"max=300"`
	ToServices     []string `validate:"min=1,dive,required"`
}

// Receipt confirms which services a report was queued for.
type Receipt struct {
	RequestID string   `json:"request_id"`
	Services  []string `json:"services"`
	Failed    []string `json:"failed,omitempty"`
}
