// Package modlog records and lists moderation log entries.
package modlog

import "time"

// Entry is an append-only record of a performed moderation action.
type Entry struct {
	ID            string         `json:"id"`
	URI           string         `json:"uri"`
	PerformedBy   string         `json:"performed_by"`
	Action        string         `json:"action"`
	TargetUserDID string         `json:"target_user_did,omitempty"`
	TargetPostURI string         `json:"target_post_uri,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Scope limits which feeds a viewer may read logs for.
type Scope struct {
	// URIs are the feeds the viewer moderates or administers.
	URIs []string
	// AdminURIs is the subset of URIs where RestrictedActions are visible.
	AdminURIs []string
	// RestrictedActions are hidden outside AdminURIs.
	RestrictedActions []string
}

// Empty reports whether the scope grants access to nothing.
func (s Scope) Empty() bool {
	return len(s.URIs) == 0
}

// Filters holds the optional criteria for listing log entries.
type Filters struct {
	URI           string
	Action        string
	PerformedBy   string
	TargetUserDID string
	From          time.Time
	To            time.Time
	Ascending     bool
	Page          int
	PageSize      int
}

// Query is the store-level request built from a Scope and Filters.
type Query struct {
	URIs              []string
	AdminURIs         []string
	RestrictedActions []string
	Action            string
	PerformedBy       string
	TargetUserDID     string
	From              time.Time
	To                time.Time
	Ascending         bool
	Limit             int
	Offset            int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a page of entries.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}
