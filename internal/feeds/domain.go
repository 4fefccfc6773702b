// Package feeds talks to the AppView for feed pages, profiles and reports.
package feeds

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 100
	// profileChunk is the AppView's getProfiles actor limit.
	profileChunk = 25
)

// Params selects a page of a feed generator.
type Params struct {
	DID      string
	FeedName string
	Limit    int
	Cursor   string
}

// FeedURI returns the generator record URI for the params.
func (p Params) FeedURI() string {
	return FeedURI(p.DID, p.FeedName)
}

// FeedURI builds the at:// URI of a feed generator record.
func FeedURI(did, feedName string) string {
	return fmt.Sprintf("at://%s/app.bsky.feed.generator/%s", did, feedName)
}

// Author is the basic profile attached to a post.
type Author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Post is a post view as returned by the AppView.
type Post struct {
	URI         string          `json:"uri"`
	CID         string          `json:"cid"`
	Author      Author          `json:"author"`
	Record      json.RawMessage `json:"record,omitempty"`
	Embed       json.RawMessage `json:"embed,omitempty"`
	ReplyCount  int             `json:"replyCount,omitempty"`
	RepostCount int             `json:"repostCount,omitempty"`
	LikeCount   int             `json:"likeCount,omitempty"`
	IndexedAt   time.Time       `json:"indexedAt"`
}

// Item is one entry of a feed page.
type Item struct {
	Post   Post            `json:"post"`
	Reason json.RawMessage `json:"reason,omitempty"`
}

// Page is one page of a feed.
type Page struct {
	Feed   []Item `json:"feed"`
	Cursor string `json:"cursor,omitempty"`
}

// Subject identifies what a report is about: a post when PostURI is set,
// otherwise the account DID.
type Subject struct {
	DID     string `json:"did,omitempty"`
	PostURI string `json:"post_uri,omitempty"`
	PostCID string `json:"post_cid,omitempty"`
}

// ReportInput is sent to a moderation service.
type ReportInput struct {
	ReasonType string  `json:"reason_type"`
	Reason     string  `json:"reason,omitempty"`
	Subject    Subject `json:"subject"`
}
