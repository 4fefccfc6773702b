package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedmod/feedmod/internal/profiles"
)

// ErrInvalidParams is returned for malformed feed requests.
var ErrInvalidParams = errors.New("feeds: invalid params")

// Client wraps interactions with the AppView XRPC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Ping checks if the AppView is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/xrpc/_health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("appview returned status %d", resp.StatusCode)
	}
	return nil
}

// GetFeed fetches one page of a feed generator.
func (c *Client) GetFeed(ctx context.Context, p Params) (Page, error) {
	p.DID = strings.TrimSpace(p.DID)
	p.FeedName = strings.TrimSpace(p.FeedName)
	if p.DID == "" || p.FeedName == "" {
		return Page{}, fmt.Errorf("%w: did and feed name required", ErrInvalidParams)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := url.Values{}
	query.Set("feed", p.FeedURI())
	query.Set("limit", strconv.Itoa(limit))
	if p.Cursor != "" {
		query.Set("cursor", p.Cursor)
	}

	var page Page
	if err := c.getJSON(ctx, "app.bsky.feed.getFeed", query, &page); err != nil {
		return Page{}, err
	}
	if page.Feed == nil {
		page.Feed = []Item{}
	}
	return page, nil
}

// GetProfiles resolves profiles in chunks, fetching chunks concurrently.
func (c *Client) GetProfiles(ctx context.Context, dids []string) ([]profiles.Profile, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	chunks := make([][]string, 0, (len(dids)+profileChunk-1)/profileChunk)
	for start := 0; start < len(dids); start += profileChunk {
		end := start + profileChunk
		if end > len(dids) {
			end = len(dids)
		}
		chunks = append(chunks, dids[start:end])
	}

	results := make([][]profiles.Profile, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, chunk := range chunks {
		g.Go(func() error {
			query := url.Values{}
			for _, did := range chunk {
				query.Add("actors", did)
			}
			var resp struct {
				Profiles []Author `json:"profiles"`
			}
			if err := c.getJSON(gctx, "app.bsky.actor.getProfiles", query, &resp); err != nil {
				return err
			}
			out := make([]profiles.Profile, 0, len(resp.Profiles))
			for _, a := range resp.Profiles {
				out = append(out, profiles.Profile{DID: a.DID, Handle: a.Handle, DisplayName: a.DisplayName, Avatar: a.Avatar})
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []profiles.Profile
	for _, chunk := range results {
		all = append(all, chunk...)
	}
	return all, nil
}

// CreateReport files a report with the moderation service at serviceURL.
func (c *Client) CreateReport(ctx context.Context, serviceURL, token string, in ReportInput) error {
	subject := map[string]string{}
	switch {
	case in.Subject.PostURI != "":
		subject["$type"] = "com.atproto.repo.strongRef"
		subject["uri"] = in.Subject.PostURI
		subject["cid"] = in.Subject.PostCID
	case in.Subject.DID != "":
		subject["$type"] = "com.atproto.admin.defs#repoRef"
		subject["did"] = in.Subject.DID
	default:
		return fmt.Errorf("%w: report subject required", ErrInvalidParams)
	}
	body, err := json.Marshal(map[string]any{
		"reasonType": in.ReasonType,
		"reason":     in.Reason,
		"subject":    subject,
	})
	if err != nil {
		return err
	}

	base := strings.TrimRight(serviceURL, "/")
	if base == "" {
		base = c.baseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/xrpc/com.atproto.moderation.createReport", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &StatusError{Method: "com.atproto.moderation.createReport", Status: resp.StatusCode}
	}
	return nil
}

// StatusError reports a non-success XRPC response.
type StatusError struct {
	Method string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Method, e.Status)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func (c *Client) getJSON(ctx context.Context, method string, query url.Values, dest any) error {
	endpoint := fmt.Sprintf("%s/xrpc/%s?%s", c.baseURL, method, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Status: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
