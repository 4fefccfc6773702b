package feedshttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmod/feedmod/internal/feeds"
)

type stubSource struct {
	page  feeds.Page
	err   error
	last  feeds.Params
	calls int
}

func (s *stubSource) GetFeed(ctx context.Context, p feeds.Params) (feeds.Page, error) {
	s.calls++
	s.last = p
	return s.page, s.err
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestFeedPassesParams(t *testing.T) {
	src := &stubSource{page: feeds.Page{Feed: []feeds.Item{}, Cursor: "c2"}}
	rr := serve(NewHandler(nil, src), "/feeds/did:plc:o/cool?cursor=c1&limit=20")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, feeds.Params{DID: "did:plc:o", FeedName: "cool", Cursor: "c1", Limit: 20}, src.last)
	assert.JSONEq(t, `{"feed":[],"cursor":"c2"}`, rr.Body.String())
}

func TestFeedRejectsBadInput(t *testing.T) {
	src := &stubSource{}
	assert.Equal(t, http.StatusBadRequest, serve(NewHandler(nil, src), "/feeds/bob/cool").Code)
	assert.Equal(t, http.StatusBadRequest, serve(NewHandler(nil, src), "/feeds/did:plc:o/cool?limit=-1").Code)
	assert.Zero(t, src.calls)
}

func TestFeedMapsUpstreamErrors(t *testing.T) {
	src := &stubSource{err: &feeds.StatusError{Method: "app.bsky.feed.getFeed", Status: http.StatusBadRequest}}
	assert.Equal(t, http.StatusNotFound, serve(NewHandler(nil, src), "/feeds/did:plc:o/cool").Code)

	src.err = &feeds.StatusError{Method: "app.bsky.feed.getFeed", Status: http.StatusServiceUnavailable}
	assert.Equal(t, http.StatusBadGateway, serve(NewHandler(nil, src), "/feeds/did:plc:o/cool").Code)
}
