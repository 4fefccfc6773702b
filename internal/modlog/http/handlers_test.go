package modloghttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmod/feedmod/internal/modlog"
	"github.com/feedmod/feedmod/internal/shared"
)

type stubLogService struct {
	result      modlog.Result
	lastScope   modlog.Scope
	lastFilters modlog.Filters
	calls       int
}

func (s *stubLogService) List(ctx context.Context, scope modlog.Scope, filters modlog.Filters) (modlog.Result, error) {
	s.calls++
	s.lastScope = scope
	s.lastFilters = filters
	return s.result, nil
}

type stubScopes struct {
	scope  modlog.Scope
	viewer string
}

func (s *stubScopes) LogScope(ctx context.Context, viewerDID string) (modlog.Scope, error) {
	s.viewer = viewerDID
	return s.scope, nil
}

func withUser(req *http.Request, did string) *http.Request {
	sess := &shared.Session{}
	sess.SetUser(did)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestListRequiresSession(t *testing.T) {
	svc := &stubLogService{}
	h := NewHandler(nil, svc, &stubScopes{})
	rr := httptest.NewRecorder()
	h.handleList(rr, httptest.NewRequest(http.MethodGet, "/logs", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, svc.calls)
}

func TestListPassesScopeAndFilters(t *testing.T) {
	svc := &stubLogService{result: modlog.Result{
		Entries: []modlog.Entry{{ID: "01", URI: "at://feed/1", Action: "post_delete"}},
		Paging:  modlog.PagingInfo{Page: 2, PageSize: 10},
	}}
	scopes := &stubScopes{scope: modlog.Scope{URIs: []string{"at://feed/1"}}}
	h := NewHandler(nil, svc, scopes)

	req := httptest.NewRequest(http.MethodGet, "/logs?uri=at://feed/1&action=post_delete&from=2024-03-01&to=2024-03-10&sort=asc&page=2&page_size=10", nil)
	rr := httptest.NewRecorder()
	h.handleList(rr, withUser(req, "did:plc:mod"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "did:plc:mod", scopes.viewer)
	assert.Equal(t, []string{"at://feed/1"}, svc.lastScope.URIs)
	assert.Equal(t, "post_delete", svc.lastFilters.Action)
	assert.True(t, svc.lastFilters.Ascending)
	assert.Equal(t, 2, svc.lastFilters.Page)
	assert.Equal(t, 10, svc.lastFilters.PageSize)
	assert.Equal(t, "2024-03-01", svc.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), svc.lastFilters.To)

	var body modlog.Result
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "post_delete", body.Entries[0].Action)
}

func TestListRejectsBadFilters(t *testing.T) {
	cases := []string{
		"/logs?page=0",
		"/logs?page=9223372036854775807",
		"/logs?page_size=abc",
		"/logs?from=yesterday",
		"/logs?from=2024-03-10&to=2024-03-01",
		"/logs?sort=sideways",
	}
	for _, target := range cases {
		t.Run(target, func(t *testing.T) {
			svc := &stubLogService{}
			h := NewHandler(nil, svc, &stubScopes{})
			rr := httptest.NewRecorder()
			h.handleList(rr, withUser(httptest.NewRequest(http.MethodGet, target, nil), "did:plc:mod"))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Zero(t, svc.calls)
		})
	}
}

func TestListClampsPageSize(t *testing.T) {
	svc := &stubLogService{}
	h := NewHandler(nil, svc, &stubScopes{})
	rr := httptest.NewRecorder()
	h.handleList(rr, withUser(httptest.NewRequest(http.MethodGet, "/logs?page_size=500", nil), "did:plc:mod"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, maxPageSize, svc.lastFilters.PageSize)
}

func TestListTimestampUpperBoundIsExact(t *testing.T) {
	svc := &stubLogService{}
	h := NewHandler(nil, svc, &stubScopes{})
	rr := httptest.NewRecorder()
	h.handleList(rr, withUser(httptest.NewRequest(http.MethodGet, "/logs?to=2024-03-10T12:00:00Z", nil), "did:plc:mod"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), svc.lastFilters.To)
}

func TestListNinetyDayRangeOfPlainDates(t *testing.T) {
	svc := &stubLogService{}
	h := NewHandler(nil, svc, &stubScopes{})
	rr := httptest.NewRecorder()
	h.handleList(rr, withUser(httptest.NewRequest(http.MethodGet, "/logs?from=2024-01-01&to=2024-03-31", nil), "did:plc:mod"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), svc.lastFilters.To)
}
