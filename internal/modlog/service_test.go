package modlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	appended []Entry
	rows     []Entry
	lastList Query
	lists    int
	err      error
}

func (s *stubStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	if s.err != nil {
		return Entry{}, s.err
	}
	entry.ID = "01TEST"
	s.appended = append(s.appended, entry)
	return entry, nil
}

func (s *stubStore) List(ctx context.Context, q Query) ([]Entry, error) {
	s.lists++
	s.lastList = q
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func TestAppendValidatesRequiredFields(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil)

	_, err := svc.Append(context.Background(), Entry{URI: "at://feed", Action: "post_delete"})
	require.ErrorIs(t, err, ErrInvalidEntry)

	saved, err := svc.Append(context.Background(), Entry{URI: " at://feed ", PerformedBy: "did:plc:a", Action: "post_delete"})
	require.NoError(t, err)
	assert.Equal(t, "at://feed", saved.URI)
	assert.Len(t, store.appended, 1)
}

func TestListEmptyScopeSkipsStore(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil)

	result, err := svc.List(context.Background(), Scope{}, Filters{})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	assert.NotNil(t, result.Entries)
	assert.Zero(t, store.lists)
}

func TestListURIOutsideScopeSkipsStore(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil)

	result, err := svc.List(context.Background(), Scope{URIs: []string{"at://a"}}, Filters{URI: "at://b"})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	assert.Zero(t, store.lists)
}

func TestListPaging(t *testing.T) {
	store := &stubStore{rows: []Entry{{ID: "3"}, {ID: "2"}, {ID: "1"}}}
	svc := NewService(store, nil)

	result, err := svc.List(context.Background(), Scope{URIs: []string{"at://a", "at://b"}, AdminURIs: []string{"at://a"}, RestrictedActions: []string{"mod_promote"}}, Filters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 3, result.Paging.NextPage)
	assert.Equal(t, 3, store.lastList.Limit)
	assert.Equal(t, 2, store.lastList.Offset)
	assert.Equal(t, []string{"at://a"}, store.lastList.AdminURIs)
	assert.Equal(t, []string{"mod_promote"}, store.lastList.RestrictedActions)
}

func TestListClampsPage(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil)

	result, err := svc.List(context.Background(), Scope{URIs: []string{"at://a"}}, Filters{Page: int(^uint(0) >> 1), PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, MaxPage, result.Paging.Page)
	assert.Equal(t, (MaxPage-1)*50, store.lastList.Offset)
	assert.Positive(t, store.lastList.Offset)
}

func TestListClampsPageSize(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil)

	result, err := svc.List(context.Background(), Scope{URIs: []string{"at://a"}}, Filters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Paging.PageSize)
	assert.Equal(t, 51, store.lastList.Limit)
	assert.NotNil(t, store.lastList.AdminURIs)
}

func TestListNarrowsToRequestedURI(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil)

	_, err := svc.List(context.Background(), Scope{URIs: []string{"at://a", "at://b"}}, Filters{URI: "at://b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"at://b"}, store.lastList.URIs)
}

func TestListPropagatesStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("boom")}
	svc := NewService(store, nil)

	_, err := svc.List(context.Background(), Scope{URIs: []string{"at://a"}}, Filters{})
	require.Error(t, err)
}

func TestBuildListQueryRestrictsAdminActions(t *testing.T) {
	sql, args := buildListQuery(Query{
		URIs:              []string{"at://a"},
		AdminURIs:         []string{},
		RestrictedActions: []string{"mod_promote", "mod_demote"},
		PerformedBy:       "did:plc:x",
		From:              time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Ascending:         true,
		Limit:             21,
	})
	assert.Contains(t, sql, "uri = ANY($1)")
	assert.Contains(t, sql, "(action <> ALL($2) OR uri = ANY($3))")
	assert.Contains(t, sql, "performed_by = $4")
	assert.Contains(t, sql, "created_at >= $5")
	assert.Contains(t, sql, "ORDER BY created_at ASC, id ASC")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(sql), "LIMIT $6 OFFSET $7"))
	assert.Len(t, args, 7)
	assert.Equal(t, 21, args[5])
}
