package modlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidEntry is returned when an entry lacks a required field.
var ErrInvalidEntry = errors.New("modlog: invalid entry")

// MaxPage bounds the page number so the computed offset stays in range.
const MaxPage = 10000

// Store is the persistence contract used by Service.
type Store interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, q Query) ([]Entry, error)
}

// Service appends and reads moderation log entries.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Append validates and stores a single entry.
func (s *Service) Append(ctx context.Context, entry Entry) (Entry, error) {
	if s.store == nil {
		return Entry{}, fmt.Errorf("modlog: store not configured")
	}
	entry.URI = strings.TrimSpace(entry.URI)
	entry.PerformedBy = strings.TrimSpace(entry.PerformedBy)
	entry.Action = strings.TrimSpace(entry.Action)
	switch {
	case entry.URI == "":
		return Entry{}, fmt.Errorf("%w: uri required", ErrInvalidEntry)
	case entry.PerformedBy == "":
		return Entry{}, fmt.Errorf("%w: performed_by required", ErrInvalidEntry)
	case entry.Action == "":
		return Entry{}, fmt.Errorf("%w: action required", ErrInvalidEntry)
	}
	return s.store.Append(ctx, entry)
}

// List returns one page of entries visible within scope.
func (s *Service) List(ctx context.Context, scope Scope, filters Filters) (Result, error) {
	if s.store == nil {
		return Result{}, fmt.Errorf("modlog: store not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	empty := Result{Entries: []Entry{}, Paging: PagingInfo{Page: page, PageSize: pageSize}}

	uris := scope.URIs
	if uri := strings.TrimSpace(filters.URI); uri != "" {
		if !contains(scope.URIs, uri) {
			return empty, nil
		}
		uris = []string{uri}
	}
	if len(uris) == 0 {
		return empty, nil
	}

	q := Query{
		URIs:              uris,
		AdminURIs:         scope.AdminURIs,
		RestrictedActions: scope.RestrictedActions,
		Action:            strings.TrimSpace(filters.Action),
		PerformedBy:       strings.TrimSpace(filters.PerformedBy),
		TargetUserDID:     strings.TrimSpace(filters.TargetUserDID),
		From:              filters.From,
		To:                filters.To,
		Ascending:         filters.Ascending,
		Limit:             pageSize + 1,
		Offset:            (page - 1) * pageSize,
	}
	if q.AdminURIs == nil {
		q.AdminURIs = []string{}
	}
	entries, err := s.store.List(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	if entries == nil {
		entries = []Entry{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
