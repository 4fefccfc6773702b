package modlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feedmod/feedmod/internal/ids"
	"github.com/feedmod/feedmod/internal/platform/db"
)

// Repository persists entries in moderation_logs.
type Repository struct {
	db db.DBTX
}

// NewRepository builds a Repository over a pool or a transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Append inserts the entry, assigning an id and timestamp when missing.
func (r *Repository) Append(ctx context.Context, entry Entry) (Entry, error) {
	if r == nil || r.db == nil {
		return Entry{}, errors.New("modlog: database connection unavailable")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = ids.NewAt(entry.CreatedAt)
	}
	meta := []byte("{}")
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return Entry{}, fmt.Errorf("modlog: marshal metadata: %w", err)
		}
		meta = raw
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO moderation_logs (id, uri, performed_by, action, target_user_did, target_post_uri, metadata, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
	`, entry.ID, entry.URI, entry.PerformedBy, entry.Action, entry.TargetUserDID, entry.TargetPostURI, meta, entry.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("modlog: append: %w", err)
	}
	return entry, nil
}

// List returns entries matching q, newest first unless q.Ascending.
func (r *Repository) List(ctx context.Context, q Query) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("modlog: database connection unavailable")
	}
	sql, args := buildListQuery(q)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("modlog: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			targetUser *string
			targetPost *string
			rawMeta    []byte
		)
		if err := rows.Scan(&e.ID, &e.URI, &e.PerformedBy, &e.Action, &targetUser, &targetPost, &rawMeta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if targetUser != nil {
			e.TargetUserDID = *targetUser
		}
		if targetPost != nil {
			e.TargetPostURI = *targetPost
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("modlog: decode metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func buildListQuery(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "uri = ANY("+arg(q.URIs)+")")
	if len(q.RestrictedActions) > 0 {
		where = append(where, fmt.Sprintf("(action <> ALL(%s) OR uri = ANY(%s))", arg(q.RestrictedActions), arg(q.AdminURIs)))
	}
	if q.Action != "" {
		where = append(where, "action = "+arg(q.Action))
	}
	if q.PerformedBy != "" {
		where = append(where, "performed_by = "+arg(q.PerformedBy))
	}
	if q.TargetUserDID != "" {
		where = append(where, "target_user_did = "+arg(q.TargetUserDID))
	}
	if !q.From.IsZero() {
		where = append(where, "created_at >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "created_at < "+arg(q.To))
	}

	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}
	sql := fmt.Sprintf(`
		SELECT id, uri, performed_by, action, target_user_did, target_post_uri, metadata, created_at
		FROM moderation_logs
		WHERE %s
		ORDER BY created_at %s, id %s
		LIMIT %s OFFSET %s`,
		strings.Join(where, " AND "), order, order, arg(q.Limit), arg(q.Offset))
	return sql, args
}
