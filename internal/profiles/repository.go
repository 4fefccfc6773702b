package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feedmod/feedmod/internal/platform/db"
)

// Repository persists profiles in Postgres.
type Repository struct {
	db db.DBTX
}

// NewRepository builds a profile repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// GetMany loads the stored profiles among dids.
func (r *Repository) GetMany(ctx context.Context, dids []string) ([]Profile, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("profiles: database connection unavailable")
	}
	rows, err := r.db.Query(ctx, `
		SELECT did, handle, display_name, avatar, updated_at
		FROM profiles
		WHERE did = ANY($1)
	`, dids)
	if err != nil {
		return nil, fmt.Errorf("profiles: get many: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.DID, &p.Handle, &p.DisplayName, &p.Avatar, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the profile for p.DID.
func (r *Repository) Upsert(ctx context.Context, p Profile) error {
	if r == nil || r.db == nil {
		return errors.New("profiles: database connection unavailable")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (did, handle, display_name, avatar, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (did) DO UPDATE
		SET handle = EXCLUDED.handle,
		    display_name = EXCLUDED.display_name,
		    avatar = EXCLUDED.avatar,
		    updated_at = EXCLUDED.updated_at
	`, p.DID, p.Handle, p.DisplayName, p.Avatar, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("profiles: upsert: %w", err)
	}
	return nil
}

// ListStale returns DIDs whose profile was last refreshed before cutoff.
func (r *Repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("profiles: database connection unavailable")
	}
	rows, err := r.db.Query(ctx, `
		SELECT did FROM profiles
		WHERE updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("profiles: list stale: %w", err)
	}
	defer rows.Close()

	var dids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, err
		}
		dids = append(dids, did)
	}
	return dids, rows.Err()
}
