package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/feedmod/feedmod/internal/modlog"
	"github.com/feedmod/feedmod/internal/platform/db"
)

// Repository stores role assignments in feed_permissions.
type Repository struct {
	db db.DBTX
}

// NewRepository builds a Repository over a pool or a transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// GetRole returns the stored role, reporting false when no row exists.
func (r *Repository) GetRole(ctx context.Context, userDID, uri string) (Role, bool, error) {
	var role string
	err := r.db.QueryRow(ctx, `
		SELECT role FROM feed_permissions WHERE user_did = $1 AND uri = $2
	`, userDID, uri).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("permissions: get role: %w", err)
	}
	return Role(role), true, nil
}

// ListUserAssignments returns every assignment held by userDID.
func (r *Repository) ListUserAssignments(ctx context.Context, userDID string) ([]Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_did, uri, feed_name, role, created_by, created_at
		FROM feed_permissions
		WHERE user_did = $1
		ORDER BY created_at, uri
	`, userDID)
	if err != nil {
		return nil, fmt.Errorf("permissions: list user assignments: %w", err)
	}
	return scanAssignments(rows)
}

// ListAssignments returns the assignments on uris holding one of roles.
func (r *Repository) ListAssignments(ctx context.Context, uris []string, roles []Role) ([]Assignment, error) {
	rawRoles := make([]string, len(roles))
	for i, role := range roles {
		rawRoles[i] = string(role)
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_did, uri, feed_name, role, created_by, created_at
		FROM feed_permissions
		WHERE uri = ANY($1) AND role = ANY($2)
		ORDER BY created_at, user_did
	`, uris, rawRoles)
	if err != nil {
		return nil, fmt.Errorf("permissions: list assignments: %w", err)
	}
	return scanAssignments(rows)
}

// UpsertAssignment writes a by (user_did, uri); the last writer wins.
func (r *Repository) UpsertAssignment(ctx context.Context, a Assignment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO feed_permissions (user_did, uri, feed_name, role, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_did, uri) DO UPDATE
		SET feed_name = EXCLUDED.feed_name,
		    role = EXCLUDED.role,
		    created_by = EXCLUDED.created_by,
		    created_at = EXCLUDED.created_at
	`, a.UserDID, a.URI, a.FeedName, string(a.Role), a.CreatedBy, a.CreatedAt)
	if err != nil {
		if db.PgErrorCode(err) == db.CodeForeignKeyViolation {
			return fmt.Errorf("%w: feed %s", ErrNotFound, a.URI)
		}
		return fmt.Errorf("permissions: upsert assignment: %w", err)
	}
	return nil
}

func scanAssignments(rows pgx.Rows) ([]Assignment, error) {
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var (
			a    Assignment
			role string
		)
		if err := rows.Scan(&a.UserDID, &a.URI, &a.FeedName, &role, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Transactor runs a role change and its log entry in one transaction.
type Transactor struct {
	pool db.TxBeginner
}

// NewTransactor builds a Transactor over a pool.
func NewTransactor(pool db.TxBeginner) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx calls fn with a store and audit log bound to the same transaction.
func (t *Transactor) WithinTx(ctx context.Context, fn func(Store, AuditLog) error) error {
	return db.WithTx(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(NewRepository(tx), modlog.NewRepository(tx))
	})
}
