package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/feedmod/feedmod/internal/modlog"
	"github.com/feedmod/feedmod/internal/profiles"
)

// Store is the role persistence contract.
type Store interface {
	GetRole(ctx context.Context, userDID, uri string) (Role, bool, error)
	ListUserAssignments(ctx context.Context, userDID string) ([]Assignment, error)
	ListAssignments(ctx context.Context, uris []string, roles []Role) ([]Assignment, error)
	UpsertAssignment(ctx context.Context, a Assignment) error
}

// AuditLog appends moderation log entries.
type AuditLog interface {
	Append(ctx context.Context, entry modlog.Entry) (modlog.Entry, error)
}

// TxRunner executes a role change and its audit entry atomically.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(Store, AuditLog) error) error
}

// ProfileLookup resolves display profiles for DIDs.
type ProfileLookup interface {
	GetBulk(ctx context.Context, dids []string) ([]profiles.Profile, error)
}

// DecisionRecorder observes authorization outcomes.
type DecisionRecorder interface {
	ObserveAuthzDecision(action string, allowed bool)
}

// Service answers role questions and applies role changes.
type Service struct {
	store    Store
	audit    AuditLog
	profiles ProfileLookup
	tx       TxRunner
	metrics  DecisionRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithProfiles enables profile enrichment of moderator listings.
func WithProfiles(lookup ProfileLookup) Option {
	return func(s *Service) { s.profiles = lookup }
}

// WithAtomicAudit runs the role upsert and audit append in one transaction.
func WithAtomicAudit(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// WithDecisionRecorder counts gate decisions.
func WithDecisionRecorder(rec DecisionRecorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// NewService constructs the permissions service.
func NewService(store Store, audit AuditLog, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, audit: audit, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveRole returns the role userDID holds on uri. Missing users, missing
// rows and read failures all resolve to RoleUser.
func (s *Service) ResolveRole(ctx context.Context, userDID, uri string) Role {
	userDID = strings.TrimSpace(userDID)
	uri = strings.TrimSpace(uri)
	if userDID == "" || uri == "" {
		return RoleUser
	}
	role, found, err := s.store.GetRole(ctx, userDID, uri)
	switch {
	case err != nil:
		s.logger.Warn("resolve role failed, using default",
			slog.String("user_did", userDID), slog.String("uri", uri), slog.Any("error", err))
		return RoleUser
	case !found:
		return RoleUser
	case !role.Valid():
		s.logger.Warn("stored role unknown, using default",
			slog.String("user_did", userDID), slog.String("uri", uri), slog.String("role", string(role)))
		return RoleUser
	default:
		return role
	}
}

// HighestRole returns the most privileged role userDID holds on any feed.
func (s *Service) HighestRole(ctx context.Context, userDID string) Role {
	userDID = strings.TrimSpace(userDID)
	if userDID == "" {
		return RoleUser
	}
	assignments, err := s.store.ListUserAssignments(ctx, userDID)
	if err != nil {
		s.logger.Warn("highest role lookup failed, using default",
			slog.String("user_did", userDID), slog.Any("error", err))
		return RoleUser
	}
	highest := RoleUser
	for _, a := range assignments {
		if a.Role.Valid() && a.Role.Rank() > highest.Rank() {
			highest = a.Role
		}
	}
	return highest
}

// CanPerformAction reports whether userDID may perform action on uri.
func (s *Service) CanPerformAction(ctx context.Context, userDID string, action Action, uri string) bool {
	allowed := false
	if strings.TrimSpace(userDID) != "" && strings.TrimSpace(uri) != "" {
		allowed = IsAllowed(s.ResolveRole(ctx, userDID, uri), action)
	}
	if s.metrics != nil {
		s.metrics.ObserveAuthzDecision(string(action), allowed)
	}
	return allowed
}

// SetRole assigns p.Role to p.TargetDID on p.URI on behalf of p.ActingDID
// and appends a moderation log entry. Without atomic audit a failed append
// leaves the role in place and returns ErrAuditIncomplete.
func (s *Service) SetRole(ctx context.Context, p SetRoleParams) error {
	p.TargetDID = strings.TrimSpace(p.TargetDID)
	p.URI = strings.TrimSpace(p.URI)
	p.ActingDID = strings.TrimSpace(p.ActingDID)
	p.FeedName = strings.TrimSpace(p.FeedName)
	switch {
	case p.TargetDID == "":
		return fmt.Errorf("%w: target did required", ErrInvalidInput)
	case p.URI == "":
		return fmt.Errorf("%w: uri required", ErrInvalidInput)
	case p.ActingDID == "":
		return fmt.Errorf("%w: acting did required", ErrInvalidInput)
	case !p.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, p.Role)
	}

	previous := s.ResolveRole(ctx, p.TargetDID, p.URI)
	action := roleChangeAction(previous, p.Role)
	if !s.CanPerformAction(ctx, p.ActingDID, action, p.URI) {
		return fmt.Errorf("%w: %s on %s", ErrForbidden, action, p.URI)
	}

	now := s.now().UTC()
	assignment := Assignment{
		UserDID:   p.TargetDID,
		URI:       p.URI,
		FeedName:  p.FeedName,
		Role:      p.Role,
		CreatedBy: p.ActingDID,
		CreatedAt: now,
	}
	entry := modlog.Entry{
		URI:           p.URI,
		PerformedBy:   p.ActingDID,
		Action:        string(action),
		TargetUserDID: p.TargetDID,
		Metadata: map[string]any{
			"role":          string(p.Role),
			"previous_role": string(previous),
			"feed_name":     p.FeedName,
		},
		CreatedAt: now,
	}

	if s.tx != nil {
		return s.tx.WithinTx(ctx, func(store Store, audit AuditLog) error {
			if err := store.UpsertAssignment(ctx, assignment); err != nil {
				return err
			}
			if _, err := audit.Append(ctx, entry); err != nil {
				return fmt.Errorf("permissions: append audit: %w", err)
			}
			return nil
		})
	}

	if err := s.store.UpsertAssignment(ctx, assignment); err != nil {
		return err
	}
	if _, err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("role changed without moderation log entry",
			slog.String("uri", p.URI),
			slog.String("target_did", p.TargetDID),
			slog.String("acting_did", p.ActingDID),
			slog.String("role", string(p.Role)),
			slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrAuditIncomplete, err)
	}
	return nil
}

// ListModeratorsForFeeds maps every requested uri to its moderators. Feeds
// without moderators map to an empty slice.
func (s *Service) ListModeratorsForFeeds(ctx context.Context, uris []string) (map[string][]Moderator, error) {
	uris = uniqueStrings(uris)
	result := make(map[string][]Moderator, len(uris))
	if len(uris) == 0 {
		return result, nil
	}
	rows, err := s.store.ListAssignments(ctx, uris, []Role{RoleMod})
	if err != nil {
		return nil, err
	}
	decorated, err := s.decorate(ctx, rows)
	if err != nil {
		return nil, err
	}
	for _, uri := range uris {
		result[uri] = []Moderator{}
	}
	for i, row := range rows {
		result[row.URI] = append(result[row.URI], decorated[i])
	}
	return result, nil
}

// ListModeratorsForFeedsOrdered is ListModeratorsForFeeds in input order.
func (s *Service) ListModeratorsForFeedsOrdered(ctx context.Context, uris []string) ([]FeedModerators, error) {
	byFeed, err := s.ListModeratorsForFeeds(ctx, uris)
	if err != nil {
		return nil, err
	}
	ordered := uniqueStrings(uris)
	out := make([]FeedModerators, 0, len(ordered))
	for _, uri := range ordered {
		out = append(out, FeedModerators{URI: uri, Moderators: byFeed[uri]})
	}
	return out, nil
}

// ListAllModeratorsForAdmin returns the moderators and admins of every
// feed adminDID administers, one entry per DID. A DID holding several roles
// keeps its highest; order follows first appearance.
func (s *Service) ListAllModeratorsForAdmin(ctx context.Context, adminDID string) ([]Moderator, error) {
	adminDID = strings.TrimSpace(adminDID)
	if adminDID == "" {
		return nil, fmt.Errorf("%w: admin did required", ErrInvalidInput)
	}
	held, err := s.store.ListUserAssignments(ctx, adminDID)
	if err != nil {
		return nil, err
	}
	var adminURIs []string
	for _, a := range held {
		if a.Role == RoleAdmin {
			adminURIs = append(adminURIs, a.URI)
		}
	}
	if len(adminURIs) == 0 {
		return []Moderator{}, nil
	}
	rows, err := s.store.ListAssignments(ctx, adminURIs, []Role{RoleMod, RoleAdmin})
	if err != nil {
		return nil, err
	}

	var unique []Assignment
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		if i, ok := index[row.UserDID]; ok {
			if row.Role.Rank() > unique[i].Role.Rank() {
				unique[i].Role = row.Role
			}
			continue
		}
		index[row.UserDID] = len(unique)
		unique = append(unique, row)
	}
	return s.decorate(ctx, unique)
}

// LogScope returns the feeds whose moderation log viewerDID may read.
func (s *Service) LogScope(ctx context.Context, viewerDID string) (modlog.Scope, error) {
	scope := modlog.Scope{
		RestrictedActions: []string{string(ActionModPromote), string(ActionModDemote)},
	}
	viewerDID = strings.TrimSpace(viewerDID)
	if viewerDID == "" {
		return scope, nil
	}
	held, err := s.store.ListUserAssignments(ctx, viewerDID)
	if err != nil {
		return modlog.Scope{}, err
	}
	for _, a := range held {
		if !a.Role.AtLeast(RoleMod) {
			continue
		}
		scope.URIs = append(scope.URIs, a.URI)
		if a.Role == RoleAdmin {
			scope.AdminURIs = append(scope.AdminURIs, a.URI)
		}
	}
	return scope, nil
}

// decorate returns one Moderator per row, aligned by index, using a single
// profile lookup for the distinct DIDs.
func (s *Service) decorate(ctx context.Context, rows []Assignment) ([]Moderator, error) {
	out := make([]Moderator, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	byDID := make(map[string]profiles.Profile)
	if s.profiles != nil {
		dids := make([]string, 0, len(rows))
		for _, row := range rows {
			dids = append(dids, row.UserDID)
		}
		found, err := s.profiles.GetBulk(ctx, uniqueStrings(dids))
		if err != nil {
			return nil, fmt.Errorf("permissions: load profiles: %w", err)
		}
		for _, p := range found {
			byDID[p.DID] = p
		}
	}
	for i, row := range rows {
		p := byDID[row.UserDID]
		out[i] = Moderator{
			DID:         row.UserDID,
			Handle:      p.Handle,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Role:        row.Role,
		}
	}
	return out, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
