package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrInvalidProfile is returned when a profile cannot be saved.
var ErrInvalidProfile = errors.New("profiles: invalid profile")

// Store is the persistence contract used by Service.
type Store interface {
	GetMany(ctx context.Context, dids []string) ([]Profile, error)
	Upsert(ctx context.Context, p Profile) error
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Fetcher resolves profiles from a remote source.
type Fetcher interface {
	GetProfiles(ctx context.Context, dids []string) ([]Profile, error)
}

// Service resolves profiles through cache, database and remote fetcher.
type Service struct {
	store  Store
	cache  *Cache
	remote Fetcher
	logger *slog.Logger
	group  singleflight.Group
	maxAge time.Duration
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCache enables the Redis profile cache.
func WithCache(cache *Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithFetcher enables remote lookups for DIDs missing locally.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) { s.remote = f }
}

// WithMaxAge sets the age after which stored profiles are refreshed.
func WithMaxAge(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// NewService constructs a profile service.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger, maxAge: 24 * time.Hour, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBulk returns one profile per distinct DID, in input order. DIDs
// unknown to every source yield a profile carrying only the DID.
func (s *Service) GetBulk(ctx context.Context, dids []string) ([]Profile, error) {
	dids = uniqueDIDs(dids)
	if len(dids) == 0 {
		return []Profile{}, nil
	}

	found, err := s.cache.GetMany(ctx, dids)
	if err != nil {
		s.logger.Warn("profile cache read failed", slog.Any("error", err))
	}

	var misses []string
	for _, did := range dids {
		if _, ok := found[did]; !ok {
			misses = append(misses, did)
		}
	}
	if len(misses) > 0 {
		loaded, err := s.loadShared(ctx, misses)
		if err != nil {
			return nil, err
		}
		toCache := make([]Profile, 0, len(loaded))
		for did, p := range loaded {
			found[did] = p
			toCache = append(toCache, p)
		}
		if err := s.cache.SetMany(ctx, toCache); err != nil {
			s.logger.Warn("profile cache write failed", slog.Any("error", err))
		}
	}

	out := make([]Profile, 0, len(dids))
	for _, did := range dids {
		if p, ok := found[did]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, Profile{DID: did})
	}
	return out, nil
}

// Get returns a single profile.
func (s *Service) Get(ctx context.Context, did string) (Profile, error) {
	profiles, err := s.GetBulk(ctx, []string{did})
	if err != nil {
		return Profile{}, err
	}
	if len(profiles) == 0 {
		return Profile{}, fmt.Errorf("%w: did required", ErrInvalidProfile)
	}
	return profiles[0], nil
}

// Save stores a profile and drops its cached copy.
func (s *Service) Save(ctx context.Context, p Profile) error {
	p.DID = strings.TrimSpace(p.DID)
	if p.DID == "" {
		return fmt.Errorf("%w: did required", ErrInvalidProfile)
	}
	p.Handle = NormalizeHandle(p.Handle)
	if p.Handle == "" {
		return fmt.Errorf("%w: handle required", ErrInvalidProfile)
	}
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.UpdatedAt = s.now().UTC()
	if err := s.store.Upsert(ctx, p); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, p.DID); err != nil {
		s.logger.Warn("profile cache invalidate failed", slog.String("did", p.DID), slog.Any("error", err))
	}
	return nil
}

// RefreshStale re-fetches up to limit profiles older than the max age
// and returns how many were updated.
func (s *Service) RefreshStale(ctx context.Context, limit int) (int, error) {
	if s.remote == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}
	dids, err := s.store.ListStale(ctx, s.now().Add(-s.maxAge), limit)
	if err != nil {
		return 0, err
	}
	if len(dids) == 0 {
		return 0, nil
	}
	fetched, err := s.remote.GetProfiles(ctx, dids)
	if err != nil {
		return 0, fmt.Errorf("profiles: refresh fetch: %w", err)
	}
	updated := 0
	for _, p := range fetched {
		if err := s.Save(ctx, p); err != nil {
			s.logger.Warn("profile refresh save failed", slog.String("did", p.DID), slog.Any("error", err))
			continue
		}
		updated++
	}
	return updated, nil
}

// loadShared collapses concurrent loads of the same DID set.
func (s *Service) loadShared(ctx context.Context, dids []string) (map[string]Profile, error) {
	keyParts := append([]string(nil), dids...)
	sort.Strings(keyParts)
	ch := s.group.DoChan(strings.Join(keyParts, ","), func() (interface{}, error) {
		return s.load(ctx, dids)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]Profile), nil
	}
}

func (s *Service) load(ctx context.Context, dids []string) (map[string]Profile, error) {
	if s.store == nil {
		return nil, fmt.Errorf("profiles: store not configured")
	}
	stored, err := s.store.GetMany(ctx, dids)
	if err != nil {
		return nil, err
	}
	loaded := make(map[string]Profile, len(dids))
	for _, p := range stored {
		loaded[p.DID] = p
	}
	if s.remote == nil || len(loaded) == len(dids) {
		return loaded, nil
	}

	var missing []string
	for _, did := range dids {
		if _, ok := loaded[did]; !ok {
			missing = append(missing, did)
		}
	}
	fetched, err := s.remote.GetProfiles(ctx, missing)
	if err != nil {
		s.logger.Warn("remote profile fetch failed", slog.Int("count", len(missing)), slog.Any("error", err))
		return loaded, nil
	}
	for _, p := range fetched {
		if p.DID == "" {
			continue
		}
		p.Handle = NormalizeHandle(p.Handle)
		p.UpdatedAt = s.now().UTC()
		if err := s.store.Upsert(ctx, p); err != nil {
			s.logger.Warn("profile upsert failed", slog.String("did", p.DID), slog.Any("error", err))
		}
		loaded[p.DID] = p
	}
	return loaded, nil
}
