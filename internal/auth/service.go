package auth

import (
	"context"
	"fmt"

	"github.com/feedmod/feedmod/internal/permissions"
	"github.com/feedmod/feedmod/internal/profiles"
)

// ProfileStore persists and reads signed-in profiles.
type ProfileStore interface {
	Save(ctx context.Context, p profiles.Profile) error
	Get(ctx context.Context, did string) (profiles.Profile, error)
}

// RoleLookup reports the strongest role a user holds.
type RoleLookup interface {
	HighestRole(ctx context.Context, userDID string) permissions.Role
}

// Service wraps the sign-in rules of the session bridge.
type Service struct {
	profiles ProfileStore
	roles    RoleLookup
}

// NewService constructs a new Service.
func NewService(profiles ProfileStore, roles RoleLookup) *Service {
	return &Service{profiles: profiles, roles: roles}
}

// SignIn records the profile of a user who completed login.
func (s *Service) SignIn(ctx context.Context, id Identity) error {
	err := s.profiles.Save(ctx, profiles.Profile{
		DID:         id.DID,
		Handle:      id.Handle,
		DisplayName: id.DisplayName,
		Avatar:      id.Avatar,
	})
	if err != nil {
		return fmt.Errorf("auth: save profile: %w", err)
	}
	return nil
}

// Describe builds the whoami view for did.
func (s *Service) Describe(ctx context.Context, did string) (Whoami, error) {
	p, err := s.profiles.Get(ctx, did)
	if err != nil {
		return Whoami{}, fmt.Errorf("auth: load profile: %w", err)
	}
	return Whoami{
		DID:         did,
		Handle:      p.Handle,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		Role:        s.roles.HighestRole(ctx, did),
	}, nil
}
