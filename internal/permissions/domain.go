// Package permissions resolves per-feed roles, gates moderation actions and
// records role changes in the moderation log.
package permissions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidInput indicates a missing identifier or an unknown role or action.
	ErrInvalidInput = errors.New("permissions: invalid input")
	// ErrForbidden indicates the acting user's role does not permit the action.
	ErrForbidden = errors.New("permissions: forbidden")
	// ErrNotFound indicates the referenced feed does not exist.
	ErrNotFound = errors.New("permissions: not found")
	// ErrAuditIncomplete indicates a role change committed without its log entry.
	ErrAuditIncomplete = errors.New("permissions: role changed but audit entry missing")
)

// Role is a privilege tier held by a user on one feed.
type Role string

const (
	RoleUser  Role = "user"
	RoleMod   Role = "mod"
	RoleAdmin Role = "admin"
)

// AllRoles lists every role from least to most privileged.
func AllRoles() []Role {
	return []Role{RoleUser, RoleMod, RoleAdmin}
}

// Rank orders roles; unknown roles rank below user.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleMod:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r grants at least the privilege of other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// ParseRole converts raw input into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return role, nil
}

// Action is a moderation operation subject to role gating.
type Action string

const (
	ActionPostDelete  Action = "post_delete"
	ActionPostRestore Action = "post_restore"
	ActionUserBan     Action = "user_ban"
	ActionUserUnban   Action = "user_unban"
	ActionModPromote  Action = "mod_promote"
	ActionModDemote   Action = "mod_demote"
)

// AllActions lists every gated action.
func AllActions() []Action {
	return []Action{
		ActionPostDelete,
		ActionPostRestore,
		ActionUserBan,
		ActionUserUnban,
		ActionModPromote,
		ActionModDemote,
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, known := range AllActions() {
		if a == known {
			return true
		}
	}
	return false
}

// IsRoleChange reports whether a changes someone's role.
func (a Action) IsRoleChange() bool {
	return a == ActionModPromote || a == ActionModDemote
}

// ParseAction converts raw input into an Action.
func ParseAction(raw string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(raw)))
	if !action.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, raw)
	}
	return action, nil
}

// roleChangeAction is the action gating a change from previous to next.
// Lowering a role, or setting it to user, is a demotion.
func roleChangeAction(previous, next Role) Action {
	if next == RoleUser || next.Rank() < previous.Rank() {
		return ActionModDemote
	}
	return ActionModPromote
}

// Assignment is a stored role for one user on one feed.
type Assignment struct {
	UserDID   string
	URI       string
	FeedName  string
	Role      Role
	CreatedBy string
	CreatedAt time.Time
}

// Moderator is a profile decorated with the role it holds.
type Moderator struct {
	DID         string `json:"did"`
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Role        Role   `json:"role"`
}

// FeedModerators groups the moderators of one feed.
type FeedModerators struct {
	URI        string      `json:"uri"`
	Moderators []Moderator `json:"moderators"`
}

// SetRoleParams describes a role change request.
type SetRoleParams struct {
	TargetDID string
	URI       string
	Role      Role
	ActingDID string
	FeedName  string
}
