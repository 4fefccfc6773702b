package auth

import "github.com/feedmod/feedmod/internal/permissions"

// Identity is the account asserted by the login front end after it has
// completed the external OAuth flow.
type Identity struct {
	DID         string `json:"did" validate:"required,startswith=did:"`
	Handle      string `json:"handle" validate:"required,max=253"`
	DisplayName string `json:"displayName" validate:"max=640"`
	Avatar      string `json:"avatar" validate:"omitempty,url"`
}

// Whoami describes the session user to the client.
type Whoami struct {
	DID         string           `json:"did"`
	Handle      string           `json:"handle"`
	DisplayName string           `json:"displayName"`
	Avatar      string           `json:"avatar"`
	Role        permissions.Role `json:"role"`
	CSRFToken   string           `json:"csrfToken"`
}
