package permissionshttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the permissions endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/permissions", func(pr chi.Router) {
		pr.Get("/role-check", h.handleRoleCheck)
		pr.Get("/highest-role", h.handleHighestRole)
		pr.Post("/roles", h.handleSetRole)
		pr.Post("/moderators", h.handleModerators)
		pr.Get("/admin/moderators", h.handleAdminModerators)
	})
}
