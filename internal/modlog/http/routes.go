package modloghttp

import "github.com/go-chi/chi/v5"

// MountRoutes registers the moderation log endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/logs", h.handleList)
}
