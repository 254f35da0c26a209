package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers boost routes under the admin router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/boost", h.HandleApply)
}
