package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers registry routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/registry", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/queue", h.HandleQueue)
		r.Post("/discover", h.HandleDiscover)
		r.Get("/{symbol}", h.HandleGet)
	})
}
