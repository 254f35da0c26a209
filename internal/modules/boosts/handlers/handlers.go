// Package handlers provides HTTP handlers for priority boosts.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/modules/boosts"
)

// BoostApplier applies a boost request.
type BoostApplier interface {
	Apply(ctx context.Context, req boosts.Request) (*boosts.Applied, error)
}

// Handler provides HTTP handlers for boost endpoints
type Handler struct {
	service BoostApplier
	source  domain.BoostSource
	log     zerolog.Logger
}

// NewHandler creates a new boost handler. source tags every boost applied
// through the API.
func NewHandler(service BoostApplier, source domain.BoostSource, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		source:  source,
		log:     log.With().Str("handler", "boosts").Logger(),
	}
}

type boostPayload struct {
	ExpiresAt time.Time          `json:"expires_at"`
	Kind      string             `json:"kind"`
	Source    domain.BoostSource `json:"source"`
	Weight    int                `json:"weight"`
}

type boostResponse struct {
	Boost             boostPayload `json:"boost"`
	EffectivePriority string       `json:"effective_priority"`
	ExpiresAt         time.Time    `json:"expires_at"`
	Status            string       `json:"status"`
	Symbol            string       `json:"symbol"`
}

// HandleApply handles POST /admin/boost
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req boosts.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Source = h.source

	applied, err := h.service.Apply(r.Context(), req)
	switch {
	case errors.Is(err, boosts.ErrSymbolNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, boosts.ErrInvalidBoostRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to apply boost")
		http.Error(w, "Failed to apply boost", http.StatusInternalServerError)
		return
	}

	resp := boostResponse{
		Boost: boostPayload{
			ExpiresAt: applied.Boost.ExpiresAt,
			Kind:      applied.Boost.Kind,
			Source:    applied.Boost.Source,
			Weight:    applied.Boost.Weight,
		},
		EffectivePriority: applied.EffectivePriority,
		ExpiresAt:         applied.ExpiresAt,
		Status:            "applied",
		Symbol:            applied.Symbol,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode boost response")
	}
}
