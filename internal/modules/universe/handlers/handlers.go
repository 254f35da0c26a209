// Package handlers provides HTTP handlers for the symbol registry.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/internal/refresh"
	"github.com/aristath/symrefresh/internal/registry"
)

// Discoverer runs a discovery pass.
type Discoverer interface {
	Discover(ctx context.Context, sources []universe.Source) (universe.DiscoverySummary, error)
}

// Handler serves the registry read API and discovery trigger.
type Handler struct {
	store      registry.Store
	policy     refresh.Policy
	discoverer Discoverer
	sources    []universe.Source
	now        func() time.Time
	log        zerolog.Logger
}

// NewHandler creates a new registry handler.
func NewHandler(
	store registry.Store,
	policy refresh.Policy,
	discoverer Discoverer,
	sources []universe.Source,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		store:      store,
		policy:     policy,
		discoverer: discoverer,
		sources:    sources,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.With().Str("handler", "registry").Logger(),
	}
}

type cooldownView struct {
	Active           bool `json:"active"`
	Failures         int  `json:"failures"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

type recordView struct {
	ActiveBoosts      []string             `json:"active_boosts"`
	Cooldown          cooldownView         `json:"cooldown"`
	EffectivePriority int                  `json:"effective_priority"`
	PriorityLabel     string               `json:"priority_label"`
	Record            *domain.SymbolRecord `json:"record"`
}

type queueItem struct {
	Action            string   `json:"action"`
	Boosts            []string `json:"boosts"`
	EffectivePriority int      `json:"effective_priority"`
	PriorityLabel     string   `json:"priority_label"`
	Reason            string   `json:"reason"`
	Symbol            string   `json:"symbol"`
}

func (h *Handler) view(rec *domain.SymbolRecord, now time.Time) recordView {
	state := refresh.StateFromRecord(rec)
	kinds := rec.ActiveBoostKinds(now)
	if kinds == nil {
		kinds = []string{}
	}
	remaining := h.policy.Backoff.RemainingCooldown(state.Failures, state.LastAttempt, now)
	return recordView{
		ActiveBoosts: kinds,
		Cooldown: cooldownView{
			Active:           remaining > 0,
			Failures:         state.Failures,
			RemainingSeconds: int(remaining / time.Second),
		},
		EffectivePriority: rec.EffectivePriority(now),
		PriorityLabel:     rec.EffectivePriorityLabel(now),
		Record:            rec,
	}
}

// HandleList handles GET /api/registry
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var status domain.SymbolStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status = domain.SymbolStatus(strings.ToLower(raw))
		if domain.ParseSymbolStatus(raw) != status {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
	}

	reg, err := h.store.Load(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load registry")
		http.Error(w, "Failed to load registry", http.StatusInternalServerError)
		return
	}

	now := h.now()
	views := make([]recordView, 0, len(reg))
	for _, rec := range reg.Records() {
		if status != "" && rec.Status != status {
			continue
		}
		views = append(views, h.view(rec, now))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(views),
		"symbols": views,
	}, h.log)
}

// HandleGet handles GET /api/registry/{symbol}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	rec, err := h.store.Get(r.Context(), symbol)
	if errors.Is(err, registry.ErrNotFound) {
		http.Error(w, "Symbol not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get symbol")
		http.Error(w, "Failed to load symbol", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, h.view(rec, h.now()), h.log)
}

// HandleQueue handles GET /api/registry/queue
// It evaluates every active record in run order without refreshing anything.
func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	reg, err := h.store.Load(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load registry")
		http.Error(w, "Failed to load registry", http.StatusInternalServerError)
		return
	}

	now := h.now()
	items := []queueItem{}
	due := 0
	for _, rec := range reg.ActiveByPriority(now) {
		if limit > 0 && len(items) >= limit {
			break
		}
		decision := h.policy.Evaluate(rec, refresh.StateFromRecord(rec), now)
		if decision.ShouldRun {
			due++
		}
		kinds := rec.ActiveBoostKinds(now)
		if kinds == nil {
			kinds = []string{}
		}
		items = append(items, queueItem{
			Action:            decision.Action(),
			Boosts:            kinds,
			EffectivePriority: rec.EffectivePriority(now),
			PriorityLabel:     rec.EffectivePriorityLabel(now),
			Reason:            decision.Reason,
			Symbol:            rec.Symbol,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"due":   due,
		"queue": items,
	}, h.log)
}

// HandleDiscover handles POST /api/registry/discover
func (h *Handler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	if h.discoverer == nil || len(h.sources) == 0 {
		http.Error(w, "No discovery sources configured", http.StatusServiceUnavailable)
		return
	}

	summary, err := h.discoverer.Discover(r.Context(), h.sources)
	if err != nil {
		h.log.Error().Err(err).Msg("Discovery failed")
		http.Error(w, "Discovery failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary, h.log)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
