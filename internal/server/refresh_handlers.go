package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/runstate"
	"github.com/aristath/symrefresh/internal/scheduler"
)

const maxRunsLimit = 100

// RunStateReader loads the last run snapshot.
type RunStateReader interface {
	Load() (domain.RunState, error)
}

// RunHistoryReader lists finished runs.
type RunHistoryReader interface {
	Recent(ctx context.Context, limit int) ([]runstate.HistoryEntry, error)
}

// RefreshTrigger starts a refresh run without waiting for it.
type RefreshTrigger interface {
	Start(symbols []string) error
}

// RefreshHandlers serves run state and on-demand runs
type RefreshHandlers struct {
	state   RunStateReader
	history RunHistoryReader
	trigger RefreshTrigger
	log     zerolog.Logger
}

// NewRefreshHandlers creates refresh handlers. Any dependency may be nil;
// the matching endpoint then answers 503.
func NewRefreshHandlers(state RunStateReader, history RunHistoryReader, trigger RefreshTrigger, log zerolog.Logger) *RefreshHandlers {
	return &RefreshHandlers{
		state:   state,
		history: history,
		trigger: trigger,
		log:     log.With().Str("handler", "refresh").Logger(),
	}
}

type triggerRequest struct {
	Symbols []string `json:"symbols"`
}

// HandleLastRun returns the last persisted run state
// GET /api/refresh/last
func (h *RefreshHandlers) HandleLastRun(w http.ResponseWriter, r *http.Request) {
	if h.state == nil {
		http.Error(w, "Run state not available", http.StatusServiceUnavailable)
		return
	}

	state, err := h.state.Load()
	if errors.Is(err, runstate.ErrNoRunState) {
		http.Error(w, "No run recorded yet", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load run state")
		http.Error(w, "Failed to load run state", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, state, h.log)
}

// HandleRecentRuns lists recent runs, newest first
// GET /api/refresh/runs?limit=N
func (h *RefreshHandlers) HandleRecentRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "Run history not available", http.StatusServiceUnavailable)
		return
	}

	limit := runstate.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxRunsLimit)
	}

	runs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list run history")
		http.Error(w, "Failed to list run history", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []runstate.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	}, h.log)
}

// HandleTriggerRun starts a refresh run immediately
// POST /api/refresh/run
func (h *RefreshHandlers) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		http.Error(w, "Refresh runs not available", http.StatusServiceUnavailable)
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.trigger.Start(req.Symbols); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			http.Error(w, "Refresh run already in progress", http.StatusConflict)
			return
		}
		h.log.Error().Err(err).Msg("Failed to start refresh run")
		http.Error(w, "Failed to start refresh run", http.StatusInternalServerError)
		return
	}

	h.log.Info().Strs("symbols", req.Symbols).Msg("Refresh run triggered")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"symbols": len(req.Symbols),
	}, h.log)
}
