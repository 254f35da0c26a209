package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/internal/refresh"
	"github.com/aristath/symrefresh/internal/registry"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type stubDiscoverer struct {
	summary universe.DiscoverySummary
	err     error
	calls   int
}

func (s *stubDiscoverer) Discover(ctx context.Context, sources []universe.Source) (universe.DiscoverySummary, error) {
	s.calls++
	return s.summary, s.err
}

func setupRouter(t *testing.T, discoverer Discoverer, sources []universe.Source) *chi.Mux {
	store := registry.NewJSONFileStore(filepath.Join(t.TempDir(), "registry.json"), zerolog.Nop())

	due := domain.NewSymbolRecord("TCS", "NSE")
	due.Priority = 3
	due.TouchRefreshed(testNow.Add(-8 * time.Hour))
	due.AddBoost(domain.NewBoost("user_interest", 1, time.Hour, domain.BoostSourceManual, testNow), testNow)

	fresh := domain.NewSymbolRecord("INFY", "NSE")
	fresh.Priority = 4
	fresh.TouchRefreshed(testNow.Add(-10 * time.Minute))

	cooling := domain.NewSymbolRecord("MRF", "NSE")
	cooling.Priority = 2
	cooling.FailureCount = 1
	cooling.MarkAttempt(testNow.Add(-time.Minute))

	suspended := domain.NewSymbolRecord("OLDCO", "NSE")
	suspended.Status = domain.StatusSuspended

	require.NoError(t, store.Save(context.Background(), domain.NewRegistry(due, fresh, cooling, suspended)))

	handler := NewHandler(store, refresh.DefaultPolicy(), discoverer, sources, zerolog.Nop())
	handler.now = func() time.Time { return testNow }

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleList(t *testing.T) {
	router := setupRouter(t, nil, nil)

	w := get(router, "/registry")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response struct {
		Count   int `json:"count"`
		Symbols []struct {
			ActiveBoosts      []string `json:"active_boosts"`
			EffectivePriority int      `json:"effective_priority"`
			PriorityLabel     string   `json:"priority_label"`
			Cooldown          struct {
				Active bool `json:"active"`
			} `json:"cooldown"`
			Record struct {
				Symbol string `json:"symbol"`
			} `json:"record"`
		} `json:"symbols"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, 4, response.Count)

	// records are ordered by symbol
	assert.Equal(t, "INFY", response.Symbols[0].Record.Symbol)
	assert.Equal(t, "MRF", response.Symbols[1].Record.Symbol)
	assert.True(t, response.Symbols[1].Cooldown.Active)
	assert.Equal(t, "TCS", response.Symbols[3].Record.Symbol)
	assert.Equal(t, 4, response.Symbols[3].EffectivePriority)
	assert.Equal(t, "MEDIUM+1", response.Symbols[3].PriorityLabel)
	assert.Equal(t, []string{"user_interest"}, response.Symbols[3].ActiveBoosts)
}

func TestHandleList_StatusFilter(t *testing.T) {
	router := setupRouter(t, nil, nil)

	w := get(router, "/registry?status=suspended")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, float64(1), response["count"])

	assert.Equal(t, http.StatusBadRequest, get(router, "/registry?status=bogus").Code)
}

func TestHandleGet(t *testing.T) {
	router := setupRouter(t, nil, nil)

	w := get(router, "/registry/tcs")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	record := response["record"].(map[string]interface{})
	assert.Equal(t, "TCS", record["symbol"])

	assert.Equal(t, http.StatusNotFound, get(router, "/registry/WIPRO").Code)
}

func TestHandleQueue(t *testing.T) {
	router := setupRouter(t, nil, nil)

	w := get(router, "/registry/queue")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Due   int `json:"due"`
		Queue []struct {
			Symbol string `json:"symbol"`
			Action string `json:"action"`
			Reason string `json:"reason"`
		} `json:"queue"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	require.Len(t, response.Queue, 3)
	assert.Equal(t, 1, response.Due)

	// TCS (3+1) ties INFY (4) and was refreshed earlier
	assert.Equal(t, "TCS", response.Queue[0].Symbol)
	assert.Equal(t, "RUN", response.Queue[0].Action)
	assert.Contains(t, response.Queue[0].Reason, "stale")
	assert.Equal(t, "INFY", response.Queue[1].Symbol)
	assert.Contains(t, response.Queue[1].Reason, "fresh")
	assert.Equal(t, "MRF", response.Queue[2].Symbol)
	assert.Contains(t, response.Queue[2].Reason, "cooldown")

	w = get(router, "/registry/queue?limit=1")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Len(t, response.Queue, 1)

	assert.Equal(t, http.StatusBadRequest, get(router, "/registry/queue?limit=x").Code)
}

func TestHandleDiscover(t *testing.T) {
	discoverer := &stubDiscoverer{summary: universe.DiscoverySummary{Added: 2, Total: 6}}
	sources := []universe.Source{universe.NewFileSource("seed", "seed.json")}
	router := setupRouter(t, discoverer, sources)

	req := httptest.NewRequest(http.MethodPost, "/registry/discover", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, discoverer.calls)

	var summary universe.DiscoverySummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 6, summary.Total)
}

func TestHandleDiscover_Failures(t *testing.T) {
	unconfigured := setupRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/registry/discover", nil)
	w := httptest.NewRecorder()
	unconfigured.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	failing := setupRouter(t, &stubDiscoverer{err: errors.New("boom")}, []universe.Source{universe.NewFileSource("seed", "x")})
	w = httptest.NewRecorder()
	failing.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/registry/discover", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
