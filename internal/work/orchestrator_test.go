package work

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/modules/boosts"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/internal/registry"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type recordingSleeper struct{ slept []time.Duration }

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return nil
}

type fakeRefresher struct {
	calls   []string
	results map[string]ingest.Result
	errs    map[string]error
	onCall  func(symbol string)
}

func (f *fakeRefresher) Refresh(ctx context.Context, symbol string) (ingest.Result, error) {
	f.calls = append(f.calls, symbol)
	if f.onCall != nil {
		f.onCall(symbol)
	}
	if err := f.errs[symbol]; err != nil {
		return ingest.Result{}, err
	}
	return f.results[symbol], nil
}

type memoryWriter struct{ snapshots []domain.RunState }

func (w *memoryWriter) Write(state *domain.RunState) error {
	snapshot := *state
	snapshot.Symbols = append([]string(nil), state.Symbols...)
	snapshot.Failures = append([]string(nil), state.Failures...)
	w.snapshots = append(w.snapshots, snapshot)
	return nil
}

type memoryHistory struct{ runs []domain.RunState }

func (h *memoryHistory) Record(ctx context.Context, state domain.RunState) (string, error) {
	h.runs = append(h.runs, state)
	return "id", nil
}

type staticLister []string

func (l staticLister) ListSymbols(ctx context.Context) ([]string, error) { return l, nil }

type harness struct {
	orch      *Orchestrator
	store     *registry.JSONFileStore
	refresher *fakeRefresher
	writer    *memoryWriter
	history   *memoryHistory
	sleeper   *recordingSleeper
}

func newHarness(t *testing.T, cfg Config, records ...*domain.SymbolRecord) *harness {
	t.Helper()
	store := registry.NewJSONFileStore(filepath.Join(t.TempDir(), "registry.json"), zerolog.Nop())
	if len(records) > 0 {
		require.NoError(t, store.Save(context.Background(), domain.NewRegistry(records...)))
	}

	h := &harness{
		store:     store,
		refresher: &fakeRefresher{results: map[string]ingest.Result{}, errs: map[string]error{}},
		writer:    &memoryWriter{},
		history:   &memoryHistory{},
		sleeper:   &recordingSleeper{},
	}
	h.orch = NewOrchestrator(Deps{
		Store:     store,
		Refresher: h.refresher,
		Writer:    h.writer,
		History:   h.history,
		Lister:    staticLister{"HDFCBANK", "MRF"},
		Sleeper:   h.sleeper,
		Clock:     &fixedClock{now: testNow},
	}, cfg, zerolog.Nop())
	return h
}

func record(symbol string, priority int, refreshedAgo time.Duration) *domain.SymbolRecord {
	rec := domain.NewSymbolRecord(symbol, "NSE")
	rec.Priority = priority
	if refreshedAgo > 0 {
		rec.TouchRefreshed(testNow.Add(-refreshedAgo))
	}
	return rec
}

func (h *harness) load(t *testing.T) domain.Registry {
	reg, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return reg
}

func TestRun_ProcessesDueSymbolsInPriorityOrder(t *testing.T) {
	suspended := record("OLDCO", 5, 0)
	suspended.Status = domain.StatusSuspended

	h := newHarness(t, Config{RateLimit: 5 * time.Second},
		record("STALE", 3, 8*time.Hour),
		record("FRESH", 4, 10*time.Minute),
		record("NEVER", 5, 0),
		suspended,
	)
	h.refresher.results["NEVER"] = ingest.Result{Warnings: 2}
	h.refresher.results["STALE"] = ingest.Result{Warnings: 1}

	state, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"NEVER", "STALE"}, h.refresher.calls)
	assert.Equal(t, []string{"NEVER", "STALE"}, state.Symbols)
	assert.Equal(t, 2, state.SymbolsProcessed)
	assert.Equal(t, 3, state.Warnings)
	assert.Empty(t, state.Failures)
	assert.Equal(t, domain.RunStatusSuccess, state.Status)
	assert.Equal(t, domain.FormatTimestamp(testNow), state.FinishedAt)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, h.sleeper.slept)

	// initial, one per processed symbol, final
	require.Len(t, h.writer.snapshots, 4)
	assert.Equal(t, domain.RunStatusRunning, h.writer.snapshots[0].Status)
	assert.Equal(t, []string{"NEVER"}, h.writer.snapshots[1].Symbols)
	assert.Equal(t, domain.RunStatusSuccess, h.writer.snapshots[3].Status)

	require.Len(t, h.history.runs, 1)
	assert.Equal(t, state.RunID, h.history.runs[0].RunID)

	reg := h.load(t)
	assert.Equal(t, domain.FormatTimestamp(testNow), *reg["NEVER"].LastRefreshed)
	assert.Nil(t, reg["OLDCO"].LastAttempt)
	assert.Nil(t, reg["FRESH"].LastAttempt)
}

func TestRun_BudgetStopsRun(t *testing.T) {
	h := newHarness(t, Config{MaxPerRun: 1, RateLimit: time.Second},
		record("AAA", 5, 0),
		record("BBB", 5, 0),
	)

	state, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA"}, h.refresher.calls)
	assert.Equal(t, 1, state.SymbolsProcessed)
	assert.Len(t, h.sleeper.slept, 1)
	assert.Nil(t, h.load(t)["BBB"].LastAttempt)
}

func TestRun_SkipsDoNotConsumeBudget(t *testing.T) {
	h := newHarness(t, Config{MaxPerRun: 1},
		record("FRESH", 5, time.Minute),
		record("DUE", 3, 7*time.Hour),
	)

	_, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"DUE"}, h.refresher.calls)
}

func TestRun_FailureIsRecordedAndRunContinues(t *testing.T) {
	h := newHarness(t, Config{RateLimit: time.Second},
		record("BAD", 5, 0),
		record("GOOD", 4, 0),
	)
	h.refresher.errs["BAD"] = &ingest.StatusError{StatusCode: 500}

	state, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"BAD", "GOOD"}, h.refresher.calls)
	assert.Equal(t, []string{"BAD"}, state.Failures)
	assert.Equal(t, domain.RunStatusPartial, state.Status)
	assert.Len(t, h.sleeper.slept, 1)

	reg := h.load(t)
	assert.Equal(t, 1, reg["BAD"].FailureCount)
	assert.Equal(t, domain.FormatTimestamp(testNow), *reg["BAD"].LastAttempt)
	assert.Nil(t, reg["BAD"].LastRefreshed)
	assert.Equal(t, 0, reg["GOOD"].FailureCount)
}

func TestRun_AllFailuresIsFailed(t *testing.T) {
	h := newHarness(t, Config{}, record("BAD", 5, 0))
	h.refresher.errs["BAD"] = errors.New("connection refused")

	state, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, state.Status)
}

func TestRun_AuthFailureAbortsAfterPersisting(t *testing.T) {
	h := newHarness(t, Config{},
		record("AAA", 5, 0),
		record("BBB", 4, 0),
	)
	h.refresher.errs["AAA"] = &ingest.StatusError{StatusCode: 401}

	state, err := h.orch.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrAuth)

	assert.Equal(t, []string{"AAA"}, h.refresher.calls)
	assert.Equal(t, domain.RunStatusFailed, state.Status)
	assert.Equal(t, []string{"AAA"}, state.Failures)
	assert.Equal(t, domain.RunStatusFailed, h.writer.snapshots[len(h.writer.snapshots)-1].Status)

	assert.Equal(t, 1, h.load(t)["AAA"].FailureCount)
}

func TestRun_AuthAbortAfterSuccessIsPartial(t *testing.T) {
	h := newHarness(t, Config{},
		record("AAA", 5, 0),
		record("BBB", 4, 0),
	)
	h.refresher.errs["BBB"] = &ingest.StatusError{StatusCode: 403}

	state, err := h.orch.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ingest.ErrAuth)
	assert.Equal(t, domain.RunStatusPartial, state.Status)
}

func TestRun_RecoveryBoostAfterFailures(t *testing.T) {
	rec := record("RECOV", 3, 0)
	rec.FailureCount = 2
	rec.LastAttempt = domain.StringPtr(domain.FormatTimestamp(testNow.Add(-24 * time.Hour)))

	h := newHarness(t, Config{}, rec)

	_, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	got := h.load(t)["RECOV"]
	assert.Equal(t, 0, got.FailureCount)
	require.Len(t, got.Boosts, 1)
	assert.Equal(t, RecoveryBoostKind, got.Boosts[0].Kind)
	assert.Equal(t, 1, got.Boosts[0].Weight)
	assert.Equal(t, domain.BoostSourceScheduler, got.Boosts[0].Source)
	assert.True(t, got.Boosts[0].ExpiresAt.Equal(testNow.Add(time.Hour)))
	assert.Equal(t, 4, got.EffectivePriority(testNow))
}

func TestRun_NoRecoveryBoostWithoutPriorFailures(t *testing.T) {
	h := newHarness(t, Config{}, record("CLEAN", 3, 0))

	_, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, h.load(t)["CLEAN"].Boosts)
}

func TestRun_CooldownSkips(t *testing.T) {
	rec := record("COOL", 5, 0)
	rec.FailureCount = 3
	rec.LastAttempt = domain.StringPtr(domain.FormatTimestamp(testNow.Add(-time.Minute)))

	h := newHarness(t, Config{}, rec)

	state, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, h.refresher.calls)
	assert.Equal(t, domain.RunStatusSuccess, state.Status)
}

func TestRun_ExplicitSymbols(t *testing.T) {
	h := newHarness(t, Config{Allowlist: universe.NewAllowlist([]string{"TCS", "INFY"})},
		record("INFY", 2, time.Minute),
	)

	state, err := h.orch.Run(context.Background(), []string{"tcs-eq", "WIPRO", "TCS", "", "infy"})
	require.NoError(t, err)

	// TCS is a registry miss; INFY runs only if due, and it is fresh.
	assert.Equal(t, []string{"TCS"}, h.refresher.calls)
	assert.Equal(t, []string{"TCS"}, state.Symbols)
}

func TestRun_PrunesExpiredBoostsAndSaves(t *testing.T) {
	rec := record("FRESH", 5, time.Minute)
	rec.Boosts = []domain.PriorityBoost{
		domain.NewBoost("manual_boost", 1, time.Hour, domain.BoostSourceManual, testNow.Add(-2*time.Hour)),
	}
	h := newHarness(t, Config{}, rec)

	_, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, h.refresher.calls)
	assert.Empty(t, h.load(t)["FRESH"].Boosts)
}

func TestRun_KeepsRegistryWritesMadeDuringRun(t *testing.T) {
	h := newHarness(t, Config{},
		record("AAA", 5, 0),
		record("BBB", 3, 8*time.Hour),
	)
	boostService := boosts.NewService(h.store, zerolog.Nop())
	h.refresher.onCall = func(symbol string) {
		if symbol != "AAA" {
			return
		}
		_, err := boostService.Apply(context.Background(), boosts.Request{
			Symbol:   "BBB",
			Kind:     "user_interest",
			Weight:   2,
			TTLHours: 24,
		})
		require.NoError(t, err)
		require.NoError(t, h.store.Upsert(context.Background(), domain.NewSymbolRecord("NEWCO", "NSE")))
	}

	_, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, h.refresher.calls)

	reg := h.load(t)
	bbb := reg["BBB"]
	require.Len(t, bbb.Boosts, 1)
	assert.Equal(t, "user_interest", bbb.Boosts[0].Kind)
	assert.Equal(t, domain.FormatTimestamp(testNow), *bbb.LastRefreshed)

	_, ok := reg.Get("NEWCO")
	assert.True(t, ok)
	assert.Equal(t, domain.FormatTimestamp(testNow), *reg["AAA"].LastRefreshed)
}

func TestRun_UntouchedRecordsAreNotRewritten(t *testing.T) {
	h := newHarness(t, Config{},
		record("FRESH", 4, 10*time.Minute),
		record("NEVER", 5, 0),
	)
	h.refresher.onCall = func(string) {
		fresh := record("FRESH", 2, 10*time.Minute)
		require.NoError(t, h.store.Upsert(context.Background(), fresh))
	}

	_, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"NEVER"}, h.refresher.calls)
	assert.Equal(t, 2, h.load(t)["FRESH"].Priority)
}

func TestRun_MalformedRegistryFinishesRunState(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, os.WriteFile(h.store.Path(), []byte("{not json"), 0o644))

	state, err := h.orch.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, h.refresher.calls)

	assert.Equal(t, domain.RunStatusFailed, state.Status)
	assert.NotEmpty(t, state.FinishedAt)

	require.Len(t, h.writer.snapshots, 2)
	last := h.writer.snapshots[1]
	assert.Equal(t, domain.RunStatusFailed, last.Status)
	assert.Equal(t, domain.FormatTimestamp(testNow), last.FinishedAt)
}

func TestRun_EmptyRegistryFallsBackToProcessedSymbols(t *testing.T) {
	h := newHarness(t, Config{})

	state, err := h.orch.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"HDFCBANK", "MRF"}, h.refresher.calls)
	assert.Equal(t, domain.RunStatusSuccess, state.Status)

	_, statErr := os.Stat(h.store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_CancellationEndsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, Config{},
		record("AAA", 5, 0),
		record("BBB", 4, 0),
	)
	h.refresher.onCall = func(string) { cancel() }
	h.refresher.results["AAA"] = ingest.Result{}

	state, err := h.orch.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"AAA"}, h.refresher.calls)
	assert.Equal(t, domain.RunStatusPartial, state.Status)
	assert.Equal(t, domain.FormatTimestamp(testNow), *h.load(t)["AAA"].LastRefreshed)
}

func TestRun_NegativeBudgetIsRejected(t *testing.T) {
	h := newHarness(t, Config{MaxPerRun: -1})

	_, err := h.orch.Run(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, h.writer.snapshots)
}
