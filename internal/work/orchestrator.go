package work

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/modules/universe"
	"github.com/aristath/symrefresh/internal/refresh"
	"github.com/aristath/symrefresh/internal/registry"
	"github.com/aristath/symrefresh/internal/utils"
)

// Recovery boost granted to a symbol whose first success follows failures.
const (
	RecoveryBoostKind   = "refresh_failure_recovery"
	RecoveryBoostWeight = 1
	RecoveryBoostTTL    = time.Hour
)

// Outcomes logged per processed symbol.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeAborted = "aborted"
)

// Config tunes a refresh run.
type Config struct {
	// MaxPerRun caps refresh attempts per run. Zero means unlimited.
	MaxPerRun int
	// RateLimit is the pause after every successful refresh.
	RateLimit time.Duration
	// Allowlist restricts explicit symbol runs.
	Allowlist universe.Allowlist
	Policy    refresh.Policy
}

// Deps are the collaborators of an Orchestrator. History and Lister are
// optional; Sleeper and Clock default to the real implementations.
type Deps struct {
	Store     registry.Store
	Refresher Refresher
	Writer    RunStateWriter
	History   RunHistory
	Lister    ProcessedSymbolLister
	Sleeper   Sleeper
	Clock     Clock
}

// Orchestrator executes refresh runs.
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Deps, cfg Config, log zerolog.Logger) *Orchestrator {
	if deps.Sleeper == nil {
		deps.Sleeper = ContextSleeper{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if cfg.Policy == (refresh.Policy{}) {
		cfg.Policy = refresh.DefaultPolicy()
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  log.With().Str("component", "orchestrator").Logger(),
	}
}

// run carries the mutable state of one pass. reg is the snapshot decisions
// are made against; changes to it are also queued per symbol so only the
// records the run touched are written back.
type run struct {
	state     domain.RunState
	reg       domain.Registry
	budget    *refresh.Budget
	changes   map[string][]func(*domain.SymbolRecord)
	successes int
	abortErr  error
}

// apply changes the snapshot record and queues the same change for the store.
func (r *run) apply(rec *domain.SymbolRecord, change func(*domain.SymbolRecord)) {
	change(rec)
	r.changes[rec.Symbol] = append(r.changes[rec.Symbol], change)
}

// Run performs one refresh pass. explicit, when non-empty, replaces the
// registry ordering. The returned error is non-nil only for configuration
// problems, persistence failures before the run starts, an authentication
// abort or cancellation; in the last two cases state is persisted first.
func (o *Orchestrator) Run(ctx context.Context, explicit []string) (domain.RunState, error) {
	defer utils.OperationTimer("refresh run", o.log)()

	budget, err := refresh.NewBudget(o.cfg.MaxPerRun)
	if err != nil {
		return domain.RunState{}, err
	}

	r := &run{
		state:   domain.NewRunState(o.deps.Clock.Now()),
		budget:  budget,
		changes: make(map[string][]func(*domain.SymbolRecord)),
	}
	if err := o.deps.Writer.Write(&r.state); err != nil {
		return r.state, fmt.Errorf("failed to write initial run state: %w", err)
	}

	r.reg, err = o.deps.Store.Load(ctx)
	if err != nil {
		r.state.Finish(o.deps.Clock.Now(), 0, true)
		o.checkpoint(&r.state)
		return r.state, fmt.Errorf("failed to load registry: %w", err)
	}

	pruneAt := o.deps.Clock.Now()
	for _, rec := range r.reg.Records() {
		if len(domain.ActiveBoosts(rec.Boosts, pruneAt)) != len(rec.Boosts) {
			r.apply(rec, func(rec *domain.SymbolRecord) { rec.PruneExpiredBoosts(pruneAt) })
		}
	}

	o.log.Info().
		Str("run_id", r.state.RunID).
		Int("registry_size", len(r.reg)).
		Int("max_per_run", o.cfg.MaxPerRun).
		Int("explicit", len(explicit)).
		Msg("Starting refresh run")

	for _, symbol := range o.candidates(ctx, explicit, r.reg) {
		if err := ctx.Err(); err != nil {
			r.abortErr = err
			break
		}
		if !r.budget.Allow() {
			o.log.Info().Int("max", r.budget.Limit()).Msg("[refresh] STOP budget exhausted")
			break
		}
		if stop := o.process(ctx, r, symbol); stop {
			break
		}
	}

	return r.state, o.finish(ctx, r)
}

// process handles one candidate and reports whether the run must stop.
func (o *Orchestrator) process(ctx context.Context, r *run, symbol string) bool {
	now := o.deps.Clock.Now()
	record, known := r.reg.Get(symbol)

	var (
		decision refresh.Decision
		label    string
		kinds    []string
	)
	if known {
		decision = o.cfg.Policy.Evaluate(record, refresh.StateFromRecord(record), now)
		label = record.EffectivePriorityLabel(now)
		kinds = record.ActiveBoostKinds(now)
	} else {
		decision = refresh.Run("registry miss")
		label = domain.NewSymbolRecord(symbol, universe.DefaultExchange).EffectivePriorityLabel(now)
	}

	o.logDecision(decision, symbol, label, kinds)
	if !decision.ShouldRun {
		return false
	}

	previousFailures := 0
	if known {
		previousFailures = record.FailureCount
		r.apply(record, func(rec *domain.SymbolRecord) { rec.MarkAttempt(now) })
	}
	if err := r.budget.Consume(); err != nil {
		return true
	}

	start := time.Now()
	result, err := o.deps.Refresher.Refresh(ctx, symbol)
	duration := time.Since(start)

	r.state.RecordAttempt(symbol)

	if err != nil {
		aborting := errors.Is(err, ingest.ErrAuth) || ctx.Err() != nil
		outcome := OutcomeFailed
		if aborting {
			outcome = OutcomeAborted
		}
		o.logResult(symbol, outcome, 0, duration, err)

		r.state.RecordFailure(symbol)
		if known && ctx.Err() == nil {
			failedAt := o.deps.Clock.Now()
			r.apply(record, func(rec *domain.SymbolRecord) { rec.RecordFailure(failedAt) })
		}
		o.checkpoint(&r.state)

		if aborting {
			r.abortErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.abortErr = ctxErr
			}
			return true
		}
		return false
	}

	o.logResult(symbol, OutcomeSuccess, result.Warnings, duration, nil)
	r.successes++
	r.state.Warnings += result.Warnings

	if known {
		refreshedAt := o.deps.Clock.Now()
		r.apply(record, func(rec *domain.SymbolRecord) { rec.RecordSuccess(refreshedAt) })
		if previousFailures > 0 {
			boost := domain.NewBoost(
				RecoveryBoostKind,
				min(RecoveryBoostWeight, domain.MaxTotalBoostWeight),
				RecoveryBoostTTL,
				domain.BoostSourceScheduler,
				refreshedAt,
			)
			r.apply(record, func(rec *domain.SymbolRecord) { rec.AddBoost(boost, refreshedAt) })
		}
	}
	o.checkpoint(&r.state)

	if o.cfg.RateLimit > 0 {
		if err := o.deps.Sleeper.Sleep(ctx, o.cfg.RateLimit); err != nil {
			r.abortErr = err
			return true
		}
	}
	return false
}

// finish finalizes and persists the run, returning the abort error if any.
func (o *Orchestrator) finish(ctx context.Context, r *run) error {
	aborted := r.abortErr != nil
	r.state.Finish(o.deps.Clock.Now(), r.successes, aborted)

	if err := o.deps.Writer.Write(&r.state); err != nil {
		o.log.Error().Err(err).Str("run_id", r.state.RunID).Msg("Failed to write final run state")
	}

	// Persistence must not be cut short by the cancellation that ended the run.
	persistCtx := context.WithoutCancel(ctx)

	if o.deps.History != nil {
		if _, err := o.deps.History.Record(persistCtx, r.state); err != nil {
			o.log.Warn().Err(err).Str("run_id", r.state.RunID).Msg("Failed to record run history")
		}
	}

	saveErr := o.persistChanges(persistCtx, r)

	o.log.Info().
		Str("run_id", r.state.RunID).
		Str("status", string(r.state.Status)).
		Int("processed", r.state.SymbolsProcessed).
		Int("failures", len(r.state.Failures)).
		Int("warnings", r.state.Warnings).
		Msg("Refresh run finished")

	if r.abortErr != nil {
		return r.abortErr
	}
	return saveErr
}

// persistChanges replays the queued changes onto the current stored records,
// so writes made by others during the run survive.
func (o *Orchestrator) persistChanges(ctx context.Context, r *run) error {
	if len(r.changes) == 0 {
		return nil
	}

	mutations := make(map[string]registry.Mutation, len(r.changes))
	for symbol, changes := range r.changes {
		mutations[symbol] = func(rec *domain.SymbolRecord) *domain.SymbolRecord {
			if rec == nil {
				o.log.Warn().Str("symbol", symbol).Msg("Symbol left the registry during the run, dropping its changes")
				return nil
			}
			for _, change := range changes {
				change(rec)
			}
			return rec
		}
	}

	if err := o.deps.Store.Patch(ctx, mutations); err != nil {
		o.log.Error().Err(err).Msg("Failed to save registry")
		return fmt.Errorf("failed to save registry: %w", err)
	}
	o.log.Debug().Int("records", len(mutations)).Msg("Registry changes saved")
	return nil
}

// candidates resolves the symbols to consider, in order.
func (o *Orchestrator) candidates(ctx context.Context, explicit []string, reg domain.Registry) []string {
	if len(explicit) > 0 {
		return o.explicitCandidates(explicit)
	}

	if len(reg) > 0 {
		ordered := reg.ActiveByPriority(o.deps.Clock.Now())
		symbols := make([]string, len(ordered))
		for i, rec := range ordered {
			symbols[i] = rec.Symbol
		}
		return symbols
	}

	if o.deps.Lister == nil {
		return nil
	}
	symbols, err := o.deps.Lister.ListSymbols(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to list processed symbols")
		return nil
	}
	o.log.Info().Int("count", len(symbols)).Msg("Registry empty, falling back to processed symbols")
	return symbols
}

func (o *Orchestrator) explicitCandidates(explicit []string) []string {
	var symbols []string
	for _, raw := range explicit {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		normalized, err := universe.NormaliseSymbol(raw)
		if err == nil {
			normalized, err = universe.ValidateSymbol(normalized, o.cfg.Allowlist)
		}
		if err != nil {
			o.log.Info().Str("symbol", raw).Err(err).Msg("Skipping disallowed symbol")
			continue
		}
		symbols = append(symbols, normalized)
	}
	return utils.Dedupe(symbols)
}

func (o *Orchestrator) checkpoint(state *domain.RunState) {
	if err := o.deps.Writer.Write(state); err != nil {
		o.log.Error().Err(err).Str("run_id", state.RunID).Msg("Failed to checkpoint run state")
	}
}

func (o *Orchestrator) logDecision(d refresh.Decision, symbol, label string, kinds []string) {
	o.log.Info().
		Str("action", d.Action()).
		Str("symbol", symbol).
		Str("priority", label).
		Strs("boosts", kinds).
		Str("reason", d.Reason).
		Msgf("[refresh] %s %s priority=%s boosts=[%s] reason=%s",
			d.Action(), symbol, label, strings.Join(kinds, ", "), d.Reason)
}

func (o *Orchestrator) logResult(symbol, outcome string, warnings int, duration time.Duration, err error) {
	event := o.log.Info()
	if err != nil {
		event = o.log.Error().Err(err)
	}
	event.
		Str("symbol", symbol).
		Str("outcome", outcome).
		Int("warnings", warnings).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("Refresh result")
}
