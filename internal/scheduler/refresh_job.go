package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/domain"
)

// ErrRunInProgress is returned when a refresh run is already executing.
var ErrRunInProgress = errors.New("refresh run already in progress")

// RefreshRunner executes one refresh pass.
type RefreshRunner interface {
	Run(ctx context.Context, explicit []string) (domain.RunState, error)
}

// HealthChecker probes the ingestion pipeline.
type HealthChecker interface {
	Health(ctx context.Context) (*ingest.HealthReport, error)
}

// RefreshJob runs the orchestrator on schedule. Scheduled runs are skipped
// while the ingestion pipeline reports unhealthy, and at most one run
// executes at a time.
type RefreshJob struct {
	ctx    context.Context
	runner RefreshRunner
	health HealthChecker
	mu     sync.Mutex
	log    zerolog.Logger
}

// NewRefreshJob creates the refresh job. ctx bounds every scheduled run so
// that shutdown cancels a run in progress. health may be nil to disable
// gating.
func NewRefreshJob(ctx context.Context, runner RefreshRunner, health HealthChecker, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		ctx:    ctx,
		runner: runner,
		health: health,
		log:    log.With().Str("job", "refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh"
}

// Run performs a health-gated scheduled run. Overlapping ticks are skipped.
func (j *RefreshJob) Run() error {
	if j.health != nil {
		report, err := j.health.Health(j.ctx)
		ready, reason := ingest.Readiness(report, err)
		if !ready {
			j.log.Warn().Str("reason", reason).Msg("Ingestion pipeline not ready, skipping scheduled refresh")
			return nil
		}
	}

	_, err := j.Trigger(j.ctx, nil)
	if errors.Is(err, ErrRunInProgress) {
		j.log.Info().Msg("Previous refresh run still in progress, skipping tick")
		return nil
	}
	return err
}

// Trigger starts a run immediately with optional explicit symbols. It
// returns ErrRunInProgress instead of waiting for a running pass.
func (j *RefreshJob) Trigger(ctx context.Context, symbols []string) (domain.RunState, error) {
	if !j.mu.TryLock() {
		return domain.RunState{}, ErrRunInProgress
	}
	defer j.mu.Unlock()

	return j.runner.Run(ctx, symbols)
}

// Start launches a run in the background under the job's context so it
// outlives the caller. It returns ErrRunInProgress when a run is executing.
func (j *RefreshJob) Start(symbols []string) error {
	if !j.mu.TryLock() {
		return ErrRunInProgress
	}

	go func() {
		defer j.mu.Unlock()
		state, err := j.runner.Run(j.ctx, symbols)
		if err != nil {
			j.log.Error().Err(err).Str("run_id", state.RunID).Msg("Triggered refresh run failed")
			return
		}
		j.log.Info().Str("run_id", state.RunID).Int("processed", state.SymbolsProcessed).Msg("Triggered refresh run finished")
	}()

	return nil
}
