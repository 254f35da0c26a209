// Package scheduler drives the serve-mode background work: the periodic
// refresh pass, snapshot backups and registry database maintenance.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of background work. Run must not panic; a returned error is
// logged and the job stays registered for its next tick.
type Job interface {
	Run() error
	Name() string
}

// Scheduler fires registered jobs on six-field cron expressions (seconds
// first), matching REFRESH_SCHEDULE, BACKUP_SCHEDULE and MAINTENANCE_SCHEDULE.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates an idle scheduler. Nothing fires until Start.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", s.Entries()).Msg("Scheduler started")
}

// Stop prevents further ticks and blocks until an in-flight refresh, backup
// or maintenance pass returns.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	<-done
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job under schedule, e.g. "0 0 */6 * * *" for a refresh
// pass every six hours or "@every 30m". Five-field expressions are rejected.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.execute(job) }); err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RunNow runs job on the caller's goroutine, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

func (s *Scheduler) execute(job Job) {
	start := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Job tick")

	if err := job.Run(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Job failed")
		return
	}
	s.log.Debug().
		Str("job", job.Name()).
		Dur("elapsed", time.Since(start)).
		Msg("Job completed")
}
