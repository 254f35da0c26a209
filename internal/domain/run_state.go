package domain

import "time"

// RunStatus is the lifecycle state of one orchestrator run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// RunSourceScheduled tags runs started by the refresh scheduler.
const RunSourceScheduled = "scheduled"

// RunState is the persisted snapshot of a refresh run.
// Fields are declared in JSON key order so the document has sorted keys.
type RunState struct {
	Failures         []string  `json:"failures"`
	FinishedAt       string    `json:"finished_at,omitempty"`
	RunID            string    `json:"run_id"`
	Source           string    `json:"source"`
	StartedAt        string    `json:"started_at"`
	Status           RunStatus `json:"status"`
	Symbols          []string  `json:"symbols"`
	SymbolsProcessed int       `json:"symbols_processed"`
	UpdatedAt        string    `json:"updated_at,omitempty"`
	Warnings         int       `json:"warnings"`
}

// RunID formats the identifier of a run started at t.
func RunID(t time.Time) string {
	return "refresh-" + t.UTC().Format("2006-01-02T15-04-05")
}

// NewRunState starts a running snapshot.
func NewRunState(now time.Time) RunState {
	return RunState{
		Failures:  []string{},
		RunID:     RunID(now),
		Source:    RunSourceScheduled,
		StartedAt: FormatTimestamp(now),
		Status:    RunStatusRunning,
		Symbols:   []string{},
	}
}

// RecordAttempt appends an attempted symbol and bumps the processed count.
func (s *RunState) RecordAttempt(symbol string) {
	s.Symbols = append(s.Symbols, symbol)
	s.SymbolsProcessed++
}

// RecordFailure appends symbol to the failure list.
func (s *RunState) RecordFailure(symbol string) {
	s.Failures = append(s.Failures, symbol)
}

// Finish stamps finished_at and the final status.
func (s *RunState) Finish(now time.Time, successes int, aborted bool) {
	s.FinishedAt = FormatTimestamp(now)
	s.Status = FinalRunStatus(successes, len(s.Failures), aborted)
}

// FinalRunStatus derives the terminal status of a run. An aborted run is
// failed unless something succeeded before the abort.
func FinalRunStatus(successes, failures int, aborted bool) RunStatus {
	switch {
	case aborted && successes == 0:
		return RunStatusFailed
	case aborted:
		return RunStatusPartial
	case failures > 0 && successes > 0:
		return RunStatusPartial
	case failures > 0:
		return RunStatusFailed
	default:
		return RunStatusSuccess
	}
}
