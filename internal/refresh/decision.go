package refresh

import (
	"fmt"
	"time"

	"github.com/aristath/symrefresh/internal/domain"
)

// State is the transient failure information fed into a decision.
type State struct {
	Failures    int
	LastAttempt *time.Time
}

// StateFromRecord extracts the failure streak and last attempt from a
// record. An unparsable last attempt is treated as unknown.
func StateFromRecord(rec *domain.SymbolRecord) State {
	state := State{Failures: rec.FailureCount}
	if t, ok, err := rec.LastAttemptAt(); ok && err == nil {
		state.LastAttempt = &t
	}
	return state
}

// Decision is a run/skip verdict with a human readable reason.
type Decision struct {
	ShouldRun bool
	Reason    string
}

// Run returns a run verdict.
func Run(reason string) Decision { return Decision{ShouldRun: true, Reason: reason} }

// Skip returns a skip verdict.
func Skip(reason string) Decision { return Decision{ShouldRun: false, Reason: reason} }

// Action is the log label of the verdict.
func (d Decision) Action() string {
	if d.ShouldRun {
		return "RUN"
	}
	return "SKIP"
}

// Policy combines backoff and interval rules into a decision.
type Policy struct {
	Backoff BackoffPolicy
}

// DefaultPolicy uses the default backoff.
func DefaultPolicy() Policy {
	return Policy{Backoff: DefaultBackoff()}
}

// Evaluate decides whether rec is due for a refresh at now. Checks run in
// order: status, cooldown, never refreshed, unparsable timestamp, then the
// base priority interval. Boosts do not shorten the interval.
func (p Policy) Evaluate(rec *domain.SymbolRecord, state State, now time.Time) Decision {
	if !rec.IsActive() {
		return Skip(fmt.Sprintf("inactive status=%s", rec.Status))
	}

	if p.Backoff.IsInCooldown(state.Failures, state.LastAttempt, now) {
		remaining := p.Backoff.RemainingCooldown(state.Failures, state.LastAttempt, now)
		return Skip(fmt.Sprintf("cooldown active (%ds remaining)", int64(remaining/time.Second)))
	}

	refreshedAt, ok, err := rec.LastRefreshedAt()
	if !ok {
		return Run("never refreshed")
	}
	if err != nil {
		return Run("invalid last_refreshed timestamp")
	}

	interval := IntervalFor(rec.Priority)
	elapsed := now.Sub(refreshedAt)
	if elapsed >= interval {
		return Run(fmt.Sprintf("stale by %ds", int64((elapsed-interval)/time.Second)))
	}
	return Skip(fmt.Sprintf("fresh (next refresh in %ds)", int64((interval-elapsed)/time.Second)))
}

// Evaluate applies the default policy.
func Evaluate(rec *domain.SymbolRecord, state State, now time.Time) Decision {
	return DefaultPolicy().Evaluate(rec, state, now)
}
