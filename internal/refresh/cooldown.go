// Package refresh holds the pure scheduling policies: failure backoff,
// priority refresh intervals, the run/skip decision and the per-run budget.
package refresh

import "time"

const (
	// DefaultBackoffBase is the penalty after the first failure, doubled per failure.
	DefaultBackoffBase = 5 * time.Minute
	// DefaultBackoffMax caps the penalty window.
	DefaultBackoffMax = 24 * time.Hour
)

// BackoffPolicy computes exponential cooldown windows for failing symbols.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the 5 minute / 24 hour policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Base: DefaultBackoffBase, Max: DefaultBackoffMax}
}

// Delay returns min(2^failures * Base, Max). Negative failures count as zero.
func (p BackoffPolicy) Delay(failures int) time.Duration {
	failures = max(failures, 0)
	delay := p.Base
	for i := 0; i < failures; i++ {
		if delay >= p.Max {
			return p.Max
		}
		delay *= 2
	}
	return min(delay, p.Max)
}

// NextAllowedTime is the earliest time a symbol with the given failure
// streak may be attempted again.
func (p BackoffPolicy) NextAllowedTime(failures int, lastAttempt time.Time) time.Time {
	return lastAttempt.Add(p.Delay(failures))
}

// IsInCooldown reports whether a failing symbol is still inside its penalty
// window. Zero failures or an unknown last attempt never cool down.
func (p BackoffPolicy) IsInCooldown(failures int, lastAttempt *time.Time, now time.Time) bool {
	if failures <= 0 || lastAttempt == nil {
		return false
	}
	return now.Before(p.NextAllowedTime(failures, *lastAttempt))
}

// RemainingCooldown returns the time left in the window, or zero.
func (p BackoffPolicy) RemainingCooldown(failures int, lastAttempt *time.Time, now time.Time) time.Duration {
	if !p.IsInCooldown(failures, lastAttempt, now) {
		return 0
	}
	return p.NextAllowedTime(failures, *lastAttempt).Sub(now)
}
