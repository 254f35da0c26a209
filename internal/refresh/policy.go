package refresh

import "time"

// fallbackInterval applies to priorities outside the table.
const fallbackInterval = 24 * time.Hour

var priorityIntervals = map[int]time.Duration{
	5: 15 * time.Minute,
	4: time.Hour,
	3: 6 * time.Hour,
	2: 24 * time.Hour,
	1: 7 * 24 * time.Hour,
}

// IntervalFor maps a base priority to its target refresh cadence.
func IntervalFor(priority int) time.Duration {
	if interval, ok := priorityIntervals[priority]; ok {
		return interval
	}
	return fallbackInterval
}
