package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// slowOperation is the duration after which a timed operation is logged at warn level.
const slowOperation = 30 * time.Second

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	func (o *Orchestrator) Run() {
//	    defer utils.OperationTimer("refresh_run", o.log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() {
	start := time.Now()

	return func() {
		duration := time.Since(start)

		event := log.Debug()
		if duration > slowOperation {
			event = log.Warn()
		}
		event.
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")
	}
}
