// Package work runs refresh passes over the symbol registry.
//
// # Run Loop
//
// One Orchestrator run is strictly sequential:
//   - load the registry and prune expired boosts
//   - pick candidates (explicit symbols, else active records by effective
//     priority, else symbols already processed on disk)
//   - for each candidate, consult the decision engine and the budget, then
//     call the ingestion service
//   - checkpoint run state after every processed symbol
//   - finalize the run state and save the registry if it changed
//
// # Failure Handling
//
// Per-symbol failures are recorded on the symbol and the run, and the run
// continues. An authentication failure or context cancellation aborts the
// run after state is persisted, and the error is returned to the caller.
//
// # Concurrency
//
// The Orchestrator holds no locks. Callers must not start two runs against
// the same registry at once; the scheduler's refresh job enforces this.
package work
