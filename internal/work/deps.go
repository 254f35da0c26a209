package work

import (
	"context"
	"time"

	"github.com/aristath/symrefresh/internal/clients/ingest"
	"github.com/aristath/symrefresh/internal/domain"
)

// Refresher triggers ingestion of one symbol.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) (ingest.Result, error)
}

// RunStateWriter checkpoints the run snapshot.
type RunStateWriter interface {
	Write(state *domain.RunState) error
}

// RunHistory records finished runs.
type RunHistory interface {
	Record(ctx context.Context, state domain.RunState) (string, error)
}

// ProcessedSymbolLister lists symbols with data already on disk. It is the
// candidate source of last resort when the registry is empty.
type ProcessedSymbolLister interface {
	ListSymbols(ctx context.Context) ([]string, error)
}

// Sleeper waits between successful refreshes.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ContextSleeper sleeps on a timer and wakes early on cancellation.
type ContextSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (ContextSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
