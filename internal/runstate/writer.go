// Package runstate persists refresh run snapshots: the checkpoint file
// rewritten during a run and the history table of finished runs.
package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/utils"
)

// DefaultPath is where the last run snapshot lives.
const DefaultPath = "data/system/last_ingestion.json"

// ErrNoRunState is returned by Load before any run has been written.
var ErrNoRunState = errors.New("no run state recorded")

// Writer checkpoints run state to a JSON document.
type Writer struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
	log  zerolog.Logger
}

// NewWriter creates a writer for path. An empty path uses DefaultPath.
func NewWriter(path string, log zerolog.Logger) *Writer {
	if path == "" {
		path = DefaultPath
	}
	return &Writer{
		path: path,
		now:  time.Now,
		log:  log.With().Str("component", "run_state").Logger(),
	}
}

// Path returns the checkpoint file location.
func (w *Writer) Path() string {
	return w.path
}

// Write stamps updated_at and atomically replaces the checkpoint file.
func (w *Writer) Write(state *domain.RunState) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state.UpdatedAt = domain.FormatTimestamp(w.now())
	if err := utils.WriteJSONAtomic(w.path, state); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}

	w.log.Debug().
		Str("run_id", state.RunID).
		Str("status", string(state.Status)).
		Int("processed", state.SymbolsProcessed).
		Msg("Run state checkpointed")
	return nil
}

// Load reads the last written snapshot.
func (w *Writer) Load() (domain.RunState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var state domain.RunState
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, ErrNoRunState
	}
	if err != nil {
		return state, fmt.Errorf("failed to read run state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to parse run state %s: %w", w.path, err)
	}
	return state, nil
}
