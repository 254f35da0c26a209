package runstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/symrefresh/internal/domain"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWriter_WriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system", "last_ingestion.json")
	w := NewWriter(path, zerolog.Nop())
	w.now = func() time.Time { return testNow.Add(time.Minute) }

	_, err := w.Load()
	assert.ErrorIs(t, err, ErrNoRunState)

	state := domain.NewRunState(testNow)
	state.RecordAttempt("TCS")
	require.NoError(t, w.Write(&state))
	assert.Equal(t, "2024-03-01T12:01:00Z", state.UpdatedAt)

	loaded, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestWriter_DocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	w := NewWriter(path, zerolog.Nop())
	w.now = func() time.Time { return testNow }

	state := domain.NewRunState(testNow)
	require.NoError(t, w.Write(&state))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := `{
  "failures": [],
  "run_id": "refresh-2024-03-01T12-00-00",
  "source": "scheduled",
  "started_at": "2024-03-01T12:00:00Z",
  "status": "running",
  "symbols": [],
  "symbols_processed": 0,
  "updated_at": "2024-03-01T12:00:00Z",
  "warnings": 0
}
`
	assert.Equal(t, want, string(data))
}

func TestNewWriter_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, NewWriter("", zerolog.Nop()).Path())
}
