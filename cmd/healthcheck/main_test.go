package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/symrefresh/internal/clients/ingest"
)

type stubProber struct {
	report *ingest.HealthReport
	err    error
}

func (s stubProber) Health(ctx context.Context) (*ingest.HealthReport, error) {
	return s.report, s.err
}

func TestCheck(t *testing.T) {
	stale, warnings := 3, 12
	degraded := &ingest.HealthReport{Status: "degraded"}
	degraded.Symbols.Stale = &stale
	degraded.Warnings.Total = &warnings

	tests := []struct {
		name   string
		prober stubProber
		ready  bool
		reason string
	}{
		{"healthy", stubProber{report: &ingest.HealthReport{Status: "healthy"}}, true, "healthy"},
		{"degraded", stubProber{report: degraded}, true, "degraded"},
		{"failing", stubProber{report: &ingest.HealthReport{Status: "failing"}}, false, "status:failing"},
		{"unreachable", stubProber{err: errors.New("dial tcp: connection refused")}, false, "request_failed"},
		{"http error", stubProber{err: &ingest.StatusError{StatusCode: 503}}, false, "http_error:503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, reason := check(context.Background(), tt.prober, zerolog.Nop())
			assert.Equal(t, tt.ready, ready)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestWriteOutputs_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(path, []byte("previous=1\n"), 0644))

	require.NoError(t, writeOutputs(path, false, "status:failing\nextra"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous=1\nrefresh_ready=false\nreason=status:failing extra\n", string(data))
}

func TestWriteOutputs_RepeatedWritesAndErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")

	require.NoError(t, writeOutputs(path, true, "status:healthy"))
	require.NoError(t, writeOutputs(path, false, "status:failing"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh_ready=true\nreason=status:healthy\nrefresh_ready=false\nreason=status:failing\n", string(data))

	assert.Error(t, writeOutputs(t.TempDir(), true, "status:healthy"))
}
