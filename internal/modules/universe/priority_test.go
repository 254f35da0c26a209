package universe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/symrefresh/internal/domain"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func freshRecord(marketCap *float64) *domain.SymbolRecord {
	rec := domain.NewSymbolRecord("TCS", "NSE")
	rec.MarketCap = marketCap
	rec.TouchRefreshed(now.Add(-time.Hour))
	return rec
}

func mcap(v float64) *float64 { return &v }

func TestComputePriority_MarketCapTiers(t *testing.T) {
	tests := []struct {
		name      string
		marketCap *float64
		want      int
	}{
		{"unknown", nil, 1},
		{"micro", mcap(500), 2},
		{"small", mcap(2_000), 3},
		{"mid", mcap(10_000), 4},
		{"large", mcap(50_000), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputePriority(freshRecord(tt.marketCap), PriorityContext{}, now))
		})
	}
}

func TestComputePriority_Signals(t *testing.T) {
	rec := freshRecord(mcap(2_000))
	assert.Equal(t, 4, ComputePriority(rec, PriorityContext{Indices: []string{"NIFTY50"}}, now))

	rec.Metadata["indices"] = []any{"NIFTY50"}
	rec.Metadata["watchlist"] = true
	assert.Equal(t, 5, ComputePriority(rec, PriorityContext{}, now))
}

func TestComputePriority_Staleness(t *testing.T) {
	never := domain.NewSymbolRecord("TCS", "NSE")
	assert.Equal(t, 2, ComputePriority(never, PriorityContext{}, now))

	exact := domain.NewSymbolRecord("TCS", "NSE")
	exact.TouchRefreshed(now.Add(-StaleAfter))
	assert.Equal(t, 1, ComputePriority(exact, PriorityContext{}, now))

	stale := domain.NewSymbolRecord("TCS", "NSE")
	stale.TouchRefreshed(now.Add(-StaleAfter - time.Second))
	assert.Equal(t, 2, ComputePriority(stale, PriorityContext{}, now))
}

func TestComputePriority_InactiveCeiling(t *testing.T) {
	rec := freshRecord(mcap(90_000))
	rec.Status = domain.StatusSuspended
	assert.Equal(t, 2, ComputePriority(rec, PriorityContext{}, now))
}
