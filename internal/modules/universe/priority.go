package universe

import (
	"time"

	"github.com/aristath/symrefresh/internal/domain"
)

// Market cap tiers in INR crore.
const (
	highMarketCap = 50_000
	midMarketCap  = 10_000
	lowMarketCap  = 2_000
)

// StaleAfter is how long after its last refresh a record earns the
// staleness bump.
const StaleAfter = 7 * 24 * time.Hour

// inactiveCeiling caps the score of non-active records.
const inactiveCeiling = 2

// PriorityContext carries external signals that are not stored on the record.
type PriorityContext struct {
	Indices []string
}

// ComputePriority derives a base priority in [1,5] from market cap, index
// membership, the watchlist flag and refresh staleness. Non-active records
// never score above 2.
func ComputePriority(rec *domain.SymbolRecord, ctx PriorityContext, now time.Time) int {
	score := 1

	if rec.MarketCap != nil {
		switch mc := *rec.MarketCap; {
		case mc >= highMarketCap:
			score = 5
		case mc >= midMarketCap:
			score = max(score, 4)
		case mc >= lowMarketCap:
			score = max(score, 3)
		default:
			score = max(score, 2)
		}
	}

	if len(ctx.Indices) > 0 || metadataHasItems(rec.Metadata, "indices") {
		score = min(score+1, domain.MaxPriority)
	}

	if truthy(rec.Metadata["watchlist"]) {
		score = min(score+1, domain.MaxPriority)
	}

	refreshedAt, ok, err := rec.LastRefreshedAt()
	if !ok || err != nil || now.Sub(refreshedAt) > StaleAfter {
		score = min(score+1, domain.MaxPriority)
	}

	if !rec.IsActive() {
		score = min(score, inactiveCeiling)
	}

	return domain.ClampPriority(score)
}

func metadataHasItems(metadata map[string]any, key string) bool {
	switch v := metadata[key].(type) {
	case nil:
		return false
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case string:
		return v != ""
	default:
		return truthy(v)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
