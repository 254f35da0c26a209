package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MaxTotalBoostWeight caps the summed weight of active boosts on a record.
const MaxTotalBoostWeight = 3

// BoostSource identifies who granted a boost.
type BoostSource string

const (
	BoostSourceManual    BoostSource = "manual"
	BoostSourceSystem    BoostSource = "system"
	BoostSourceScheduler BoostSource = "scheduler"
)

// PriorityBoost is a temporary, weighted priority increment.
// Fields are declared in JSON key order so encoded documents have sorted keys.
type PriorityBoost struct {
	ExpiresAt time.Time   `json:"expires_at"`
	Kind      string      `json:"kind"`
	Source    BoostSource `json:"source"`
	Weight    int         `json:"weight"`
}

// NewBoost creates a boost expiring ttl after now.
func NewBoost(kind string, weight int, ttl time.Duration, source BoostSource, now time.Time) PriorityBoost {
	return PriorityBoost{
		ExpiresAt: now.Add(ttl).UTC(),
		Kind:      kind,
		Source:    source,
		Weight:    weight,
	}
}

// IsActive reports whether the boost has not yet expired at now.
func (b PriorityBoost) IsActive(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

type boostJSON struct {
	ExpiresAt string      `json:"expires_at"`
	Kind      *string     `json:"kind"`
	Source    *string     `json:"source"`
	Weight    json.Number `json:"weight"`
}

// MarshalJSON writes expires_at in UTC.
func (b PriorityBoost) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ExpiresAt string      `json:"expires_at"`
		Kind      string      `json:"kind"`
		Source    BoostSource `json:"source"`
		Weight    int         `json:"weight"`
	}{
		ExpiresAt: FormatTimestamp(b.ExpiresAt),
		Kind:      b.Kind,
		Source:    b.Source,
		Weight:    b.Weight,
	})
}

// UnmarshalJSON requires a parsable expires_at. Missing kind and source
// decode as "unknown".
func (b *PriorityBoost) UnmarshalJSON(data []byte) error {
	var raw boostJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	expiresAt, err := ParseTimestamp(raw.ExpiresAt)
	if err != nil {
		return fmt.Errorf("boost expires_at: %w", err)
	}

	weight := 0
	if raw.Weight != "" {
		f, err := raw.Weight.Float64()
		if err != nil {
			return fmt.Errorf("boost weight: %w", err)
		}
		weight = int(f)
	}

	b.ExpiresAt = expiresAt
	b.Weight = weight
	b.Kind = "unknown"
	if raw.Kind != nil {
		b.Kind = *raw.Kind
	}
	b.Source = "unknown"
	if raw.Source != nil {
		b.Source = BoostSource(*raw.Source)
	}
	return nil
}

// ActiveBoosts returns the boosts still active at now, preserving order.
func ActiveBoosts(boosts []PriorityBoost, now time.Time) []PriorityBoost {
	active := make([]PriorityBoost, 0, len(boosts))
	for _, b := range boosts {
		if b.IsActive(now) {
			active = append(active, b)
		}
	}
	return active
}

func rawActiveWeight(boosts []PriorityBoost, now time.Time) int {
	total := 0
	for _, b := range boosts {
		if b.IsActive(now) && b.Weight > 0 {
			total += b.Weight
		}
	}
	return total
}

// ActiveWeight sums the weights of active boosts, capped at MaxTotalBoostWeight.
func ActiveWeight(boosts []PriorityBoost, now time.Time) int {
	return min(rawActiveWeight(boosts, now), MaxTotalBoostWeight)
}

// StackBoosts returns the boost set that results from adding boost to
// existing at now. Expired boosts are dropped and, while the active weight
// exceeds MaxTotalBoostWeight, the soonest-expiring boost is evicted. The
// input slice is not modified. ok is false when the boost was rejected
// because its weight is not positive; existing is then returned unchanged.
func StackBoosts(existing []PriorityBoost, boost PriorityBoost, now time.Time) (stacked []PriorityBoost, ok bool) {
	if boost.Weight <= 0 {
		return existing, false
	}

	stacked = append(ActiveBoosts(existing, now), boost)
	sort.SliceStable(stacked, func(i, j int) bool {
		return stacked[i].ExpiresAt.Before(stacked[j].ExpiresAt)
	})

	for len(stacked) > 0 && rawActiveWeight(stacked, now) > MaxTotalBoostWeight {
		stacked = stacked[1:]
	}

	return ActiveBoosts(stacked, now), true
}
