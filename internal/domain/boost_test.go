package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func boost(kind string, weight int, ttl time.Duration) PriorityBoost {
	return NewBoost(kind, weight, ttl, BoostSourceManual, refNow)
}

func TestPriorityBoost_IsActive(t *testing.T) {
	b := boost("news", 1, time.Hour)

	assert.True(t, b.IsActive(refNow))
	assert.True(t, b.IsActive(refNow.Add(59*time.Minute)))
	assert.False(t, b.IsActive(refNow.Add(time.Hour)), "expires exactly at expires_at")
	assert.False(t, b.IsActive(refNow.Add(2*time.Hour)))
}

func TestStackBoosts_RejectsNonPositiveWeight(t *testing.T) {
	existing := []PriorityBoost{boost("a", 1, time.Hour)}

	for _, w := range []int{0, -2} {
		stacked, ok := StackBoosts(existing, boost("bad", w, time.Hour), refNow)
		assert.False(t, ok)
		assert.Equal(t, existing, stacked)
	}
}

func TestStackBoosts_EvictsSoonestExpiringFirst(t *testing.T) {
	existing := []PriorityBoost{
		boost("short", 2, time.Hour),
		boost("long", 1, 10*time.Hour),
	}

	stacked, ok := StackBoosts(existing, boost("new", 2, 5*time.Hour), refNow)
	require.True(t, ok)

	kinds := make([]string, 0, len(stacked))
	for _, b := range stacked {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []string{"new", "long"}, kinds)
	assert.Equal(t, 3, ActiveWeight(stacked, refNow))
}

func TestStackBoosts_HighWeightCanBeEvictedForDurableBoost(t *testing.T) {
	existing := []PriorityBoost{boost("big", 3, time.Hour)}

	stacked, ok := StackBoosts(existing, boost("small", 1, 24*time.Hour), refNow)
	require.True(t, ok)
	require.Len(t, stacked, 1)
	assert.Equal(t, "small", stacked[0].Kind)
}

func TestStackBoosts_DropsExpired(t *testing.T) {
	expired := NewBoost("old", 1, time.Hour, BoostSourceSystem, refNow.Add(-2*time.Hour))

	stacked, ok := StackBoosts([]PriorityBoost{expired}, boost("fresh", 1, time.Hour), refNow)
	require.True(t, ok)
	require.Len(t, stacked, 1)
	assert.Equal(t, "fresh", stacked[0].Kind)
}

func TestStackBoosts_DoesNotMutateInput(t *testing.T) {
	existing := []PriorityBoost{boost("a", 2, time.Hour), boost("b", 1, 2*time.Hour)}
	snapshot := append([]PriorityBoost(nil), existing...)

	_, _ = StackBoosts(existing, boost("c", 3, 3*time.Hour), refNow)
	assert.Equal(t, snapshot, existing)
}

func TestStackBoosts_CapHoldsForAnySequence(t *testing.T) {
	var boosts []PriorityBoost
	weights := []int{1, 3, 2, 1, 1, 2, 3, 1}
	for i, w := range weights {
		now := refNow.Add(time.Duration(i) * 10 * time.Minute)
		b := NewBoost("k", w, time.Duration(i%3+1)*time.Hour, BoostSourceManual, now)
		boosts, _ = StackBoosts(boosts, b, now)

		for _, probe := range []time.Duration{0, 30 * time.Minute, 2 * time.Hour} {
			assert.LessOrEqual(t, rawActiveWeight(boosts, now.Add(probe)), MaxTotalBoostWeight)
		}
	}
}

func TestPriorityBoost_JSONRoundTrip(t *testing.T) {
	b := boost("earnings", 2, 90*time.Minute)

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"expires_at":"2024-03-01T13:30:00Z","kind":"earnings","source":"manual","weight":2}`, string(data))

	var decoded PriorityBoost
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.ExpiresAt.Equal(b.ExpiresAt))
	assert.Equal(t, b.Kind, decoded.Kind)
	assert.Equal(t, b.Weight, decoded.Weight)
}

func TestPriorityBoost_UnmarshalDefaultsAndOffsets(t *testing.T) {
	var b PriorityBoost
	require.NoError(t, json.Unmarshal([]byte(`{"expires_at":"2024-03-01T18:00:00+05:30","weight":1}`), &b))

	assert.Equal(t, "unknown", b.Kind)
	assert.Equal(t, BoostSource("unknown"), b.Source)
	assert.True(t, b.ExpiresAt.Equal(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)))
}

func TestPriorityBoost_UnmarshalRequiresExpiry(t *testing.T) {
	var b PriorityBoost
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"x","weight":1}`), &b))
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"x","weight":1,"expires_at":"soon"}`), &b))
}
