// Package domain provides the core symbol registry models: symbol records,
// priority boosts and refresh run state.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// MinPriority is the lowest base priority.
	MinPriority = 1
	// MaxPriority is the highest base priority.
	MaxPriority = 5
	// MaxEffectivePriority is the ceiling of base priority plus boosts.
	MaxEffectivePriority = MaxPriority + MaxTotalBoostWeight
)

// SymbolStatus is the lifecycle state of a symbol record.
type SymbolStatus string

const (
	StatusActive    SymbolStatus = "active"
	StatusSuspended SymbolStatus = "suspended"
	StatusDelisted  SymbolStatus = "delisted"
)

// ParseSymbolStatus coerces unknown values to StatusActive.
func ParseSymbolStatus(value string) SymbolStatus {
	switch s := SymbolStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusActive, StatusSuspended, StatusDelisted:
		return s
	default:
		return StatusActive
	}
}

// ClampPriority bounds p to [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	return max(MinPriority, min(p, MaxPriority))
}

// PriorityLabel maps a base priority to its display bucket.
func PriorityLabel(p int) string {
	switch p {
	case 5, 4:
		return "HIGH"
	case 3:
		return "MEDIUM"
	case 2, 1:
		return "LOW"
	default:
		return fmt.Sprintf("P%d", p)
	}
}

// SymbolRecord is the schedulable unit of work.
// Fields are declared in JSON key order so the registry document has sorted keys.
type SymbolRecord struct {
	Boosts        []PriorityBoost `json:"boosts"`
	CompanyName   *string         `json:"company_name"`
	Exchange      string          `json:"exchange"`
	FailureCount  int             `json:"failure_count"`
	LastAttempt   *string         `json:"last_attempt"`
	LastRefreshed *string         `json:"last_refreshed"`
	LastSeen      *string         `json:"last_seen"`
	MarketCap     *float64        `json:"market_cap"`
	Metadata      map[string]any  `json:"metadata"`
	Priority      int             `json:"priority"`
	Sector        *string         `json:"sector"`
	Source        *string         `json:"source"`
	Status        SymbolStatus    `json:"status"`
	Symbol        string          `json:"symbol"`
}

// NewSymbolRecord creates an active priority-1 record.
func NewSymbolRecord(symbol, exchange string) *SymbolRecord {
	r := &SymbolRecord{
		Symbol:   symbol,
		Exchange: exchange,
		Priority: MinPriority,
		Status:   StatusActive,
	}
	r.Normalize()
	return r
}

// Normalize enforces the record invariants after construction or decoding.
func (r *SymbolRecord) Normalize() {
	r.Priority = ClampPriority(r.Priority)
	r.Status = ParseSymbolStatus(string(r.Status))
	if r.FailureCount < 0 {
		r.FailureCount = 0
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	if r.Boosts == nil {
		r.Boosts = []PriorityBoost{}
	}
}

// UnmarshalJSON decodes a stored record, dropping boosts that cannot be
// parsed and applying Normalize. A null or missing priority decodes as 1.
func (r *SymbolRecord) UnmarshalJSON(data []byte) error {
	type plain SymbolRecord
	var raw struct {
		plain
		Boosts       []json.RawMessage `json:"boosts"`
		Priority     *float64          `json:"priority"`
		FailureCount *float64          `json:"failure_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = SymbolRecord(raw.plain)
	r.Priority = MinPriority
	if raw.Priority != nil {
		r.Priority = int(*raw.Priority)
	}
	r.FailureCount = 0
	if raw.FailureCount != nil {
		r.FailureCount = int(*raw.FailureCount)
	}

	r.Boosts = make([]PriorityBoost, 0, len(raw.Boosts))
	for _, item := range raw.Boosts {
		var b PriorityBoost
		if err := json.Unmarshal(item, &b); err != nil {
			continue
		}
		r.Boosts = append(r.Boosts, b)
	}

	r.Normalize()
	return nil
}

// Clone returns a deep copy of the record.
func (r *SymbolRecord) Clone() *SymbolRecord {
	c := *r
	c.Boosts = append([]PriorityBoost(nil), r.Boosts...)
	c.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		c.Metadata[k] = v
	}
	c.CompanyName = cloneString(r.CompanyName)
	c.Sector = cloneString(r.Sector)
	c.Source = cloneString(r.Source)
	c.LastSeen = cloneString(r.LastSeen)
	c.LastRefreshed = cloneString(r.LastRefreshed)
	c.LastAttempt = cloneString(r.LastAttempt)
	if r.MarketCap != nil {
		mc := *r.MarketCap
		c.MarketCap = &mc
	}
	return &c
}

// IsActive reports whether the record is eligible for refreshes.
func (r *SymbolRecord) IsActive() bool {
	return r.Status == StatusActive
}

// TouchSeen records that discovery saw the symbol at now.
func (r *SymbolRecord) TouchSeen(now time.Time) {
	r.LastSeen = timestampPtr(now)
}

// TouchRefreshed records a completed refresh at now.
func (r *SymbolRecord) TouchRefreshed(now time.Time) {
	r.LastRefreshed = timestampPtr(now)
}

// MarkAttempt records the start of a refresh attempt.
func (r *SymbolRecord) MarkAttempt(now time.Time) {
	r.LastAttempt = timestampPtr(now)
}

// RecordSuccess resets the failure streak and touches last_refreshed.
func (r *SymbolRecord) RecordSuccess(now time.Time) {
	r.FailureCount = 0
	r.LastAttempt = timestampPtr(now)
	r.TouchRefreshed(now)
}

// RecordFailure extends the failure streak.
func (r *SymbolRecord) RecordFailure(now time.Time) {
	r.FailureCount = max(r.FailureCount, 0) + 1
	r.LastAttempt = timestampPtr(now)
}

// PruneExpiredBoosts drops expired boosts and reports whether any were removed.
func (r *SymbolRecord) PruneExpiredBoosts(now time.Time) bool {
	active := ActiveBoosts(r.Boosts, now)
	changed := len(active) != len(r.Boosts)
	r.Boosts = active
	return changed
}

// AddBoost stacks boost onto the record. It returns false when the boost
// was rejected for a non-positive weight.
func (r *SymbolRecord) AddBoost(boost PriorityBoost, now time.Time) bool {
	stacked, ok := StackBoosts(r.Boosts, boost, now)
	if ok {
		r.Boosts = stacked
	}
	return ok
}

// ActiveBoosts returns the boosts active at now.
func (r *SymbolRecord) ActiveBoosts(now time.Time) []PriorityBoost {
	return ActiveBoosts(r.Boosts, now)
}

// ActiveBoostKinds lists the kinds of boosts active at now.
func (r *SymbolRecord) ActiveBoostKinds(now time.Time) []string {
	active := r.ActiveBoosts(now)
	kinds := make([]string, 0, len(active))
	for _, b := range active {
		kinds = append(kinds, b.Kind)
	}
	return kinds
}

// ActiveBoostWeight is the capped sum of active boost weights.
func (r *SymbolRecord) ActiveBoostWeight(now time.Time) int {
	return ActiveWeight(r.Boosts, now)
}

// EffectivePriority is the base priority plus active boost weight.
func (r *SymbolRecord) EffectivePriority(now time.Time) int {
	effective := r.Priority + r.ActiveBoostWeight(now)
	return max(MinPriority, min(effective, MaxEffectivePriority))
}

// EffectivePriorityLabel renders the base label with a "+N" boost suffix.
func (r *SymbolRecord) EffectivePriorityLabel(now time.Time) string {
	label := PriorityLabel(r.Priority)
	if boost := r.ActiveBoostWeight(now); boost > 0 {
		return fmt.Sprintf("%s+%d", label, boost)
	}
	return label
}

// LastRefreshedAt parses last_refreshed. ok is false when never refreshed.
func (r *SymbolRecord) LastRefreshedAt() (time.Time, bool, error) {
	return ParseOptionalTimestamp(r.LastRefreshed)
}

// LastAttemptAt parses last_attempt. ok is false when never attempted.
func (r *SymbolRecord) LastAttemptAt() (time.Time, bool, error) {
	return ParseOptionalTimestamp(r.LastAttempt)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
