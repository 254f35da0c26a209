package domain

import (
	"sort"
	"time"
)

// Registry maps a normalized symbol to its record.
type Registry map[string]*SymbolRecord

// NewRegistry builds a registry from records. Later duplicates win.
func NewRegistry(records ...*SymbolRecord) Registry {
	reg := make(Registry, len(records))
	for _, rec := range records {
		reg.Put(rec)
	}
	return reg
}

// Put inserts or replaces a record under its symbol.
func (reg Registry) Put(rec *SymbolRecord) {
	if rec == nil || rec.Symbol == "" {
		return
	}
	reg[rec.Symbol] = rec
}

// Get returns the record for symbol.
func (reg Registry) Get(symbol string) (*SymbolRecord, bool) {
	rec, ok := reg[symbol]
	return rec, ok
}

// Symbols returns the registry keys in ascending order.
func (reg Registry) Symbols() []string {
	symbols := make([]string, 0, len(reg))
	for s := range reg {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Records returns all records ordered by symbol.
func (reg Registry) Records() []*SymbolRecord {
	records := make([]*SymbolRecord, 0, len(reg))
	for _, s := range reg.Symbols() {
		records = append(records, reg[s])
	}
	return records
}

// Active returns the active records ordered by symbol.
func (reg Registry) Active() []*SymbolRecord {
	var active []*SymbolRecord
	for _, rec := range reg.Records() {
		if rec.IsActive() {
			active = append(active, rec)
		}
	}
	return active
}

// ActiveByPriority orders active records by effective priority descending,
// then by last refresh ascending (never refreshed first), then by symbol.
func (reg Registry) ActiveByPriority(now time.Time) []*SymbolRecord {
	type keyed struct {
		rec       *SymbolRecord
		effective int
		refreshed int64
	}

	items := make([]keyed, 0, len(reg))
	for _, rec := range reg {
		if !rec.IsActive() {
			continue
		}
		var refreshed int64
		if t, ok, err := rec.LastRefreshedAt(); ok && err == nil {
			refreshed = t.UnixNano()
		}
		items = append(items, keyed{rec: rec, effective: rec.EffectivePriority(now), refreshed: refreshed})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].effective != items[j].effective {
			return items[i].effective > items[j].effective
		}
		if items[i].refreshed != items[j].refreshed {
			return items[i].refreshed < items[j].refreshed
		}
		return items[i].rec.Symbol < items[j].rec.Symbol
	})

	ordered := make([]*SymbolRecord, len(items))
	for i, item := range items {
		ordered[i] = item.rec
	}
	return ordered
}

// PruneExpiredBoosts prunes every record and reports whether anything changed.
func (reg Registry) PruneExpiredBoosts(now time.Time) bool {
	changed := false
	for _, rec := range reg {
		if rec.PruneExpiredBoosts(now) {
			changed = true
		}
	}
	return changed
}
