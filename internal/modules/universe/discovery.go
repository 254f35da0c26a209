package universe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/registry"
)

// SuspendAfter is how long an active symbol may go unseen by discovery
// before it is suspended.
const SuspendAfter = 30 * 24 * time.Hour

// Listing is one symbol reported by a discovery source.
type Listing struct {
	Symbol      string `json:"symbol"`
	Exchange    string `json:"exchange"`
	CompanyName string `json:"company_name"`
	Sector      string `json:"sector"`
}

// Source yields listings from an exchange master list or seed file.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Listing, error)
}

// DiscoverySummary reports what a discovery pass changed.
type DiscoverySummary struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Suspended int `json:"suspended"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// DiscoveryService merges source listings into the registry.
type DiscoveryService struct {
	store registry.Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewDiscoveryService creates a discovery service.
func NewDiscoveryService(store registry.Store, log zerolog.Logger) *DiscoveryService {
	return &DiscoveryService{
		store: store,
		now:   time.Now,
		log:   log.With().Str("service", "discovery").Logger(),
	}
}

// Discover fetches every source, adds new symbols, refreshes known ones and
// suspends active symbols unseen for SuspendAfter. A failing source is
// logged and skipped. Changes are applied to the current stored records in
// one atomic patch at the end.
func (s *DiscoveryService) Discover(ctx context.Context, sources []Source) (DiscoverySummary, error) {
	var summary DiscoverySummary

	reg, err := s.store.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load registry: %w", err)
	}

	now := s.now().UTC()
	fetched := make(map[string]*domain.SymbolRecord)

	for _, src := range sources {
		listings, err := src.Fetch(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("source", src.Name()).Msg("Discovery source failed, skipping")
			continue
		}
		for _, l := range listings {
			symbol, err := NormaliseSymbol(l.Symbol)
			if err != nil {
				summary.Skipped++
				continue
			}
			rec := domain.NewSymbolRecord(symbol, NormaliseExchange(l.Exchange))
			rec.CompanyName = domain.StringPtr(l.CompanyName)
			rec.Sector = domain.StringPtr(l.Sector)
			rec.Source = domain.StringPtr(src.Name())
			fetched[symbol] = rec
		}
	}

	mutations := make(map[string]registry.Mutation, len(fetched))
	for symbol, incoming := range fetched {
		mutations[symbol] = func(current *domain.SymbolRecord) *domain.SymbolRecord {
			if current == nil {
				incoming.TouchSeen(now)
				incoming.Priority = ComputePriority(incoming, PriorityContext{}, now)
				summary.Added++
				return incoming
			}
			if incoming.CompanyName != nil {
				current.CompanyName = incoming.CompanyName
			}
			if incoming.Sector != nil {
				current.Sector = incoming.Sector
			}
			if incoming.Source != nil {
				current.Source = incoming.Source
			}
			current.TouchSeen(now)
			current.Priority = ComputePriority(current, PriorityContext{}, now)
			summary.Updated++
			return current
		}
	}

	for symbol, rec := range reg {
		if _, seen := fetched[symbol]; seen || !s.unseenTooLong(rec, now) {
			continue
		}
		mutations[symbol] = func(current *domain.SymbolRecord) *domain.SymbolRecord {
			if current == nil || !s.unseenTooLong(current, now) {
				return nil
			}
			current.Status = domain.StatusSuspended
			summary.Suspended++
			return current
		}
	}

	if err := s.store.Patch(ctx, mutations); err != nil {
		return summary, fmt.Errorf("failed to save registry: %w", err)
	}

	summary.Total = len(reg) + summary.Added
	s.log.Info().
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("suspended", summary.Suspended).
		Int("total", summary.Total).
		Msg("Discovery completed")

	return summary, nil
}

// unseenTooLong reports whether an active record was last seen at least
// SuspendAfter before now.
func (s *DiscoveryService) unseenTooLong(rec *domain.SymbolRecord, now time.Time) bool {
	if !rec.IsActive() {
		return false
	}
	lastSeen, ok, err := domain.ParseOptionalTimestamp(rec.LastSeen)
	if !ok || err != nil {
		return false
	}
	return now.Sub(lastSeen) >= SuspendAfter
}

// FileSource reads listings from a JSON seed file.
type FileSource struct {
	name string
	path string
}

// NewFileSource creates a source named name reading path.
func NewFileSource(name, path string) *FileSource {
	return &FileSource{name: name, path: path}
}

// Name identifies the source in record provenance.
func (f *FileSource) Name() string { return f.name }

// Fetch decodes the seed file.
func (f *FileSource) Fetch(ctx context.Context) ([]Listing, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var listings []Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", f.path, err)
	}
	return listings, nil
}
