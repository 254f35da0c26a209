// Package boosts applies temporary priority boosts to registry symbols.
package boosts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/registry"
)

const (
	// MaxWeight caps a single requested boost.
	MaxWeight = domain.MaxTotalBoostWeight
	// MaxTTLHours caps how long a boost may live.
	MaxTTLHours = 48
	// DefaultKind labels requests that name no kind.
	DefaultKind = "manual"
)

var (
	// ErrInvalidBoostRequest is returned for non-positive weight or TTL.
	ErrInvalidBoostRequest = errors.New("invalid boost request")
	// ErrSymbolNotFound is returned when the symbol is not in the registry.
	ErrSymbolNotFound = errors.New("symbol not present in registry")
)

// Request describes a boost to apply.
type Request struct {
	Symbol   string             `json:"symbol"`
	Kind     string             `json:"kind"`
	Weight   int                `json:"weight"`
	TTLHours int                `json:"ttl_hours"`
	Source   domain.BoostSource `json:"source,omitempty"`
}

// Applied is the outcome of a successful Apply.
type Applied struct {
	Symbol            string
	Boost             domain.PriorityBoost
	EffectivePriority string
	ExpiresAt         time.Time
}

// Service validates and persists boosts.
type Service struct {
	store registry.Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewService creates a boost service.
func NewService(store registry.Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With().Str("service", "boosts").Logger(),
	}
}

// Apply stacks a boost onto the symbol's record. Weight is capped at
// MaxWeight and TTL at MaxTTLHours; when the record's total would exceed
// the cap, the soonest-expiring boosts are evicted first. An empty kind
// becomes DefaultKind.
func (s *Service) Apply(ctx context.Context, req Request) (*Applied, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	kind := strings.TrimSpace(req.Kind)

	if kind == "" {
		kind = DefaultKind
	}
	if req.Weight <= 0 {
		return nil, fmt.Errorf("%w: weight must be positive", ErrInvalidBoostRequest)
	}
	if req.TTLHours <= 0 {
		return nil, fmt.Errorf("%w: ttl_hours must be positive", ErrInvalidBoostRequest)
	}

	source := req.Source
	if source == "" {
		source = domain.BoostSourceManual
	}

	now := s.now()
	ttl := time.Duration(min(req.TTLHours, MaxTTLHours)) * time.Hour
	boost := domain.NewBoost(kind, min(req.Weight, MaxWeight), ttl, source, now)

	var boosted *domain.SymbolRecord
	err := s.store.Patch(ctx, map[string]registry.Mutation{
		symbol: func(rec *domain.SymbolRecord) *domain.SymbolRecord {
			if rec == nil {
				return nil
			}
			rec.AddBoost(boost, now)
			boosted = rec
			return rec
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", symbol, err)
	}
	if boosted == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	s.log.Info().
		Str("symbol", symbol).
		Str("kind", boost.Kind).
		Int("weight", boost.Weight).
		Time("expires_at", boost.ExpiresAt).
		Msg("Priority boost applied")

	return &Applied{
		Symbol:            symbol,
		Boost:             boost,
		EffectivePriority: boosted.EffectivePriorityLabel(now),
		ExpiresAt:         boost.ExpiresAt,
	}, nil
}
