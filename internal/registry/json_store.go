package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/symrefresh/internal/domain"
	"github.com/aristath/symrefresh/internal/utils"
)

// DefaultPath is the conventional location of the registry document.
const DefaultPath = "data/system/symbol_registry.json"

// JSONFileStore keeps the registry as a single JSON array on disk.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
	log  zerolog.Logger
}

// NewJSONFileStore creates a store backed by the document at path.
func NewJSONFileStore(path string, log zerolog.Logger) *JSONFileStore {
	if path == "" {
		path = DefaultPath
	}
	return &JSONFileStore{
		path: path,
		log:  log.With().Str("store", "json").Str("path", path).Logger(),
	}
}

// Path returns the document location.
func (s *JSONFileStore) Path() string {
	return s.path
}

// Load reads the document. A missing file yields an empty registry; a
// malformed document is an error. Entries that cannot be decoded or carry
// no symbol are skipped.
func (s *JSONFileStore) Load(ctx context.Context) (domain.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONFileStore) load() (domain.Registry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", s.path, err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", s.path, err)
	}

	reg := make(domain.Registry, len(entries))
	for i, entry := range entries {
		var rec domain.SymbolRecord
		if err := json.Unmarshal(entry, &rec); err != nil || rec.Symbol == "" {
			s.log.Warn().Err(err).Int("index", i).Msg("Skipping malformed registry entry")
			continue
		}
		reg.Put(&rec)
	}
	return reg, nil
}

// Save rewrites the whole document atomically, ordered by symbol.
func (s *JSONFileStore) Save(ctx context.Context, reg domain.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(reg)
}

func (s *JSONFileStore) save(reg domain.Registry) error {
	records := reg.Records()
	if records == nil {
		records = []*domain.SymbolRecord{}
	}
	if err := utils.WriteJSONAtomic(s.path, records); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	s.log.Debug().Int("records", len(records)).Msg("Registry saved")
	return nil
}

// Upsert reads the document, replaces one record and writes it back.
func (s *JSONFileStore) Upsert(ctx context.Context, rec *domain.SymbolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.load()
	if err != nil {
		return err
	}
	reg.Put(rec)
	return s.save(reg)
}

// Patch reads the document, applies mutations and writes it back once.
func (s *JSONFileStore) Patch(ctx context.Context, mutations map[string]Mutation) error {
	if len(mutations) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.load()
	if err != nil {
		return err
	}

	changed := false
	for symbol, mutate := range mutations {
		current, _ := reg.Get(symbol)
		if next := mutate(current); next != nil {
			reg.Put(next)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(reg)
}

// Get returns the stored record for symbol.
func (s *JSONFileStore) Get(ctx context.Context, symbol string) (*domain.SymbolRecord, error) {
	reg, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := reg.Get(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	return rec, nil
}
