// Package registry persists the symbol registry. Callers depend on the
// Store interface; JSON document and SQLite backends implement it.
package registry

import (
	"context"
	"errors"

	"github.com/aristath/symrefresh/internal/domain"
)

// ErrNotFound is returned by Get for unknown symbols.
var ErrNotFound = errors.New("symbol not found in registry")

// Mutation edits the stored record of one symbol. rec is nil when the
// symbol is not stored. The returned record is written; nil leaves the
// store unchanged for that symbol.
type Mutation func(rec *domain.SymbolRecord) *domain.SymbolRecord

// Store is the durable home of symbol records.
type Store interface {
	// Load returns the full registry. A store with no data returns an empty registry.
	Load(ctx context.Context) (domain.Registry, error)
	// Save persists every record in reg.
	Save(ctx context.Context, reg domain.Registry) error
	// Upsert persists a single record.
	Upsert(ctx context.Context, rec *domain.SymbolRecord) error
	// Patch applies each mutation to the current stored record of its symbol
	// and writes the results in one atomic step. Records without a mutation
	// are left as stored.
	Patch(ctx context.Context, mutations map[string]Mutation) error
	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, symbol string) (*domain.SymbolRecord, error)
}
