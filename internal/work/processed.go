package work

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirectorySymbolLister lists symbols from "<SYMBOL>.json" files in a
// processed data directory.
type DirectorySymbolLister struct {
	dir string
}

// NewDirectorySymbolLister creates a lister over dir.
func NewDirectorySymbolLister(dir string) *DirectorySymbolLister {
	return &DirectorySymbolLister{dir: dir}
}

// ListSymbols returns the upper-cased file stems, sorted. A missing
// directory yields no symbols.
func (l *DirectorySymbolLister) ListSymbols(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list processed symbols: %w", err)
	}

	var symbols []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		symbols = append(symbols, strings.ToUpper(strings.TrimSuffix(entry.Name(), ".json")))
	}
	sort.Strings(symbols)
	return symbols, nil
}
