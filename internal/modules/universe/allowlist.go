package universe

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aristath/symrefresh/internal/utils"
)

var symbolFormat = regexp.MustCompile(`^[A-Z0-9]{2,15}$`)

// DefaultAllowlist is used when no allowlist is configured.
var DefaultAllowlist = []string{
	"RELIANCE",
	"TCS",
	"INFY",
	"HDFCBANK",
	"BHEL",
	"TATASTEEL",
	"HINDUNILVR",
	"MRF",
}

// Allowlist is the set of symbols permitted in explicit refresh runs.
type Allowlist map[string]struct{}

// NewAllowlist upper-cases and trims symbols, keeping only well-formed ones.
func NewAllowlist(symbols []string) Allowlist {
	al := make(Allowlist, len(symbols))
	for _, s := range symbols {
		cleaned := strings.ToUpper(strings.TrimSpace(s))
		if symbolFormat.MatchString(cleaned) {
			al[cleaned] = struct{}{}
		}
	}
	return al
}

// ParseAllowlist reads a comma or newline separated list. It falls back to
// DefaultAllowlist when raw yields no valid symbol.
func ParseAllowlist(raw string) Allowlist {
	if al := NewAllowlist(utils.ParseList(raw)); len(al) > 0 {
		return al
	}
	return NewAllowlist(DefaultAllowlist)
}

// Contains reports membership.
func (al Allowlist) Contains(symbol string) bool {
	_, ok := al[symbol]
	return ok
}

// Symbols returns the members sorted.
func (al Allowlist) Symbols() []string {
	out := make([]string, 0, len(al))
	for s := range al {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ValidateSymbol checks the 2-15 alphanumeric format and, when al is
// non-empty, membership. It returns the cleaned symbol.
func ValidateSymbol(symbol string, al Allowlist) (string, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolFormat.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q must be 2-15 alphanumeric characters", ErrInvalidSymbol, symbol)
	}
	if len(al) > 0 && !al.Contains(cleaned) {
		return "", fmt.Errorf("%w: %s is not in the allowlist", ErrInvalidSymbol, cleaned)
	}
	return cleaned, nil
}
