// Package universe manages the symbol universe: normalization, allowlist
// validation, priority scoring and discovery of new listings.
package universe

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidSymbol is returned when a raw value cannot be turned into a symbol.
var ErrInvalidSymbol = errors.New("invalid symbol")

// DefaultExchange is assumed when no exchange is given.
const DefaultExchange = "NSE"

var (
	nonSymbolChars   = regexp.MustCompile(`[^A-Z0-9]`)
	nonExchangeChars = regexp.MustCompile(`[^A-Z]`)
)

// listingSuffixes are stripped from raw symbols; only the first match applies.
var listingSuffixes = []string{"-EQ", "-BE", ".NS", ".BO", "EQ", "-BL", "-BZ"}

var exchangeAliases = map[string]string{
	"NSE":    "NSE",
	"NSEI":   "NSE",
	"BSE":    "BSE",
	"BOMBAY": "BSE",
	"NYSE":   "NYSE",
	"NASDAQ": "NASDAQ",
}

// NormaliseSymbol upper-cases raw, strips one listing suffix and removes
// every character outside [A-Z0-9].
func NormaliseSymbol(raw string) (string, error) {
	candidate := strings.ToUpper(strings.TrimSpace(raw))
	for _, suffix := range listingSuffixes {
		if strings.HasSuffix(candidate, suffix) {
			candidate = strings.TrimSuffix(candidate, suffix)
			break
		}
	}

	candidate = nonSymbolChars.ReplaceAllString(candidate, "")
	if candidate == "" {
		return "", fmt.Errorf("%w: unable to normalise %q", ErrInvalidSymbol, raw)
	}
	return candidate, nil
}

// NormaliseExchange resolves exchange aliases. Blank input maps to NSE.
func NormaliseExchange(raw string) string {
	token := nonExchangeChars.ReplaceAllString(strings.ToUpper(raw), "")
	if alias, ok := exchangeAliases[token]; ok {
		return alias
	}
	if token == "" {
		return DefaultExchange
	}
	return token
}

// BuildKey returns the "SYMBOL:EXCHANGE" key of a listing.
func BuildKey(symbol, exchange string) (string, error) {
	sym, err := NormaliseSymbol(symbol)
	if err != nil {
		return "", err
	}
	return sym + ":" + NormaliseExchange(exchange), nil
}
