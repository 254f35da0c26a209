package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAllowlist(t *testing.T) {
	al := ParseAllowlist("tcs, infy\nRELIANCE,x,TOOLONGSYMBOLNAME123")
	assert.Equal(t, []string{"INFY", "RELIANCE", "TCS"}, al.Symbols())
}

func TestParseAllowlist_FallsBackToDefault(t *testing.T) {
	assert.Len(t, ParseAllowlist(""), len(DefaultAllowlist))
	assert.Len(t, ParseAllowlist(" , ,"), len(DefaultAllowlist))
	assert.True(t, ParseAllowlist("").Contains("MRF"))
}

func TestValidateSymbol(t *testing.T) {
	al := NewAllowlist([]string{"TCS", "INFY"})

	got, err := ValidateSymbol(" tcs ", al)
	require.NoError(t, err)
	assert.Equal(t, "TCS", got)

	_, err = ValidateSymbol("WIPRO", al)
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = ValidateSymbol("T", al)
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = ValidateSymbol("TC-S", al)
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestValidateSymbol_EmptyAllowlistOnlyChecksFormat(t *testing.T) {
	got, err := ValidateSymbol("wipro", nil)
	require.NoError(t, err)
	assert.Equal(t, "WIPRO", got)
}
