package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSymbolCanonicalizes(t *testing.T) {
	table := NewTable()

	a := table.NewSymbol("RhB")
	b := table.NewSymbol("RhB")

	assert.Same(t, a, b, "interning the same text twice must return the same instance")
	assert.True(t, a.Equals(b))
}

func TestNewSymbolEmptyString(t *testing.T) {
	table := NewTable()

	empty1 := table.NewSymbol("")
	empty2 := table.NewSymbol("")

	assert.Same(t, empty1, empty2)
	assert.Equal(t, "", empty1.Text())
}

func TestTableGrowsAtLoadFactor(t *testing.T) {
	table := NewTable()
	initial := len(table.buckets)

	// Cross the 75% watermark and confirm exactly one doubling occurs.
	target := (initial*loadFactorNumerator)/loadFactorDenominator + 1
	for i := 0; i < target; i++ {
		table.NewSymbol(string(rune('a' + i%26)) + string(rune(i)))
	}

	require.Greater(t, len(table.buckets), initial)
	assert.Equal(t, initial*2, len(table.buckets))
}

func TestLookupWithoutInsert(t *testing.T) {
	table := NewTable()
	_, ok := table.Lookup("Jungfrau")
	assert.False(t, ok)

	sym := table.NewSymbol("Jungfrau")
	found, ok := table.Lookup("Jungfrau")
	require.True(t, ok)
	assert.Same(t, sym, found)
}

func TestReferenceEqualityImpliesValueEquality(t *testing.T) {
	table := NewTable()
	words := []string{"a", "b", "ab", "abc", "a", "b"}
	seen := make(map[string]*Symbol)
	for _, w := range words {
		sym := table.NewSymbol(w)
		if prior, ok := seen[w]; ok {
			assert.True(t, sym == prior && sym.Equals(prior))
		}
		seen[w] = sym
	}
}
