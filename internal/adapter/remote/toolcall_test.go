package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_FragmentedArgumentsAcrossByteBoundaries(t *testing.T) {
	acc := NewAccumulator()
	key := IndexKey(0)

	_, emitted := acc.Apply(key, Fragment{ID: "call_1", Name: "lookup"})
	// Name alone yields an empty-argument invocation
	assert.True(t, emitted)

	_, emitted = acc.Apply(key, Fragment{Arguments: `{"q":`})
	// Partial JSON parses to the raw fallback, a change worth emitting
	assert.True(t, emitted)

	call, emitted := acc.Apply(key, Fragment{Arguments: `"x"}`})
	require.True(t, emitted)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "lookup", call.Name)
	require.True(t, call.Arguments.IsParsed())
	assert.Equal(t, map[string]any{"q": "x"}, call.Arguments.Value())
}

func TestAccumulator_NoEmissionWithoutName(t *testing.T) {
	acc := NewAccumulator()

	_, emitted := acc.Apply(IndexKey(0), Fragment{Arguments: `{"a":1}`})
	assert.False(t, emitted)
	assert.Equal(t, 1, acc.Len())
}

func TestAccumulator_NameIsIdempotent(t *testing.T) {
	acc := NewAccumulator()
	key := IndexKey(0)

	acc.Apply(key, Fragment{Name: "search", Arguments: `{"a":1}`})
	_, emitted := acc.Apply(key, Fragment{Name: "search"})
	assert.False(t, emitted, "repeated name with unchanged arguments must not re-emit")
}

func TestAccumulator_ReplaceOverwritesAccumulated(t *testing.T) {
	acc := NewAccumulator()
	key := IndexKey(0)

	acc.Apply(key, Fragment{Name: "search", Arguments: `{"partial":`})
	call, emitted := acc.Apply(key, Fragment{Arguments: `{"final":true}`, Replace: true})
	require.True(t, emitted)
	require.True(t, call.Arguments.IsParsed())
	assert.Equal(t, map[string]any{"final": true}, call.Arguments.Value())
}

func TestAccumulator_IndependentSlots(t *testing.T) {
	acc := NewAccumulator()

	first, emitted := acc.Apply(IndexKey(0), Fragment{ID: "a", Name: "alpha", Arguments: `{}`})
	require.True(t, emitted)
	second, emitted := acc.Apply(IndexKey(1), Fragment{ID: "b", Name: "beta", Arguments: `{}`})
	require.True(t, emitted)

	assert.Equal(t, "alpha", first.Name)
	assert.Equal(t, "beta", second.Name)
	assert.Equal(t, 2, acc.Len())
}

func TestAccumulator_ItemKeyedEvents(t *testing.T) {
	acc := NewAccumulator()
	key := ItemKey("item_42")

	acc.Apply(key, Fragment{ID: "call_9", Name: "fetch"})
	acc.Apply(key, Fragment{Arguments: `{"url":`})
	call, emitted := acc.Apply(key, Fragment{Arguments: `{"url":"https://e.com"}`, Replace: true})
	require.True(t, emitted)
	assert.Equal(t, map[string]any{"url": "https://e.com"}, call.Arguments.Value())
}

func TestAccumulator_FinalizeForceEmitsEverything(t *testing.T) {
	acc := NewAccumulator()

	acc.Apply(IndexKey(0), Fragment{ID: "a", Name: "alpha", Arguments: `{"n":1}`})
	acc.Apply(IndexKey(1), Fragment{Arguments: `{"nameless":true}`})
	acc.Apply(IndexKey(2), Fragment{ID: "c", Name: "gamma"})

	calls := acc.Finalize()
	require.Len(t, calls, 2, "nameless slots are never emitted")
	assert.Equal(t, "alpha", calls[0].Name)
	assert.Equal(t, "gamma", calls[1].Name)
}

func TestAccumulator_UnparseableArgumentsFallBackToRaw(t *testing.T) {
	acc := NewAccumulator()

	call, emitted := acc.Apply(IndexKey(0), Fragment{Name: "broken", Arguments: `not json at all`})
	require.True(t, emitted)
	assert.False(t, call.Arguments.IsParsed())
	assert.Equal(t, map[string]any{"raw": "not json at all"}, call.Arguments.Value())
}

func TestAccumulator_EmptyArgumentsParseToEmptyObject(t *testing.T) {
	acc := NewAccumulator()

	call, emitted := acc.Apply(IndexKey(0), Fragment{Name: "noargs"})
	require.True(t, emitted)
	assert.True(t, call.Arguments.IsParsed())
	assert.Equal(t, map[string]any{}, call.Arguments.Value())
}
