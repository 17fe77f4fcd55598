package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_IgnoresQuantity(t *testing.T) {
	a := NewStack(NewKey("STONE", ""), 1)
	b := NewStack(NewKey("STONE", ""), 64)
	assert.Equal(t, IdentityOf(a), IdentityOf(b))
	assert.True(t, IdentityOf(a).Equal(IdentityOf(b)))
	assert.Equal(t, IdentityOf(a).Hash(), IdentityOf(b).Hash())

	m := map[Key]int{IdentityOf(a): 1}
	m[IdentityOf(b)]++
	assert.Len(t, m, 1)
}

func TestKey_AuxIsCanonical(t *testing.T) {
	k1, err := KeyOf("SWORD", map[string]any{"b": 2, "a": map[string]any{"y": 1, "x": 0}})
	require.NoError(t, err)
	k2, err := KeyOf("SWORD", map[string]any{"a": map[string]any{"x": 0, "y": 1}, "b": 2})
	require.NoError(t, err)
	assert.True(t, k1.Equal(k2))
	assert.Equal(t, k1, k2)

	plain := NewKey("SWORD", "")
	assert.False(t, k1.Equal(plain))
	assert.NotEqual(t, k1.Hash(), plain.Hash())
}

func TestTest(t *testing.T) {
	k := NewKey("STONE", "")
	assert.True(t, Test(k, NewStack(k, 5)))
	assert.False(t, Test(k, NewStack(NewKey("DIRT", ""), 5)))
	assert.False(t, Test(k, NewStack(k, 0)))
	assert.False(t, Test(k, Stack{}))

	tagged, err := KeyOf("STONE", map[string]any{"polished": true})
	require.NoError(t, err)
	assert.False(t, Test(k, NewStack(tagged, 1)))
	assert.True(t, Test(tagged, NewStack(tagged, 1)))
}

func TestSpec_RoundTrip(t *testing.T) {
	st, err := Spec{Item: "SLAB", Count: 2, Aux: map[string]any{"color": "red"}}.Stack()
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Count)
	assert.Equal(t, "SLAB#{\"color\":\"red\"}", st.Key.String())

	back, err := SpecOf(st).Stack()
	require.NoError(t, err)
	assert.Equal(t, st, back)

	one, err := Spec{Item: "SLAB"}.Stack()
	require.NoError(t, err)
	assert.Equal(t, int64(1), one.Count)

	_, err = Spec{}.Stack()
	assert.Error(t, err)
	_, err = Spec{Item: "SLAB#1"}.Stack()
	assert.Error(t, err)
}

func TestKeyString_DistinguishesTypeFromAux(t *testing.T) {
	a := NewKey("A{", `{"x":1}`)
	b := NewKey("A", `{{"x":1}`)
	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.String(), b.String())
	assert.Equal(t, "A", NewKey("A", "").String())
}
