package rulegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/rules"
)

type fakeSource map[string][]Recipe

func (f fakeSource) RecipesOfKind(kind string) []Recipe { return f[kind] }

func st(typ string, n int64) item.Stack { return item.NewStack(item.NewKey(typ, ""), n) }

func slot(alts ...item.Stack) Ingredient { return Ingredient{Alternatives: alts} }

func TestConsumption(t *testing.T) {
	// Two identical slots, each needing 2 planks or 2 logs.
	r := Recipe{
		ID:          "r1",
		Ingredients: []Ingredient{slot(st("PLANK", 2), st("LOG", 2)), slot(st("PLANK", 2), st("LOG", 2))},
		Outputs:     []item.Stack{st("STICK", 4)},
	}
	alts, ok := Consumption(r)
	require.True(t, ok)
	assert.Equal(t, []item.Stack{st("PLANK", 4), st("LOG", 4)}, alts)

	mixed := Recipe{ID: "r2", Ingredients: []Ingredient{slot(st("PLANK", 1)), slot(st("IRON", 1))}}
	_, ok = Consumption(mixed)
	assert.False(t, ok)

	_, ok = Consumption(Recipe{ID: "empty"})
	assert.False(t, ok)
}

func TestGenerate_GroupsAndNamesDeterministically(t *testing.T) {
	src := fakeSource{"STONECUTTER": {
		{ID: "a", Ingredients: []Ingredient{slot(st("STONE", 1))}, Outputs: []item.Stack{st("SLAB", 2)}},
		{ID: "b", Ingredients: []Ingredient{slot(st("STONE", 1))}, Outputs: []item.Stack{st("STAIRS", 1)}},
		{ID: "c", Ingredients: []Ingredient{slot(st("STONE", 1)), slot(st("STONE", 1))}, Outputs: []item.Stack{st("WALL", 1)}},
		{ID: "d", Ingredients: []Ingredient{slot(st("STONE", 1)), slot(st("DIRT", 1))}, Outputs: []item.Stack{st("MUD", 1)}},
		{ID: "e", Ingredients: []Ingredient{slot(st("GRANITE", 1), st("DIORITE", 1))}, Outputs: []item.Stack{st("GRAVEL", 1)}},
	}}
	g := Generator{Namespace: "stonecutting", Kind: "STONECUTTER", Cue: rules.Cue{Sound: "cut", Pitch: 1, Volume: 1}}

	out := g.Generate(src)
	require.Len(t, out, 4)

	one := out["stonecutting/stone_0"]
	assert.Equal(t, st("STONE", 1), one.Input)
	assert.Equal(t, []item.Stack{st("SLAB", 2), st("STAIRS", 1)}, one.Outputs)
	assert.Equal(t, "cut", one.Cue.Sound)

	two := out["stonecutting/stone_1"]
	assert.Equal(t, st("STONE", 2), two.Input)
	assert.Equal(t, []item.Stack{st("WALL", 1)}, two.Outputs)

	assert.Contains(t, out, "stonecutting/granite_0")
	assert.Contains(t, out, "stonecutting/diorite_0")

	again := g.Generate(src)
	assert.Equal(t, out, again)
}

func TestGenerate_OtherKindsIgnored(t *testing.T) {
	src := fakeSource{"FURNACE": {{ID: "x", Ingredients: []Ingredient{slot(st("ORE", 1))}, Outputs: []item.Stack{st("INGOT", 1)}}}}
	out := Generator{Namespace: "n", Kind: "STONECUTTER"}.Generate(src)
	assert.Empty(t, out)
}
