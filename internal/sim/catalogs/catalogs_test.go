package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/rulegen"
	"itemconverter.ai/internal/convert/rules"
)

func TestLoad_Configs(t *testing.T) {
	c, err := Load("../../../configs")
	require.NoError(t, err)

	assert.NotEmpty(t, c.Items.Palette)
	assert.Len(t, c.Items.DefsDigest, 64)
	assert.Len(t, c.Digest(), 64)
	assert.Equal(t, []string{"currency", "ingot"}, c.Tags(item.NewKey("GOLD_INGOT", "")))
	assert.Equal(t, int64(16), c.MaxStackSize(item.NewKey("ENDER_PEARL", "")))
	assert.Equal(t, int64(64), c.MaxStackSize(item.NewKey("STONE", "")))
	assert.Equal(t, int64(64), c.MaxStackSize(item.NewKey("UNKNOWN", "")))

	c.DefaultMaxStack = 99
	assert.Equal(t, int64(99), c.MaxStackSize(item.NewKey("UNKNOWN", "")))
}

func TestRecipesOfKind_FeedsGenerator(t *testing.T) {
	c, err := Load("../../../configs")
	require.NoError(t, err)

	cut := c.RecipesOfKind("STONECUTTER")
	require.Len(t, cut, 3)
	assert.Equal(t, "stone_brick_stairs_from_bricks", cut[0].ID)

	gen := rulegen.Generator{Namespace: "stonecutter", Kind: "STONECUTTER", Cue: rules.Cue{Sound: "cut", Pitch: 1, Volume: 1}}
	out := gen.Generate(c)
	assert.Len(t, out, 2, "both STONE recipes share one (input, units) group")

	craft := c.RecipesOfKind("CRAFTING")
	require.Len(t, craft, 2)
	alts, ok := rulegen.Consumption(craft[0])
	require.True(t, ok)
	assert.Equal(t, item.NewStack(item.NewKey("GOLD_INGOT", ""), 9), alts[0])
	_, ok = rulegen.Consumption(craft[1])
	assert.False(t, ok, "sign mixes planks and sticks")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err, "items.json is required")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.json"), []byte(`[{"id":"A"}]`), 0o644))
	c, err := Load(dir)
	require.NoError(t, err, "recipes.json is optional")
	assert.Empty(t, c.RecipesOfKind("ANY"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.json"), []byte(`[{"id":""}]`), 0o644))
	_, err = Load(dir)
	assert.ErrorContains(t, err, "empty id")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.json"), []byte(`[{"id":"A","max_stack":-1}]`), 0o644))
	_, err = Load(dir)
	assert.ErrorContains(t, err, "negative max_stack")
}
