package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemconverter.ai/internal/convert/item"
)

func stoneRule(name string) Rule {
	return Rule{
		Name:    name,
		Input:   item.NewStack(item.NewKey("STONE", ""), 1),
		Outputs: []item.Stack{item.NewStack(item.NewKey("SLAB", ""), 2)},
		Cue:     Cue{Sound: "ui.stonecutter", Pitch: 1, Volume: 1},
	}
}

func TestStore_ReplacePublishesNewGeneration(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 0, s.Load().Len())

	old := s.Load()
	set, err := s.Replace([]Rule{stoneRule("a"), stoneRule("b")})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, uint64(1), set.Generation())
	assert.Same(t, set, s.Load())
	assert.Equal(t, 0, old.Len())

	got, ok := set.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.Name)
}

func TestStore_ReplaceRejectsBadNames(t *testing.T) {
	s := NewStore()
	_, err := s.Replace([]Rule{stoneRule("a")})
	require.NoError(t, err)

	_, err = s.Replace([]Rule{stoneRule("x"), stoneRule("x")})
	assert.Error(t, err)
	_, err = s.Replace([]Rule{stoneRule("")})
	assert.Error(t, err)

	_, ok := s.Load().Get("a")
	assert.True(t, ok, "failed reload must keep the current set")
}

func TestStore_RulesAreCopied(t *testing.T) {
	s := NewStore()
	r := stoneRule("a")
	set, err := s.Replace([]Rule{r})
	require.NoError(t, err)
	r.Outputs[0] = item.NewStack(item.NewKey("DIRT", ""), 9)
	got, _ := set.Get("a")
	assert.Equal(t, "SLAB", got.Outputs[0].Key.Type())
}

func TestMerge_AuthoredWins(t *testing.T) {
	authored := []Rule{stoneRule("gen/stone_0")}
	gen := map[string]Rule{
		"gen/stone_0": stoneRule("ignored"),
		"gen/dirt_0":  stoneRule("ignored"),
	}
	out := Merge(authored, gen)
	require.Len(t, out, 2)
	assert.Equal(t, "gen/stone_0", out[0].Name)
	assert.Equal(t, "gen/dirt_0", out[1].Name)
}

func TestDocuments_WriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	r := stoneRule("stonecutting/stone_0")
	r.Bidirectional = true
	n, err := WriteDir(dir, []Rule{r})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, bad, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Len(t, got, 1)
	assert.Equal(t, r, got[0])
}

func TestLoadDir_SkipsInvalidDocuments(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("ok.json", `{"input":{"item":"STONE"},"output":[{"item":"SLAB","count":2}],"sound":"s","pitch":1,"volume":1}`)
	write("bad/zero.json", `{"input":{"item":"STONE","count":0},"output":[{"item":"SLAB"}],"sound":"s","pitch":1,"volume":1}`)
	write("bad/extra.json", `{"input":{"item":"STONE"},"output":[],"sound":"s","pitch":1,"volume":1}`)
	write("bad/syntax.json", `{`)
	write("notes.txt", `ignored`)

	got, bad, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Name)
	assert.Equal(t, int64(1), got[0].Input.Count)
	assert.Len(t, bad, 3)
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	got, bad, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, bad)
}

func TestWriteDir_RejectsEscapingNames(t *testing.T) {
	_, err := WriteDir(t.TempDir(), []Rule{stoneRule("../evil")})
	assert.Error(t, err)
}

func TestWatch_ReloadsAfterChange(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, dir, 20*time.Millisecond, nil, func() { calls.Add(1) })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	_, err := WriteDir(dir, []Rule{stoneRule("a")})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
