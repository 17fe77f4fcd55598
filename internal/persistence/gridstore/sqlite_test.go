package gridstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemconverter.ai/internal/convert/item"
)

func open(t *testing.T, capacity int64) *Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "grid.sqlite"), capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNetwork_InsertExtract(t *testing.T) {
	ctx := context.Background()
	s := open(t, 0)
	n := s.Network("base")
	stone := item.NewKey("STONE", "")
	tagged := item.NewKey("STONE", `{"color":"red"}`)

	got, err := n.Insert(ctx, stone, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
	_, err = n.Insert(ctx, tagged, 3)
	require.NoError(t, err)

	sim, err := n.SimulateExtract(ctx, stone, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sim)

	got, err = n.Extract(ctx, stone, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	got, err = n.Extract(ctx, stone, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)

	sim, err = n.SimulateExtract(ctx, stone, 1)
	require.NoError(t, err)
	assert.Zero(t, sim)

	contents, err := s.Contents(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, []item.Stack{item.NewStack(tagged, 3)}, contents)
}

func TestNetwork_CapacityAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := open(t, 20)
	a, b := s.Network("a"), s.Network("b")
	slab := item.NewKey("SLAB", "")

	got, err := a.Insert(ctx, slab, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got)
	got, err = a.Insert(ctx, item.NewKey("DIRT", ""), 15)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)
	got, err = a.Insert(ctx, slab, 1)
	require.NoError(t, err)
	assert.Zero(t, got)

	require.NoError(t, s.SetCapacity(ctx, "b", 0))
	got, err = b.Insert(ctx, slab, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got)

	sim, err := b.SimulateExtract(ctx, item.NewKey("DIRT", ""), 1)
	require.NoError(t, err)
	assert.Zero(t, sim)

	assert.Error(t, s.SetCapacity(ctx, "b", -1))
}

func TestStore_MetaAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "grid.sqlite")
	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(ctx, "catalog_digest", "abc"))
	_, err = s.Network("n").Insert(ctx, item.NewKey("STONE", ""), 7)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, 0)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Meta(ctx, "catalog_digest")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
	v, err = s.Meta(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	sim, err := s.Network("n").SimulateExtract(ctx, item.NewKey("STONE", ""), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sim)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("", 0)
	assert.Error(t, err)
}
