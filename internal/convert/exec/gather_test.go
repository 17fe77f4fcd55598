package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itemconverter.ai/internal/convert/inventory"
)

func TestScanOrder(t *testing.T) {
	assert.Equal(t, []int{9, 10, 11, 0, 1, 2, 3, 4, 5, 6, 7, 8}, scanOrder(12))
	assert.Equal(t, []int{0, 1, 2}, scanOrder(3))
}

func TestGather_BulkFillsOneStackMainInventoryFirst(t *testing.T) {
	sz := sizes{}
	f := newFixture(t, sz, rule("stone-slab", st("STONE", 1), st("SLAB", 2)))
	inv := inventory.New(12, sz.MaxStackSize)
	inv.SetSlot(0, st("STONE", 40))
	inv.SetSlot(10, st("STONE", 20))
	inv.SetSlot(11, st("SLAB", 5))
	var d drops

	res, err := f.x.Gather(context.Background(), inv, &d, GatherRequest{Requester: "p1", Target: key("SLAB"), Bulk: true})
	require.NoError(t, err)
	assert.Equal(t, int64(32), res.Units)
	assert.Equal(t, st("SLAB", 64), res.Produced)
	require.Len(t, res.Routes, 2)

	assert.True(t, inv.Slot(10).IsEmpty())
	assert.Equal(t, st("STONE", 28), inv.Slot(0))
	assert.Equal(t, int64(69), inv.Count(key("SLAB")))
	assert.Empty(t, d)
	assert.Equal(t, []string{"p1"}, f.sounds.who)
	assert.Equal(t, "gather", (*f.audit)[0].Backend)
}

func TestGather_SingleUnit(t *testing.T) {
	sz := sizes{}
	f := newFixture(t, sz, rule("stone-slab", st("STONE", 1), st("SLAB", 2)))
	inv := inventory.New(10, sz.MaxStackSize)
	inv.SetSlot(0, st("STONE", 3))
	inv.SetSlot(9, st("DIRT", 64))
	var d drops

	res, err := f.x.Gather(context.Background(), inv, &d, GatherRequest{Target: key("SLAB")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Units)
	assert.Equal(t, st("STONE", 2), inv.Slot(0))
	assert.Equal(t, st("DIRT", 64), inv.Slot(9))
	assert.Equal(t, int64(2), inv.Count(key("SLAB")))
}

func TestGather_NothingConverts(t *testing.T) {
	sz := sizes{}
	f := newFixture(t, sz, rule("stone-slab", st("STONE", 3), st("SLAB", 2)))
	inv := inventory.New(4, sz.MaxStackSize)
	inv.SetSlot(0, st("STONE", 2))
	inv.SetSlot(1, st("SLAB", 2))
	var d drops

	_, err := f.x.Gather(context.Background(), inv, &d, GatherRequest{Target: key("SLAB"), Bulk: true})
	require.ErrorIs(t, err, ErrPathNotFound)
	assert.Equal(t, st("STONE", 2), inv.Slot(0))
	assert.Empty(t, f.sounds.cues)
}

func TestGather_UnknownTargetIsInvalid(t *testing.T) {
	sz := sizes{}
	f := newFixture(t, sz, rule("stone-slab", st("STONE", 1), st("SLAB", 2)))
	inv := inventory.New(4, sz.MaxStackSize)
	inv.SetSlot(0, st("STONE", 8))
	var d drops

	_, err := f.x.Gather(context.Background(), inv, &d, GatherRequest{ID: "g1", Target: key("DIAMOND"), Bulk: true})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, st("STONE", 8), inv.Slot(0))
	assert.Contains(t, f.logs.String(), "WARN dropped request g1")
	assert.Equal(t, "invalid", (*f.audit)[0].Outcome)
}

func TestGather_SkipsRoutesPastTheOutputBound(t *testing.T) {
	sz := sizes{}
	f := newFixture(t, sz,
		rule("ingot-nugget", st("INGOT", 1), st("NUGGET", 1<<40)),
		rule("dust-nugget", st("DUST", 1), st("NUGGET", 1)),
	)
	inv := inventory.New(12, sz.MaxStackSize)
	inv.SetSlot(9, st("INGOT", 1))
	inv.SetSlot(0, st("DUST", 4))
	var d drops

	res, err := f.x.Gather(context.Background(), inv, &d, GatherRequest{Target: key("NUGGET")})
	require.NoError(t, err)
	assert.Equal(t, st("NUGGET", 1), res.Produced)
	assert.Equal(t, st("INGOT", 1), inv.Slot(9))
	assert.Equal(t, st("DUST", 3), inv.Slot(0))
}
