package exec

import (
	"context"
	"fmt"

	"itemconverter.ai/internal/convert/item"
)

// InventoryBackend converts a stack sitting in a slot of a bounded container,
// usually the requester's own inventory.
type InventoryBackend struct {
	Container Slots
	Slot      int
	Inventory Inventory
	Drops     Dropper
	Sizer     StackSizer
}

func (b *InventoryBackend) Name() string { return "inventory" }

func (b *InventoryBackend) place() placement {
	return placement{Container: b.Container, Slot: b.Slot, Inventory: b.Inventory, Drops: b.Drops, Sizer: b.Sizer}
}

func (b *InventoryBackend) Source(context.Context) (item.Stack, error) {
	if b.Container == nil || b.Slot < 0 || b.Slot >= b.Container.Len() {
		return item.Stack{}, fmt.Errorf("%w: slot %d out of range", ErrInvalidRequest, b.Slot)
	}
	return b.Container.Slot(b.Slot), nil
}

func (b *InventoryBackend) Extract(_ context.Context, n int64) error {
	cur := b.Container.Slot(b.Slot)
	got := b.Container.Take(b.Slot, n)
	if got.Count == n {
		return nil
	}
	if !got.IsEmpty() {
		b.Container.SetSlot(b.Slot, cur)
	}
	return fmt.Errorf("%w: took %d of %d from slot %d", ErrPartialExtraction, got.Count, n, b.Slot)
}

func (b *InventoryBackend) Distribute(_ context.Context, out item.Stack, p Policy) {
	b.place().distribute(out, p)
}

// CreativeBackend grants output without consuming anything. Key is the item
// the requester pointed at.
type CreativeBackend struct {
	Key       item.Key
	Inventory Inventory
	Drops     Dropper
	Sizer     StackSizer
	// Preview, when set, receives the produced stack for REPLACE_IN_PLACE so the
	// caller can refresh whatever displayed the source.
	Preview func(item.Stack)
}

func (b *CreativeBackend) Name() string { return "creative" }

func (b *CreativeBackend) Source(context.Context) (item.Stack, error) {
	if b.Key.IsZero() {
		return item.Stack{}, fmt.Errorf("%w: no source item", ErrInvalidRequest)
	}
	return item.NewStack(b.Key, Unlimited), nil
}

func (b *CreativeBackend) Extract(context.Context, int64) error { return nil }

func (b *CreativeBackend) Distribute(_ context.Context, out item.Stack, p Policy) {
	if p == ReplaceInPlace && b.Preview != nil {
		b.Preview(out)
	}
	place := placement{Inventory: b.Inventory, Drops: b.Drops, Sizer: b.Sizer}
	if p == ReplaceInPlace {
		p = ToStorage
	}
	place.distribute(out, p)
}

// GridBackend converts units held in shared storage. Output goes back into the
// grid first; the overflow lands in the requester's inventory, then the world.
type GridBackend struct {
	Grid      Grid
	Key       item.Key
	Inventory Inventory
	Drops     Dropper
	Sizer     StackSizer
	// OnError is told about storage failures that were absorbed by a fallback.
	OnError func(error)
}

func (b *GridBackend) Name() string { return "grid" }

func (b *GridBackend) Source(ctx context.Context) (item.Stack, error) {
	if b.Key.IsZero() {
		return item.Stack{}, fmt.Errorf("%w: no source item", ErrInvalidRequest)
	}
	n, err := b.Grid.SimulateExtract(ctx, b.Key, Unlimited)
	if err != nil {
		return item.Stack{}, fmt.Errorf("simulate extract %s: %w", b.Key, err)
	}
	return item.NewStack(b.Key, n), nil
}

// Extract simulates first, then commits. A short commit is put back before
// reporting ErrPartialExtraction.
func (b *GridBackend) Extract(ctx context.Context, n int64) error {
	sim, err := b.Grid.SimulateExtract(ctx, b.Key, n)
	if err != nil {
		return fmt.Errorf("simulate extract %s: %w", b.Key, err)
	}
	if sim < n {
		return fmt.Errorf("%w: grid offers %d of %d %s", ErrPartialExtraction, sim, n, b.Key)
	}
	got, err := b.Grid.Extract(ctx, b.Key, n)
	if err == nil && got == n {
		return nil
	}
	if got > 0 {
		b.restore(ctx, item.NewStack(b.Key, got))
	}
	if err != nil {
		return fmt.Errorf("%w: extract %s: %v", ErrPartialExtraction, b.Key, err)
	}
	return fmt.Errorf("%w: grid gave %d of %d %s", ErrPartialExtraction, got, n, b.Key)
}

func (b *GridBackend) restore(ctx context.Context, s item.Stack) {
	back, err := b.Grid.Insert(ctx, s.Key, s.Count)
	if err != nil {
		b.report(fmt.Errorf("rollback insert %s: %w", s, err))
		back = 0
	}
	if back < s.Count {
		b.place().distribute(s.WithCount(s.Count-back), ToStorage)
	}
}

func (b *GridBackend) place() placement {
	return placement{Inventory: b.Inventory, Drops: b.Drops, Sizer: b.Sizer}
}

func (b *GridBackend) report(err error) {
	if b.OnError != nil {
		b.OnError(err)
	}
}

func (b *GridBackend) Distribute(ctx context.Context, out item.Stack, p Policy) {
	if p == ReplaceInPlace && !out.IsEmpty() {
		n, err := b.Grid.Insert(ctx, out.Key, out.Count)
		if err != nil {
			b.report(fmt.Errorf("insert %s: %w", out, err))
			n = 0
		}
		out = out.WithCount(out.Count - n)
		p = ToStorage
	}
	b.place().distribute(out, p)
}
