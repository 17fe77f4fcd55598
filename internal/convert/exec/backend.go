package exec

import (
	"context"
	"fmt"
	"math"
	"strings"

	"itemconverter.ai/internal/convert/item"
)

// Policy decides where produced output goes.
type Policy int

const (
	ReplaceInPlace Policy = iota
	ToStorage
	Drop
)

func (p Policy) String() string {
	switch p {
	case ReplaceInPlace:
		return "REPLACE_IN_PLACE"
	case ToStorage:
		return "TO_STORAGE"
	case Drop:
		return "DROP"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts the wire names; empty means REPLACE_IN_PLACE.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "REPLACE_IN_PLACE":
		return ReplaceInPlace, nil
	case "TO_STORAGE":
		return ToStorage, nil
	case "DROP":
		return Drop, nil
	default:
		return 0, fmt.Errorf("%w: unknown policy %q", ErrInvalidRequest, s)
	}
}

// Slots is a slot-addressed container.
type Slots interface {
	Len() int
	Slot(i int) item.Stack
	SetSlot(i int, s item.Stack)
	Take(i int, n int64) item.Stack
}

// Inventory is the requester's personal storage.
type Inventory interface {
	Slots
	// Add stores as much of s as fits and returns the rest.
	Add(s item.Stack) item.Stack
}

// Dropper spills stacks into the world.
type Dropper interface {
	Drop(s item.Stack)
}

// Grid is networked shared storage. Every call is atomic on its own.
type Grid interface {
	SimulateExtract(ctx context.Context, k item.Key, n int64) (int64, error)
	Extract(ctx context.Context, k item.Key, n int64) (int64, error)
	// Insert stores up to n units and returns how many were accepted.
	Insert(ctx context.Context, k item.Key, n int64) (int64, error)
}

// StackSizer reports per-slot stack limits.
type StackSizer interface {
	MaxStackSize(k item.Key) int64
}

// Backend is one resource backend bound to a single source location.
type Backend interface {
	Name() string
	// Source reports the item at the source location and how many units can
	// be taken from it.
	Source(ctx context.Context) (item.Stack, error)
	// Extract removes exactly n units or nothing at all.
	Extract(ctx context.Context, n int64) error
	// Distribute places out according to p. Whatever no storage accepts is
	// dropped, so it never fails.
	Distribute(ctx context.Context, out item.Stack, p Policy)
}

// Unlimited is the availability a creative source reports.
const Unlimited = math.MaxInt64

// placement holds the requester-side destinations shared by every backend.
type placement struct {
	Container Slots
	Slot      int
	Inventory Inventory
	Drops     Dropper
	Sizer     StackSizer
}

func (p placement) maxStack(k item.Key) int64 {
	if p.Sizer == nil {
		return 64
	}
	if n := p.Sizer.MaxStackSize(k); n > 0 {
		return n
	}
	return 1
}

// inPlace merges into the source slot when it is empty or already holds the
// same item.
func (p placement) inPlace(out item.Stack) item.Stack {
	if p.Container == nil || out.IsEmpty() {
		return out
	}
	cur := p.Container.Slot(p.Slot)
	if !cur.IsEmpty() && cur.Key != out.Key {
		return out
	}
	max := p.maxStack(out.Key)
	have := int64(0)
	if !cur.IsEmpty() {
		have = cur.Count
	}
	n := min(max-have, out.Count)
	if n <= 0 {
		return out
	}
	p.Container.SetSlot(p.Slot, out.WithCount(have+n))
	return out.WithCount(out.Count - n)
}

// fillContainer spreads out over the container's other slots, merging first.
func (p placement) fillContainer(out item.Stack) item.Stack {
	if p.Container == nil || out.IsEmpty() {
		return out
	}
	max := p.maxStack(out.Key)
	left := out.Count
	for pass := 0; pass < 2 && left > 0; pass++ {
		for i := 0; i < p.Container.Len() && left > 0; i++ {
			if i == p.Slot {
				continue
			}
			cur := p.Container.Slot(i)
			var have int64
			switch {
			case pass == 0 && !cur.IsEmpty() && cur.Key == out.Key:
				have = cur.Count
			case pass == 1 && cur.IsEmpty():
			default:
				continue
			}
			n := min(max-have, left)
			if n <= 0 {
				continue
			}
			p.Container.SetSlot(i, out.WithCount(have+n))
			left -= n
		}
	}
	return out.WithCount(left)
}

func (p placement) toInventory(out item.Stack) item.Stack {
	if p.Inventory == nil || out.IsEmpty() {
		return out
	}
	return p.Inventory.Add(out)
}

// drop spills out in max-stack sized chunks.
func (p placement) drop(out item.Stack) {
	if out.IsEmpty() {
		return
	}
	if p.Drops == nil {
		return
	}
	max := p.maxStack(out.Key)
	for left := out.Count; left > 0; {
		n := min(max, left)
		p.Drops.Drop(out.WithCount(n))
		left -= n
	}
}

func (p placement) distribute(out item.Stack, policy Policy) {
	switch policy {
	case ReplaceInPlace:
		out = p.inPlace(out)
		out = p.fillContainer(out)
		out = p.toInventory(out)
	case ToStorage:
		out = p.toInventory(out)
	}
	p.drop(out)
}
