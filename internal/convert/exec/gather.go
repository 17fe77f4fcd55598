package exec

import (
	"context"
	"fmt"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/paths"
)

// hotbarSize is the number of leading slots scanned last.
const hotbarSize = 9

// GatherRequest asks for target to be made from whatever the inventory holds.
type GatherRequest struct {
	ID        string
	Requester string
	Target    item.Key
	// Bulk fills up to one target stack; otherwise a single trade unit is made.
	Bulk bool
}

// GatherResult lists the routes used, in the order they were applied.
type GatherResult struct {
	Routes   []paths.Route
	Units    int64
	Produced item.Stack
}

type candidate struct {
	slot  int
	stack item.Stack
	route paths.Route
}

// scanOrder lists slot indices main inventory first, hotbar last.
func scanOrder(n int) []int {
	order := make([]int, 0, n)
	for i := hotbarSize; i < n; i++ {
		order = append(order, i)
	}
	for i := 0; i < min(hotbarSize, n); i++ {
		order = append(order, i)
	}
	return order
}

// Gather converts inventory stacks toward req.Target. Output goes to the
// inventory and spills into drops.
func (x *Executor) Gather(ctx context.Context, inv Inventory, drops Dropper, req GatherRequest) (res GatherResult, err error) {
	rec := Record{
		RequestID: req.ID,
		Requester: req.Requester,
		Backend:   "gather",
		To:        req.Target.String(),
		Policy:    ToStorage.String(),
	}
	defer func() {
		x.finish(rec, Result{Units: res.Units, Produced: res.Produced}, err)
	}()
	if req.Target.IsZero() || inv == nil {
		return GatherResult{}, fmt.Errorf("%w: missing target", ErrInvalidRequest)
	}

	g := x.Resolver.Snapshot()
	if !g.Has(req.Target) {
		return GatherResult{}, fmt.Errorf("%w: target %s not in graph", ErrInvalidRequest, req.Target)
	}
	var cands []candidate
	for _, i := range scanOrder(inv.Len()) {
		st := inv.Slot(i)
		if st.IsEmpty() || st.Key == req.Target {
			continue
		}
		route, ok := x.Resolver.Path(g, st.Key, req.Target)
		if !ok || !route.Feasible(st.Count) {
			continue
		}
		cands = append(cands, candidate{slot: i, stack: st, route: route})
	}
	if len(cands) == 0 {
		return GatherResult{}, fmt.Errorf("%w: nothing converts to %s", ErrPathNotFound, req.Target)
	}

	want := x.maxStack(req.Target)
	limit := x.outputLimit(req.Target)
	var produced int64
	var used []candidate
	for _, c := range cands {
		r := c.route.Ratio
		times := c.stack.Count / r.Den
		if !req.Bulk {
			times = 1
		} else {
			times = min(times, (want-produced)/r.Num)
		}
		if times <= 0 {
			continue
		}
		units := times * r.Den
		if _, ok := r.ProduceWithin(units, limit-produced); !ok {
			continue
		}
		got := inv.Take(c.slot, units)
		if got.Count != units {
			for _, u := range append(used, c) {
				inv.SetSlot(u.slot, u.stack)
			}
			return GatherResult{}, fmt.Errorf("%w: took %d of %d from slot %d", ErrPartialExtraction, got.Count, units, c.slot)
		}
		produced += r.Produce(units)
		res.Units += units
		used = append(used, c)
		if !req.Bulk || produced >= want {
			break
		}
	}
	if len(used) == 0 {
		return GatherResult{}, fmt.Errorf("%w: %s stack is already full", ErrInsufficientQuantity, req.Target)
	}

	res.Produced = item.NewStack(req.Target, produced)
	placement{Inventory: inv, Drops: drops, Sizer: x.Sizer}.distribute(res.Produced, ToStorage)
	for _, c := range used {
		res.Routes = append(res.Routes, c.route)
	}
	last := used[len(used)-1].route
	rec.From = last.From.String()
	rec.Ratio = last.Ratio.String()
	rec.Hops = last.Hops()
	if x.Sounds != nil {
		x.Sounds.Play(req.Requester, last.Cue())
	}
	return res, nil
}
