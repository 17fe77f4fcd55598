// Package inventory is a slot-based item container.
package inventory

import (
	"itemconverter.ai/internal/convert/item"
)

// MaxStackFunc reports the per-slot limit for an item.
type MaxStackFunc func(item.Key) int64

// Slots is a fixed-size list of item stacks. It is not safe for concurrent
// use; the owner serializes access.
type Slots struct {
	slots    []item.Stack
	maxStack MaxStackFunc
}

// New returns an empty container with size slots. maxStack may be nil, in
// which case every item stacks to 64.
func New(size int, maxStack MaxStackFunc) *Slots {
	if maxStack == nil {
		maxStack = func(item.Key) int64 { return 64 }
	}
	return &Slots{slots: make([]item.Stack, size), maxStack: maxStack}
}

func (s *Slots) Len() int { return len(s.slots) }

func (s *Slots) valid(i int) bool { return i >= 0 && i < len(s.slots) }

// Slot returns the stack in slot i; out-of-range slots read as empty.
func (s *Slots) Slot(i int) item.Stack {
	if !s.valid(i) {
		return item.Stack{}
	}
	return s.slots[i]
}

// SetSlot replaces slot i. Empty stacks clear the slot.
func (s *Slots) SetSlot(i int, st item.Stack) {
	if !s.valid(i) {
		return
	}
	if st.IsEmpty() {
		st = item.Stack{}
	}
	s.slots[i] = st
}

// Take removes up to n units from slot i and returns what was removed.
func (s *Slots) Take(i int, n int64) item.Stack {
	cur := s.Slot(i)
	if cur.IsEmpty() || n <= 0 {
		return item.Stack{}
	}
	if n > cur.Count {
		n = cur.Count
	}
	s.SetSlot(i, cur.WithCount(cur.Count-n))
	return cur.WithCount(n)
}

// Add merges st into matching slots, then fills empty slots, and returns
// whatever did not fit.
func (s *Slots) Add(st item.Stack) item.Stack {
	if st.IsEmpty() {
		return item.Stack{}
	}
	max := s.maxStack(st.Key)
	left := st.Count
	for i := range s.slots {
		if left == 0 {
			break
		}
		cur := s.slots[i]
		if cur.IsEmpty() || cur.Key != st.Key || cur.Count >= max {
			continue
		}
		n := min(max-cur.Count, left)
		s.slots[i].Count += n
		left -= n
	}
	for i := range s.slots {
		if left == 0 {
			break
		}
		if !s.slots[i].IsEmpty() {
			continue
		}
		n := min(max, left)
		s.slots[i] = st.WithCount(n)
		left -= n
	}
	return st.WithCount(left)
}

// Count totals the units of k across all slots.
func (s *Slots) Count(k item.Key) int64 {
	var n int64
	for _, st := range s.slots {
		if st.Key == k {
			n += st.Count
		}
	}
	return n
}

// Stacks returns a copy of every slot, including empty ones.
func (s *Slots) Stacks() []item.Stack {
	return append([]item.Stack(nil), s.slots...)
}
