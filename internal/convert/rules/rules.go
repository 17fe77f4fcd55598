// Package rules holds conversion rules and the versioned store they are
// published through.
package rules

import (
	"fmt"
	"sort"
	"sync/atomic"

	"itemconverter.ai/internal/convert/item"
)

// Cue is the sound played when a conversion through a rule completes.
type Cue struct {
	Sound  string  `json:"sound"`
	Pitch  float32 `json:"pitch"`
	Volume float32 `json:"volume"`
}

// Rule converts Input.Count units of Input.Key into every entry of Outputs.
type Rule struct {
	Name          string
	Input         item.Stack
	Outputs       []item.Stack
	Cue           Cue
	Bidirectional bool
}

func (r Rule) clone() Rule {
	out := r
	out.Outputs = append([]item.Stack(nil), r.Outputs...)
	return out
}

// Set is an immutable, ordered collection of rules published by a Store.
type Set struct {
	generation uint64
	rules      []Rule
	byName     map[string]int
}

func (s *Set) Generation() uint64 { return s.generation }
func (s *Set) Len() int           { return len(s.rules) }

// Rules returns the rules in store order. The slice must not be modified.
func (s *Set) Rules() []Rule { return s.rules }

func (s *Set) Get(name string) (Rule, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Rule{}, false
	}
	return s.rules[i], true
}

// Store publishes rule sets. A reload replaces the whole set; readers holding
// an older *Set keep a consistent view.
type Store struct {
	cur atomic.Pointer[Set]
	gen atomic.Uint64
}

func NewStore() *Store {
	s := &Store{}
	s.cur.Store(&Set{byName: map[string]int{}})
	return s
}

// Load returns the current rule set.
func (s *Store) Load() *Set { return s.cur.Load() }

// Replace publishes rs as the new rule set. Rule names must be non-empty and
// unique; on error the current set is kept.
func (s *Store) Replace(rs []Rule) (*Set, error) {
	set := &Set{
		rules:  make([]Rule, 0, len(rs)),
		byName: make(map[string]int, len(rs)),
	}
	for _, r := range rs {
		if r.Name == "" {
			return nil, fmt.Errorf("rule with input %s has no name", r.Input)
		}
		if _, dup := set.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		set.byName[r.Name] = len(set.rules)
		set.rules = append(set.rules, r.clone())
	}
	set.generation = s.gen.Add(1)
	s.cur.Store(set)
	return set, nil
}

// Merge appends generated rules, in name order, to the authored ones. An
// authored rule wins over a generated rule with the same name.
func Merge(authored []Rule, generated map[string]Rule) []Rule {
	out := make([]Rule, 0, len(authored)+len(generated))
	seen := make(map[string]struct{}, len(authored))
	for _, r := range authored {
		seen[r.Name] = struct{}{}
		out = append(out, r)
	}
	names := make([]string, 0, len(generated))
	for name := range generated {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		r := generated[name]
		r.Name = name
		out = append(out, r)
	}
	return out
}
