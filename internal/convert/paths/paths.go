// Package paths resolves conversion routes on a graph snapshot.
package paths

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"itemconverter.ai/internal/convert/graph"
	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/ratio"
	"itemconverter.ai/internal/convert/rules"
)

// Tagger reports the declared tags of an item.
type Tagger interface {
	Tags(k item.Key) []string
}

// Target is one direct conversion out of a source vertex.
type Target struct {
	Edge graph.Edge
	// Special is set when the target carries one of the configured special tags.
	Special bool
}

// Route is a path through the graph with its composed ratio.
type Route struct {
	From  item.Key
	To    item.Key
	Edges []graph.Edge
	Ratio ratio.Ratio
	// Overflow is set when the composed ratio does not fit in an int64. Such
	// a route is never feasible.
	Overflow bool
}

func newRoute(edges []graph.Edge) Route {
	rs := make([]ratio.Ratio, len(edges))
	for i, e := range edges {
		rs[i] = e.Ratio
	}
	rt := Route{
		From:  edges[0].From,
		To:    edges[len(edges)-1].To,
		Edges: edges,
	}
	c, err := ratio.Compose(rs...)
	if err != nil {
		rt.Overflow = true
		return rt
	}
	rt.Ratio = c
	return rt
}

func (r Route) Hops() int { return len(r.Edges) }

// Feasible reports whether available source units cover one whole trade unit.
func (r Route) Feasible(available int64) bool {
	return len(r.Edges) > 0 && !r.Overflow && r.Ratio.Den <= available
}

// Cue is the sound of the last edge on the route.
func (r Route) Cue() rules.Cue {
	if len(r.Edges) == 0 {
		return rules.Cue{}
	}
	return r.Edges[len(r.Edges)-1].Cue
}

func (r Route) String() string {
	parts := make([]string, 0, len(r.Edges)+1)
	parts = append(parts, r.From.String())
	for _, e := range r.Edges {
		parts = append(parts, fmt.Sprintf("-[%s]-> %s", e.Ratio, e.To))
	}
	if r.Overflow {
		return strings.Join(parts, " ") + " = overflow"
	}
	return strings.Join(parts, " ") + " = " + r.Ratio.String()
}

// Resolver answers direct and shortest-path queries. Direct results are cached
// per source vertex for the newest graph generation seen.
type Resolver struct {
	graphs  *graph.Holder
	tagger  Tagger
	special map[string]struct{}

	mu     sync.Mutex
	gen    uint64
	cache  map[item.Key][]Target
	flight singleflight.Group
}

// New returns a resolver over the graphs published by h. tagger may be nil.
func New(h *graph.Holder, tagger Tagger, specialTags []string) *Resolver {
	sp := make(map[string]struct{}, len(specialTags))
	for _, t := range specialTags {
		sp[t] = struct{}{}
	}
	return &Resolver{
		graphs:  h,
		tagger:  tagger,
		special: sp,
		cache:   map[item.Key][]Target{},
	}
}

// Snapshot returns the graph queries should run against.
func (r *Resolver) Snapshot() *graph.Graph { return r.graphs.Load() }

type orderKey struct {
	special bool
	tags    string
	rev     string
}

func reverse(s string) string {
	rs := []rune(s)
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	return string(rs)
}

func (r *Resolver) orderOf(k item.Key) orderKey {
	var tags []string
	if r.tagger != nil {
		tags = append(tags, r.tagger.Tags(k)...)
	}
	sort.Strings(tags)
	special := false
	for _, t := range tags {
		if _, ok := r.special[t]; ok {
			special = true
			break
		}
	}
	return orderKey{special: special, tags: strings.Join(tags, ","), rev: reverse(k.String())}
}

func (a orderKey) less(b orderKey) bool {
	if a.special != b.special {
		return a.special
	}
	if a.tags != b.tags {
		return a.tags < b.tags
	}
	return a.rev < b.rev
}

func (r *Resolver) sortTargets(edges []graph.Edge) []Target {
	keys := make([]orderKey, len(edges))
	out := make([]Target, len(edges))
	for i, e := range edges {
		keys[i] = r.orderOf(e.To)
		out[i] = Target{Edge: e, Special: keys[i].special}
	}
	idx := make([]int, len(edges))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]].less(keys[idx[b]]) })
	sorted := make([]Target, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}

// Direct returns the one-hop targets of from in display order. The returned
// slice is shared and must not be modified.
func (r *Resolver) Direct(g *graph.Graph, from item.Key) []Target {
	gen := g.Generation()

	r.mu.Lock()
	if gen > r.gen {
		r.gen = gen
		r.cache = map[item.Key][]Target{}
	}
	cacheable := gen == r.gen
	if cacheable {
		if ts, ok := r.cache[from]; ok {
			r.mu.Unlock()
			directLookups.WithLabelValues("hit").Inc()
			return ts
		}
	}
	r.mu.Unlock()

	if !cacheable {
		directLookups.WithLabelValues("stale").Inc()
		return r.sortTargets(g.Out(from))
	}
	directLookups.WithLabelValues("miss").Inc()

	v, _, _ := r.flight.Do(fmt.Sprintf("%d/%q/%q", gen, from.Type(), from.Aux()), func() (any, error) {
		ts := r.sortTargets(g.Out(from))
		r.mu.Lock()
		if r.gen == gen {
			r.cache[from] = ts
		}
		r.mu.Unlock()
		return ts, nil
	})
	return v.([]Target)
}

// Path returns the shortest route by hop count from -> to. Among equally short
// routes the one whose hops come first in display order wins.
func (r *Resolver) Path(g *graph.Graph, from, to item.Key) (Route, bool) {
	if from == to || !g.Has(from) || !g.Has(to) {
		pathQueries.WithLabelValues("none").Inc()
		return Route{}, false
	}
	parents := r.search(g, from, to)
	edges := trace(parents, from, to)
	if edges == nil {
		pathQueries.WithLabelValues("none").Inc()
		return Route{}, false
	}
	pathQueries.WithLabelValues("found").Inc()
	return newRoute(edges), true
}

// PathsFrom returns the shortest route from from to every reachable vertex.
func (r *Resolver) PathsFrom(g *graph.Graph, from item.Key) map[item.Key]Route {
	out := map[item.Key]Route{}
	if !g.Has(from) {
		return out
	}
	parents := r.search(g, from, item.Key{})
	for v := range parents {
		if v == from {
			continue
		}
		if edges := trace(parents, from, v); edges != nil {
			out[v] = newRoute(edges)
		}
	}
	return out
}

// search is a breadth-first search visiting neighbours in display order, so
// the first parent recorded for a vertex gives the deterministic tie break.
// It stops early once stop is reached, unless stop is the zero key.
func (r *Resolver) search(g *graph.Graph, from, stop item.Key) map[item.Key]graph.Edge {
	parents := map[item.Key]graph.Edge{from: {}}
	queue := []item.Key{from}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, t := range r.Direct(g, v) {
			next := t.Edge.To
			if _, seen := parents[next]; seen {
				continue
			}
			parents[next] = t.Edge
			if !stop.IsZero() && next == stop {
				return parents
			}
			queue = append(queue, next)
		}
	}
	return parents
}

func trace(parents map[item.Key]graph.Edge, from, to item.Key) []graph.Edge {
	if _, ok := parents[to]; !ok {
		return nil
	}
	var rev []graph.Edge
	for v := to; v != from; {
		e := parents[v]
		rev = append(rev, e)
		v = e.From
	}
	edges := make([]graph.Edge, len(rev))
	for i := range rev {
		edges[i] = rev[len(rev)-1-i]
	}
	return edges
}
