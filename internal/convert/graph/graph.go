// Package graph builds the directed conversion graph from a rule set.
//
// A Graph is immutable once built. Reloads build a new Graph and publish it
// through a Holder, so readers always see one complete snapshot.
package graph

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/ratio"
	"itemconverter.ai/internal/convert/rules"
)

// Edge is a directed conversion between two vertices.
type Edge struct {
	From  item.Key
	To    item.Key
	Ratio ratio.Ratio
	Cue   rules.Cue
	// Rule is the name of the rule the edge came from.
	Rule string
	// Inverse marks the reciprocal edge of a bidirectional rule.
	Inverse bool
}

// Graph is a snapshot of the conversion graph. Vertices are item keys; every
// vertex represents a quantity of one.
type Graph struct {
	generation uint64
	rules      uint64

	vertices []item.Key
	index    map[item.Key]int
	out      [][]Edge
	pairs    map[[2]int]struct{}
	edges    int
}

func newGraph() *Graph {
	return &Graph{
		index: map[item.Key]int{},
		pairs: map[[2]int]struct{}{},
	}
}

// Empty returns a graph with no vertices.
func Empty() *Graph { return newGraph() }

func (g *Graph) Generation() uint64 { return g.generation }

// RulesGeneration is the generation of the rule set the graph was built from.
func (g *Graph) RulesGeneration() uint64 { return g.rules }

func (g *Graph) VertexCount() int { return len(g.vertices) }
func (g *Graph) EdgeCount() int   { return g.edges }

// Vertices returns the vertices in insertion order. The slice must not be modified.
func (g *Graph) Vertices() []item.Key { return g.vertices }

func (g *Graph) Has(k item.Key) bool {
	_, ok := g.index[k]
	return ok
}

// Out returns the outgoing edges of k in insertion order. The slice must not be modified.
func (g *Graph) Out(k item.Key) []Edge {
	i, ok := g.index[k]
	if !ok {
		return nil
	}
	return g.out[i]
}

// Edge returns the edge from -> to, if any.
func (g *Graph) Edge(from, to item.Key) (Edge, bool) {
	for _, e := range g.Out(from) {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

func (g *Graph) addVertex(k item.Key) int {
	if i, ok := g.index[k]; ok {
		return i
	}
	i := len(g.vertices)
	g.vertices = append(g.vertices, k)
	g.out = append(g.out, nil)
	g.index[k] = i
	return i
}

func (g *Graph) hasPair(from, to item.Key) bool {
	fi, ok := g.index[from]
	if !ok {
		return false
	}
	ti, ok := g.index[to]
	if !ok {
		return false
	}
	_, dup := g.pairs[[2]int{fi, ti}]
	return dup
}

func (g *Graph) addEdge(e Edge) {
	fi := g.addVertex(e.From)
	ti := g.addVertex(e.To)
	g.pairs[[2]int{fi, ti}] = struct{}{}
	g.out[fi] = append(g.out[fi], e)
	g.edges++
}

// DuplicatePolicy selects how a second edge between the same vertex pair is handled.
type DuplicatePolicy int

const (
	// SkipDuplicates keeps the first edge and drops the later one.
	SkipDuplicates DuplicatePolicy = iota
	// RejectDuplicates drops every edge of the rule that produced the duplicate.
	RejectDuplicates
)

func (p DuplicatePolicy) String() string {
	switch p {
	case RejectDuplicates:
		return "reject"
	default:
		return "skip"
	}
}

// ParseDuplicatePolicy accepts "skip" (or "") and "reject".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "skip":
		return SkipDuplicates, nil
	case "reject":
		return RejectDuplicates, nil
	default:
		return 0, fmt.Errorf("unknown duplicate edge policy %q", s)
	}
}

// Options configure a build.
type Options struct {
	// Bidirectional adds the inverse edge for every rule, not only for rules
	// marked bidirectional.
	Bidirectional bool
	Duplicates    DuplicatePolicy
	Logger        *log.Logger
}

// RuleBuildError describes a rule, or one edge of it, that was left out of the graph.
type RuleBuildError struct {
	Rule   string
	Input  item.Stack
	Output item.Stack
	Err    error
}

func (e *RuleBuildError) Error() string {
	if e.Output.Key.IsZero() {
		return fmt.Sprintf("rule %s (input %s): %v", e.Rule, e.Input, e.Err)
	}
	return fmt.Sprintf("rule %s (input %s, output %s): %v", e.Rule, e.Input, e.Output, e.Err)
}

func (e *RuleBuildError) Unwrap() error { return e.Err }

var (
	ErrMalformedInput  = errors.New("malformed input")
	ErrMalformedOutput = errors.New("malformed output")
	ErrDuplicateEdge   = errors.New("duplicate edge")
)

var buildGeneration atomic.Uint64

// Build creates a graph from set. Problems with individual rules are logged,
// returned, and never stop the build.
func Build(set *rules.Set, opts Options) (*Graph, []error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	g := newGraph()
	g.rules = set.Generation()

	var errs []error
	report := func(err *RuleBuildError) {
		logger.Printf("graph: %v", err)
		errs = append(errs, err)
	}

	for _, r := range set.Rules() {
		if r.Input.IsEmpty() {
			report(&RuleBuildError{Rule: r.Name, Input: r.Input, Err: ErrMalformedInput})
			continue
		}
		staged, bad := stageRule(g, r, opts.Bidirectional || r.Bidirectional)
		for _, e := range bad {
			if opts.Duplicates == RejectDuplicates && e.Err == ErrDuplicateEdge {
				continue
			}
			report(e)
		}
		if opts.Duplicates == RejectDuplicates && hasDuplicate(bad) {
			g.addVertex(r.Input.Key)
			report(&RuleBuildError{Rule: r.Name, Input: r.Input, Err: fmt.Errorf("%w: rule rejected", ErrDuplicateEdge)})
			continue
		}
		g.addVertex(r.Input.Key)
		for _, e := range staged {
			g.addEdge(e)
		}
	}

	g.generation = buildGeneration.Add(1)
	observeBuild(g, len(errs))
	return g, errs
}

func hasDuplicate(errs []*RuleBuildError) bool {
	for _, e := range errs {
		if e.Err == ErrDuplicateEdge {
			return true
		}
	}
	return false
}

// stageRule computes the edges a rule contributes without touching g, checking
// duplicates against g and against the rule's own earlier edges.
func stageRule(g *Graph, r rules.Rule, bidirectional bool) (staged []Edge, bad []*RuleBuildError) {
	in := r.Input.Key
	local := map[[2]item.Key]struct{}{}
	add := func(e Edge, out item.Stack) {
		pair := [2]item.Key{e.From, e.To}
		if _, dup := local[pair]; dup || g.hasPair(e.From, e.To) {
			bad = append(bad, &RuleBuildError{Rule: r.Name, Input: r.Input, Output: out, Err: ErrDuplicateEdge})
			return
		}
		local[pair] = struct{}{}
		staged = append(staged, e)
	}

	for _, out := range r.Outputs {
		if out.IsEmpty() {
			bad = append(bad, &RuleBuildError{Rule: r.Name, Input: r.Input, Output: out, Err: ErrMalformedOutput})
			continue
		}
		if out.Key == in {
			continue
		}
		rt, err := ratio.New(out.Count, r.Input.Count)
		if err != nil {
			bad = append(bad, &RuleBuildError{Rule: r.Name, Input: r.Input, Output: out, Err: err})
			continue
		}
		add(Edge{From: in, To: out.Key, Ratio: rt, Cue: r.Cue, Rule: r.Name}, out)
		if bidirectional {
			add(Edge{From: out.Key, To: in, Ratio: rt.Inverse(), Cue: r.Cue, Rule: r.Name, Inverse: true}, out)
		}
	}
	return staged, bad
}

// Holder publishes the current graph to concurrent readers.
type Holder struct {
	p atomic.Pointer[Graph]
}

// NewHolder returns a holder that starts with g, or an empty graph when g is nil.
func NewHolder(g *Graph) *Holder {
	h := &Holder{}
	if g == nil {
		g = Empty()
	}
	h.p.Store(g)
	return h
}

func (h *Holder) Load() *Graph { return h.p.Load() }

// Swap publishes g and returns the previous graph.
func (h *Holder) Swap(g *Graph) *Graph { return h.p.Swap(g) }
