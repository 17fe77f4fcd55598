// Package exec performs conversions against inventory, creative and grid
// backends.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/paths"
	"itemconverter.ai/internal/convert/rules"
)

// All asks for the largest bulk conversion that fits one output stack.
const All int64 = -1

// Request is one conversion.
type Request struct {
	ID        string
	Requester string
	// Expect, when set, is the item the requester saw at the source. A
	// mismatch means the request is stale.
	Expect   item.Key
	Target   item.Key
	Quantity int64
	Policy   Policy
}

// Result describes a successful conversion.
type Result struct {
	Route    paths.Route
	Source   item.Key
	Units    int64
	Produced item.Stack
}

// Record is the audit form of one conversion attempt.
type Record struct {
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Requester string    `json:"requester,omitempty"`
	Backend   string    `json:"backend"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Ratio     string    `json:"ratio,omitempty"`
	Hops      int       `json:"hops,omitempty"`
	Units     int64     `json:"units"`
	Produced  int64     `json:"produced"`
	Policy    string    `json:"policy"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// AuditSink receives one record per attempt.
type AuditSink interface {
	WriteConversion(Record) error
}

// CuePlayer plays a rule's sound to a requester.
type CuePlayer interface {
	Play(requester string, cue rules.Cue)
}

// Executor runs conversions. It is meant to be driven from the single
// goroutine that owns the inventories and grids it touches.
type Executor struct {
	Resolver *paths.Resolver
	Sizer    StackSizer
	Sounds   CuePlayer
	Audit    AuditSink
	Logger   *log.Logger
	// MaxStacks bounds the output of one request, in target stacks. Zero means
	// DefaultMaxStacks.
	MaxStacks int64

	Now func() time.Time
}

// DefaultMaxStacks is the output bound used when Executor.MaxStacks is unset.
const DefaultMaxStacks int64 = 64

func (x *Executor) logger() *log.Logger {
	if x.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return x.Logger
}

func (x *Executor) now() time.Time {
	if x.Now == nil {
		return time.Now().UTC()
	}
	return x.Now()
}

func (x *Executor) maxStack(k item.Key) int64 {
	if x.Sizer == nil {
		return 64
	}
	if n := x.Sizer.MaxStackSize(k); n > 0 {
		return n
	}
	return 1
}

// outputLimit is the most units of k a single request may produce.
func (x *Executor) outputLimit(k item.Key) int64 {
	stacks := x.MaxStacks
	if stacks <= 0 {
		stacks = DefaultMaxStacks
	}
	per := x.maxStack(k)
	if per > math.MaxInt64/stacks {
		return math.MaxInt64
	}
	return per * stacks
}

// Convert trades units at b's source for req.Target along the shortest route.
func (x *Executor) Convert(ctx context.Context, b Backend, req Request) (res Result, err error) {
	rec := Record{
		RequestID: req.ID,
		Requester: req.Requester,
		Backend:   b.Name(),
		To:        req.Target.String(),
		Policy:    req.Policy.String(),
	}
	defer func() { x.finish(rec, res, err) }()

	if req.Target.IsZero() {
		return Result{}, fmt.Errorf("%w: missing target", ErrInvalidRequest)
	}
	if req.Quantity == 0 || req.Quantity < All {
		return Result{}, fmt.Errorf("%w: quantity %d", ErrInvalidRequest, req.Quantity)
	}

	src, err := b.Source(ctx)
	if err != nil {
		return Result{}, err
	}
	rec.From = src.Key.String()
	if !req.Expect.IsZero() && src.Key != req.Expect {
		return Result{}, fmt.Errorf("%w: source holds %s, expected %s", ErrInvalidRequest, src.Key, req.Expect)
	}
	if src.IsEmpty() {
		return Result{}, fmt.Errorf("%w: source is empty", ErrInsufficientQuantity)
	}

	g := x.Resolver.Snapshot()
	if !g.Has(req.Target) {
		return Result{}, fmt.Errorf("%w: target %s not in graph", ErrInvalidRequest, req.Target)
	}
	route, ok := x.Resolver.Path(g, src.Key, req.Target)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s -> %s", ErrPathNotFound, src.Key, req.Target)
	}
	rec.Hops = route.Hops()
	if route.Overflow {
		return Result{}, fmt.Errorf("%w: ratio of %s overflows", ErrInsufficientQuantity, route)
	}
	rec.Ratio = route.Ratio.String()
	if !route.Feasible(src.Count) {
		return Result{}, fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientQuantity, route.Ratio.Den, src.Key, src.Count)
	}

	units := x.units(route, src.Count, req.Quantity)
	if units == 0 {
		return Result{}, fmt.Errorf("%w: nothing fits in one %s stack", ErrInsufficientQuantity, req.Target)
	}
	limit := x.outputLimit(req.Target)
	produced, ok := route.Ratio.ProduceWithin(units, limit)
	if !ok {
		return Result{}, fmt.Errorf("%w: %d %s would produce more than %d %s", ErrInvalidRequest, units, src.Key, limit, req.Target)
	}
	if err := b.Extract(ctx, units); err != nil {
		return Result{}, err
	}
	out := item.NewStack(req.Target, produced)
	b.Distribute(ctx, out, req.Policy)

	if x.Sounds != nil {
		x.Sounds.Play(req.Requester, route.Cue())
	}
	return Result{Route: route, Source: src.Key, Units: units, Produced: out}, nil
}

// units picks how many source units to consume: always a multiple of the
// route denominator and never more than one output stack for All.
func (x *Executor) units(route paths.Route, available, quantity int64) int64 {
	r := route.Ratio
	if quantity == All {
		times := x.maxStack(route.To) / r.Num
		if times > 0 && r.Den > math.MaxInt64/times {
			return r.Units(available)
		}
		return r.Units(min(available, times*r.Den))
	}
	return r.Units(min(quantity, available))
}

func (x *Executor) finish(rec Record, res Result, err error) {
	rec.Time = x.now()
	rec.Outcome = outcome(err)
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Units = res.Units
		rec.Produced = res.Produced.Count
		unitsExtracted.WithLabelValues(rec.Backend).Add(float64(res.Units))
		unitsProduced.WithLabelValues(rec.Backend).Add(float64(res.Produced.Count))
	}
	conversions.WithLabelValues(rec.Backend, rec.Outcome).Inc()

	switch {
	case errors.Is(err, ErrInvalidRequest):
		x.logger().Printf("WARN dropped request %s from %s: %v", rec.RequestID, rec.Requester, err)
	case errors.Is(err, ErrPartialExtraction):
		x.logger().Printf("partial extraction rolled back for %s: %v", rec.Requester, err)
	case err != nil && rec.Outcome == "error":
		x.logger().Printf("conversion %s failed: %v", rec.RequestID, err)
	}

	if x.Audit != nil {
		if aerr := x.Audit.WriteConversion(rec); aerr != nil {
			x.logger().Printf("audit write: %v", aerr)
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPathNotFound):
		return "no_path"
	case errors.Is(err, ErrInsufficientQuantity):
		return "insufficient"
	case errors.Is(err, ErrPartialExtraction):
		return "partial_extraction"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
