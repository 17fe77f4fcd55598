// Package rulegen derives conversion rules from generic recipe data.
//
// Only recipes whose ingredient slots all accept the same ingredient shape are
// usable: every slot consumes one of the shape's alternatives, so the recipe
// becomes "N units of X -> outputs" for each alternative X.
package rulegen

import (
	"fmt"
	"strconv"
	"strings"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/rules"
)

// Ingredient is one recipe slot. Each alternative carries the units it
// consumes from that slot.
type Ingredient struct {
	Alternatives []item.Stack
}

func (in Ingredient) shape() string {
	var b strings.Builder
	for i, alt := range in.Alternatives {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(alt.Key.String())
		b.WriteByte('*')
		b.WriteString(strconv.FormatInt(alt.Count, 10))
	}
	return b.String()
}

// Recipe is a source recipe: one Ingredient per slot and the stacks it yields.
type Recipe struct {
	ID          string
	Ingredients []Ingredient
	Outputs     []item.Stack
}

// Source is the read-only recipe collaborator.
type Source interface {
	RecipesOfKind(kind string) []Recipe
}

// Generator turns recipes of one kind into rules.
type Generator struct {
	// Namespace prefixes every generated rule name.
	Namespace string
	Kind      string
	Cue       rules.Cue
}

type groupKey struct {
	input item.Key
	units int64
}

// Consumption reports the units of each alternative consumed by one craft of
// r, or ok=false when r does not have exactly one distinct ingredient shape.
func Consumption(r Recipe) (alts []item.Stack, ok bool) {
	if len(r.Ingredients) == 0 {
		return nil, false
	}
	shape := r.Ingredients[0].shape()
	for _, in := range r.Ingredients[1:] {
		if in.shape() != shape {
			return nil, false
		}
	}
	slots := int64(len(r.Ingredients))
	for _, alt := range r.Ingredients[0].Alternatives {
		if alt.IsEmpty() {
			continue
		}
		alts = append(alts, alt.WithCount(alt.Count*slots))
	}
	return alts, len(alts) > 0
}

// Generate returns one rule per distinct (input item, consumed units) pair,
// keyed by a stable name. Recipes are visited in the order the source returns
// them, so the same recipe data always yields the same names.
func (g Generator) Generate(src Source) map[string]rules.Rule {
	counters := map[string]int{}
	names := map[groupKey]string{}
	out := map[string]rules.Rule{}

	for _, r := range src.RecipesOfKind(g.Kind) {
		alts, ok := Consumption(r)
		if !ok {
			continue
		}
		for _, in := range alts {
			gk := groupKey{input: in.Key, units: in.Count}
			name, seen := names[gk]
			if !seen {
				base := strings.ToLower(in.Key.Type())
				name = fmt.Sprintf("%s/%s_%d", g.Namespace, base, counters[base])
				counters[base]++
				names[gk] = name
				out[name] = rules.Rule{
					Name:  name,
					Input: in,
					Cue:   g.Cue,
				}
			}
			rule := out[name]
			for _, o := range r.Outputs {
				if o.IsEmpty() {
					continue
				}
				rule.Outputs = append(rule.Outputs, o)
			}
			out[name] = rule
		}
	}
	for name, r := range out {
		if len(r.Outputs) == 0 {
			delete(out, name)
		}
	}
	return out
}
