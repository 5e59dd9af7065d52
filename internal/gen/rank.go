package gen

import (
	"math"
	"regexp"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/resolve"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/value"
)

// unbounded is the rank of a node no finite value satisfies.
const unbounded = math.MaxInt32

// ranks holds, per node, how many schema steps its smallest value takes to
// build. Cycles count only through what a value needs: required members,
// non-empty arrays, combinator branches. A node whose every value would
// contain itself stays unbounded. A negation never draws from the schema it
// negates but has to evaluate it, so eval ranks that separately: there a
// node with no values is as cheap as any other.
type ranks struct {
	gen, eval map[resolve.Node]int
}

func rankAll(root resolve.Node, opts Options) ranks {
	var nodes []resolve.Node
	collect(root, map[resolve.Node]bool{}, &nodes)

	r := ranks{gen: map[resolve.Node]int{}, eval: map[resolve.Node]int{}}
	for _, n := range nodes {
		r.gen[n], r.eval[n] = unbounded, unbounded
	}
	// ranks only ever fall, one fixed point is reached
	for changed := true; changed; {
		changed = false
		for _, n := range nodes {
			g, e := r.step(n, opts)
			if g != r.gen[n] || e != r.eval[n] {
				r.gen[n], r.eval[n] = g, e
				changed = true
			}
		}
	}
	return r
}

// of is the rank of n; nodes built outside Compile are free.
func (r ranks) of(n resolve.Node) int {
	if g, ok := r.gen[n]; ok {
		return g
	}
	return 0
}

func (r ranks) step(n resolve.Node, opts Options) (g, e int) {
	switch n := n.(type) {
	case *resolve.Never:
		return unbounded, 0
	case *resolve.Leaf:
		ok := true
		switch n.Type {
		case "integer":
			_, _, ok = LeafBounds(n).IntRange(opts.IntegerWidth)
		case "number":
			_, _, ok = LeafBounds(n).FloatRange(opts.NumberWidth)
		}
		if !ok {
			return unbounded, 0
		}
	case *resolve.Enum:
		if len(n.Values) == 0 {
			return unbounded, 0
		}
	case *resolve.Array:
		lo := 0
		if n.MinItems != nil {
			lo = *n.MinItems
		}
		if n.MaxItems != nil && lo > *n.MaxItems {
			return unbounded, 0
		}
		if lo > 0 {
			return above(r.gen[n.Items]), 0
		}
	case *resolve.Object:
		g := 1
		for _, name := range n.Required {
			sp := requiredSchema(n, name)
			if sp == nil {
				return unbounded, 0
			}
			g = max(g, above(r.gen[sp]))
		}
		return g, 0
	case *resolve.AnyOf:
		return r.least(n.Of)
	case *resolve.OneOf:
		return r.least(n.Of)
	case *resolve.AllOf:
		g, e := 1, 1
		for _, c := range n.Of {
			g, e = max(g, above(r.gen[c])), max(e, above(r.eval[c]))
		}
		return g, e
	case *resolve.Not:
		e := above(r.eval[n.Schema])
		for _, k := range value.Kinds {
			if !AcceptsAll(n.Schema, k) {
				return e, e
			}
		}
		return unbounded, e
	case *resolve.Ref:
		return r.gen[n.Target], r.eval[n.Target]
	}
	return 0, 0
}

func (r ranks) least(of []resolve.Node) (g, e int) {
	g, e = unbounded, unbounded
	for _, c := range of {
		g, e = min(g, above(r.gen[c])), min(e, above(r.eval[c]))
	}
	return g, e
}

func above(rank int) int {
	if rank >= unbounded {
		return unbounded
	}
	return rank + 1
}

// requiredSchema is the schema the value of a required key is drawn from:
// the named property, the first matching pattern, then
// additionalProperties. Nil means no value may be given.
func requiredSchema(o *resolve.Object, name string) resolve.Node {
	if sp, ok := o.Property(name); ok {
		return sp
	}
	for _, p := range o.Patterns {
		if re, err := regexp.Compile(p.Pattern); err == nil && re.MatchString(name) {
			return p.Schema
		}
	}
	switch o.Additional.(type) {
	case nil:
		return &resolve.Any{}
	case *resolve.Never:
		return nil
	}
	return o.Additional
}

func collect(n resolve.Node, seen map[resolve.Node]bool, out *[]resolve.Node) {
	if n == nil || seen[n] {
		return
	}
	seen[n] = true
	*out = append(*out, n)
	for _, c := range children(n) {
		collect(c, seen, out)
	}
}

func children(n resolve.Node) []resolve.Node {
	switch n := n.(type) {
	case *resolve.Array:
		return []resolve.Node{n.Items}
	case *resolve.Object:
		var out []resolve.Node
		for _, p := range n.Properties {
			out = append(out, p.Schema)
		}
		for _, p := range n.Patterns {
			out = append(out, p.Schema)
		}
		for _, d := range n.Depends {
			out = append(out, d.Schema)
		}
		return append(out, n.Additional)
	}
	return flat(n)
}

// flat lists the nodes n evaluates against the same value.
func flat(n resolve.Node) []resolve.Node {
	switch n := n.(type) {
	case *resolve.AnyOf:
		return n.Of
	case *resolve.OneOf:
		return n.Of
	case *resolve.AllOf:
		return n.Of
	case *resolve.Not:
		return []resolve.Node{n.Schema}
	case *resolve.Ref:
		return []resolve.Node{n.Target}
	}
	return nil
}

// loops reports that from leads back to to without descending into an
// array or object.
func loops(from, to resolve.Node, seen map[resolve.Node]bool) bool {
	if from == to {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	for _, c := range flat(from) {
		if loops(c, to, seen) {
			return true
		}
	}
	return false
}
