package hoist

import (
	"math"
	"regexp"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/gen"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/resolve"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/value"
)

// Match reports whether v validates against n, for the keyword subset the
// resolver understands. Choice markers in v are ignored.
func (h *Hoister) Match(n resolve.Node, v any) bool {
	return h.match(n, value.Unmarked(v), nil)
}

// match carries the cells entered for v so far. A cell entered again before
// anything descends into v matches nothing, so schemas that loop through
// combinators stay finite.
func (h *Hoister) match(n resolve.Node, v any, entered map[*resolve.Ref]bool) bool {
	switch n := n.(type) {
	case *resolve.Any:
		return true
	case *resolve.Never:
		return false
	case *resolve.Leaf:
		return h.matchLeaf(n, v)
	case *resolve.Enum:
		return value.Contains(n.Values, v)
	case *resolve.Array:
		return h.matchArray(n, v)
	case *resolve.Object:
		return h.matchObject(n, v, entered)
	case *resolve.AnyOf:
		for _, c := range n.Of {
			if h.match(c, v, entered) {
				return true
			}
		}
		return false
	case *resolve.OneOf:
		return h.count(n.Of, v, entered) == 1
	case *resolve.AllOf:
		for _, c := range n.Of {
			if !h.match(c, v, entered) {
				return false
			}
		}
		return true
	case *resolve.Not:
		return !h.match(n.Schema, v, entered)
	case *resolve.Ref:
		if entered[n] {
			return false
		}
		if entered == nil {
			entered = map[*resolve.Ref]bool{}
		}
		entered[n] = true
		defer delete(entered, n)
		return h.match(n.Target, v, entered)
	}
	return false
}

// matching counts the schemas of of that v validates against.
func (h *Hoister) matching(of []resolve.Node, v any) int {
	return h.count(of, value.Unmarked(v), nil)
}

func (h *Hoister) count(of []resolve.Node, v any, entered map[*resolve.Ref]bool) int {
	hits := 0
	for _, c := range of {
		if h.match(c, v, entered) {
			hits++
		}
	}
	return hits
}

func (h *Hoister) matchLeaf(l *resolve.Leaf, v any) bool {
	k, ok := value.KindOf(v)
	if !ok {
		return false
	}
	if lk, _ := value.KindOfType(l.Type); k != lk {
		return l.Implicit
	}
	switch l.Type {
	case "integer", "number":
		f, _ := value.Float(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if l.Type == "integer" && !value.IsInteger(f) {
			return false
		}
		return gen.LeafBounds(l).Contains(f)
	case "string":
		if l.Pattern == "" {
			return true
		}
		return h.regexp(l.Pattern).MatchString(v.(string))
	}
	return true
}

func (h *Hoister) matchArray(a *resolve.Array, v any) bool {
	items, ok := v.([]any)
	if !ok {
		_, known := value.KindOf(v)
		return a.Implicit && known
	}
	if a.MinItems != nil && len(items) < *a.MinItems {
		return false
	}
	if a.MaxItems != nil && len(items) > *a.MaxItems {
		return false
	}
	for i, it := range items {
		if !h.Match(a.Items, it) {
			return false
		}
		if a.UniqueItems && value.Contains(items[:i], it) {
			return false
		}
	}
	return true
}

func (h *Hoister) matchObject(o *resolve.Object, v any, entered map[*resolve.Ref]bool) bool {
	m, ok := v.(map[string]any)
	if !ok {
		_, known := value.KindOf(v)
		return o.Implicit && known
	}
	for k, val := range m {
		schemas := h.memberSchemas(o, k)
		if len(schemas) == 0 && o.Additional != nil {
			schemas = []resolve.Node{o.Additional}
		}
		for _, s := range schemas {
			if !h.Match(s, val) {
				return false
			}
		}
	}
	for _, r := range o.Required {
		if _, ok := m[r]; !ok {
			return false
		}
	}
	for _, d := range o.Depends {
		if _, ok := m[d.Key]; !ok {
			continue
		}
		if d.Schema != nil && !h.match(d.Schema, m, entered) {
			return false
		}
		for _, r := range d.Requires {
			if _, ok := m[r]; !ok {
				return false
			}
		}
	}
	return true
}

// memberSchemas lists the schemas the value at key k must satisfy: the
// named property, then every matching patternProperties entry. Empty means
// additionalProperties applies.
func (h *Hoister) memberSchemas(o *resolve.Object, k string) []resolve.Node {
	var out []resolve.Node
	if s, ok := o.Property(k); ok {
		out = append(out, s)
	}
	for _, p := range o.Patterns {
		if h.regexp(p.Pattern).MatchString(k) {
			out = append(out, p.Schema)
		}
	}
	return out
}

func (h *Hoister) regexp(p string) *regexp.Regexp {
	if re := h.c.Regexp(p); re != nil {
		return re
	}
	// only reachable for nodes built outside Compile, e.g. in tests
	return regexp.MustCompile(p)
}
