// Package hoist repairs sampled candidates into values that validate
// against their schema.
//
// Repair walks the resolved graph alongside the value. Anything already
// valid is returned unchanged; everything else is edited, or replaced by
// fresh samples drawn with seeds derived from the candidate, so the result
// only depends on the schema and the candidate.
package hoist

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/gen"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/resolve"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/value"
)

const (
	// rounds bounds how often allOf members are folded over a value.
	rounds = 3
	// freshAttempts bounds fresh samples per repair site.
	freshAttempts = 16
	// budget bounds fresh samples per Hoist call.
	budget = 512
)

type Hoister struct {
	c *gen.Compiled
}

func New(c *gen.Compiled) *Hoister {
	return &Hoister{c: c}
}

type visit struct {
	ref   *resolve.Ref
	depth int
}

// state is owned by one Hoist call.
type state struct {
	h        *Hoister
	seed     int64
	draws    uint64
	budget   int
	visiting map[visit]bool
}

// Hoist repairs cand into a value that validates against n.
func (h *Hoister) Hoist(n resolve.Node, cand value.Candidate) (any, error) {
	s := &state{
		h:        h,
		seed:     cand.Seed(),
		budget:   budget,
		visiting: map[visit]bool{},
	}
	v, err := s.hoist(n, cand.Raw(), "#", 0)
	if err != nil {
		return nil, err
	}
	if !h.Match(n, v) {
		return nil, &gen.CompilerInternalError{Path: "#", Reason: "repaired value does not validate"}
	}
	return v, nil
}

func unsatisfiable(path, reason string) error {
	return &gen.UnsatisfiableSchemaError{Path: path, Reason: reason}
}

// next derives the seed of the next fresh sample (splitmix64).
func (s *state) next() int64 {
	s.draws++
	x := uint64(s.seed) + s.draws*0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return int64(x ^ (x >> 31))
}

func (s *state) pick(n int) int {
	return int(uint64(s.next()) % uint64(n))
}

func (s *state) sample(n resolve.Node, depth int) (any, error) {
	return s.h.c.Sample(n, s.next(), depth)
}

func (s *state) never(n resolve.Node) bool {
	spec, ok := s.h.c.Spec(n)
	return ok && spec.Never()
}

// hoist returns v unchanged if it already matches n. Otherwise it repairs
// v, falling back to repairing fresh samples of n.
func (s *state) hoist(n resolve.Node, v any, path string, depth int) (any, error) {
	if plain := value.Strip(v); s.h.Match(n, plain) {
		return plain, nil
	}
	if depth > s.h.c.DepthLimit() {
		return nil, unsatisfiable(path, "value nests deeper than the schema allows to repair")
	}

	out, err := s.repair(n, v, path, depth)
	if err == nil && s.h.Match(n, out) {
		return out, nil
	}
	if errors.Is(err, gen.ErrInternal) {
		return nil, err
	}
	for i := 0; i < freshAttempts && s.budget > 0; i++ {
		s.budget--
		f, ferr := s.sample(n, depth)
		if ferr != nil {
			return nil, ferr
		}
		if plain := value.Strip(f); s.h.Match(n, plain) {
			return plain, nil
		}
		out, rerr := s.repair(n, f, path, depth)
		if rerr == nil && s.h.Match(n, out) {
			return out, nil
		}
		if errors.Is(rerr, gen.ErrInternal) {
			return nil, rerr
		}
	}
	if err != nil {
		return nil, err
	}
	return nil, unsatisfiable(path, "no repair found")
}

func (s *state) repair(n resolve.Node, v any, path string, depth int) (any, error) {
	switch n := n.(type) {
	case *resolve.Any:
		return value.Strip(v), nil
	case *resolve.Never:
		return nil, unsatisfiable(path, "no value satisfies this schema")
	case *resolve.Leaf:
		return s.leaf(n, value.Unmarked(v), path, depth)
	case *resolve.Enum:
		return s.enum(n, v, path)
	case *resolve.Array:
		return s.array(n, v, path, depth)
	case *resolve.Object:
		return s.object(n, v, path, depth)
	case *resolve.AnyOf:
		return s.anyOf(n, v, path, depth)
	case *resolve.OneOf:
		return s.oneOf(n, v, path, depth)
	case *resolve.AllOf:
		return s.conjoin(n.Of, v, path, depth)
	case *resolve.Not:
		return s.not(n, v, path, depth)
	case *resolve.Ref:
		key := visit{ref: n, depth: depth}
		if s.visiting[key] {
			return nil, unsatisfiable(path, fmt.Sprintf("%s re-entered without descending", n.Pointer))
		}
		s.visiting[key] = true
		defer delete(s.visiting, key)
		return s.hoist(n.Target, v, path, depth)
	}
	return nil, &gen.CompilerInternalError{Path: path, Reason: fmt.Sprintf("no repair strategy for %T", n)}
}

func (s *state) leaf(l *resolve.Leaf, v any, path string, depth int) (any, error) {
	k, ok := value.KindOf(v)
	if lk, _ := value.KindOfType(l.Type); !ok || k != lk {
		return s.sample(l, depth)
	}
	opts := s.h.c.Options()
	b := gen.LeafBounds(l)
	switch l.Type {
	case "integer":
		f, _ := value.Float(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return s.sample(l, depth)
		}
		f = math.Round(f)
		lo, hi, ok := b.IntRange(opts.IntegerWidth)
		if !ok {
			return nil, unsatisfiable(path, "integer range is empty")
		}
		if !b.Contains(f) {
			f = math.Min(math.Max(f, lo), hi)
		}
		return gen.Integral(f), nil
	case "number":
		f, _ := value.Float(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return s.sample(l, depth)
		}
		lo, hi, ok := b.FloatRange(opts.NumberWidth)
		if !ok {
			return nil, unsatisfiable(path, "number range is empty")
		}
		if !b.Contains(f) {
			f = math.Min(math.Max(f, lo), hi)
		}
		return f, nil
	case "string":
		if l.Pattern != "" && !s.h.regexp(l.Pattern).MatchString(v.(string)) {
			return s.sample(l, depth)
		}
	}
	return v, nil
}

func (s *state) enum(e *resolve.Enum, v any, path string) (any, error) {
	plain := value.Strip(v)
	if value.Contains(e.Values, plain) {
		return plain, nil
	}
	if len(e.Values) == 0 {
		return nil, unsatisfiable(path, "enum is empty")
	}
	return value.Strip(e.Values[s.pick(len(e.Values))]), nil
}

func (s *state) array(a *resolve.Array, v any, path string, depth int) (any, error) {
	items, ok := value.Unmarked(v).([]any)
	if !ok {
		f, err := s.sample(a, depth)
		if err != nil {
			return nil, err
		}
		items, _ = f.([]any)
	}

	out := make([]any, 0, len(items))
	for i, it := range items {
		r, err := s.hoist(a.Items, it, fmt.Sprintf("%s/%d", path, i), depth+1)
		if errors.Is(err, gen.ErrInternal) {
			return nil, err
		}
		if err != nil || (a.UniqueItems && value.Contains(out, r)) {
			continue
		}
		out = append(out, r)
	}
	if a.MaxItems != nil && len(out) > *a.MaxItems {
		out = out[:*a.MaxItems]
	}
	if a.MinItems == nil {
		return out, nil
	}

	for tries := 0; len(out) < *a.MinItems; tries++ {
		if tries >= freshAttempts*(*a.MinItems) {
			return nil, unsatisfiable(path, fmt.Sprintf("cannot find %d distinct items", *a.MinItems))
		}
		f, err := s.sample(a.Items, depth+1)
		if err != nil {
			return nil, err
		}
		r, err := s.hoist(a.Items, f, fmt.Sprintf("%s/%d", path, len(out)), depth+1)
		if errors.Is(err, gen.ErrInternal) {
			return nil, err
		}
		if err != nil || (a.UniqueItems && value.Contains(out, r)) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *state) object(o *resolve.Object, v any, path string, depth int) (any, error) {
	m, ok := value.Unmarked(v).(map[string]any)
	if !ok {
		f, err := s.sample(o, depth)
		if err != nil {
			return nil, err
		}
		m, _ = f.(map[string]any)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		r, keep, err := s.member(o, k, m[k], path+"/"+k, depth+1)
		if errors.Is(err, gen.ErrInternal) {
			return nil, err
		}
		if err != nil || !keep {
			continue
		}
		out[k] = r
	}
	for _, k := range o.Required {
		if _, ok := out[k]; ok {
			continue
		}
		r, err := s.freshMember(o, k, path+"/"+k, depth+1)
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return s.dependencies(o, out, path, depth)
}

// member repairs the value at key k. keep is false when the key is not
// allowed at all.
func (s *state) member(o *resolve.Object, k string, v any, path string, depth int) (r any, keep bool, err error) {
	schemas := s.h.memberSchemas(o, k)
	if len(schemas) == 0 {
		switch o.Additional.(type) {
		case nil:
			return value.Strip(v), true, nil
		case *resolve.Never:
			return nil, false, nil
		}
		schemas = []resolve.Node{o.Additional}
	}
	r, err = s.conjoin(schemas, v, path, depth)
	return r, err == nil, err
}

// freshMember samples a value for a key the object lacks.
func (s *state) freshMember(o *resolve.Object, k string, path string, depth int) (any, error) {
	schemas := s.h.memberSchemas(o, k)
	if len(schemas) == 0 {
		switch o.Additional.(type) {
		case nil:
			schemas = []resolve.Node{&resolve.Any{}}
		case *resolve.Never:
			return nil, unsatisfiable(path, fmt.Sprintf("key %q is needed but not allowed", k))
		default:
			schemas = []resolve.Node{o.Additional}
		}
	}
	f, err := s.sample(schemas[0], depth)
	if err != nil {
		return nil, err
	}
	return s.conjoin(schemas, f, path, depth)
}

// dependencies drops keys whose dependencies do not hold. Required keys
// cannot be dropped, so their dependencies are filled in instead.
func (s *state) dependencies(o *resolve.Object, out map[string]any, path string, depth int) (any, error) {
	for round := 0; round <= len(o.Depends); round++ {
		changed := false
		for _, d := range o.Depends {
			if _, ok := out[d.Key]; !ok {
				continue
			}
			if d.Schema != nil {
				if s.h.Match(d.Schema, out) {
					continue
				}
				changed = true
				if !o.IsRequired(d.Key) {
					delete(out, d.Key)
					continue
				}
				r, err := s.hoist(d.Schema, out, path, depth)
				if err != nil {
					return nil, err
				}
				m, ok := r.(map[string]any)
				if !ok {
					return nil, unsatisfiable(path, fmt.Sprintf("dependency of %q does not admit an object", d.Key))
				}
				out = m
				continue
			}
			for _, r := range d.Requires {
				if _, ok := out[r]; ok {
					continue
				}
				changed = true
				if !o.IsRequired(d.Key) {
					delete(out, d.Key)
					break
				}
				x, err := s.freshMember(o, r, path+"/"+r, depth+1)
				if err != nil {
					return nil, err
				}
				out[r] = x
			}
		}
		if !changed {
			break
		}
	}
	return out, nil
}

// conjoin folds v through every schema of of, in order, until all of them
// hold at once.
func (s *state) conjoin(of []resolve.Node, v any, path string, depth int) (any, error) {
	cur := v
	for round := 0; round < rounds; round++ {
		for _, c := range of {
			r, err := s.hoist(c, cur, path, depth)
			if err != nil {
				return nil, err
			}
			cur = r
		}
		if s.h.matching(of, cur) == len(of) {
			return cur, nil
		}
	}
	return nil, unsatisfiable(path, "allOf members keep undoing each other")
}

// order lists the satisfiable alternatives of a combinator, first the one
// the candidate was drawn from when known.
func (s *state) order(of []resolve.Node, first int) []int {
	out := make([]int, 0, len(of))
	if first >= 0 && first < len(of) && !s.never(of[first]) {
		out = append(out, first)
	}
	for i, c := range of {
		if i != first && !s.never(c) {
			out = append(out, i)
		}
	}
	return out
}

func (s *state) anyOf(n *resolve.AnyOf, v any, path string, depth int) (any, error) {
	branch, inner, _ := value.Unwrap(v)
	err := unsatisfiable(path, "anyOf has no satisfiable alternative")
	for _, i := range s.order(n.Of, branch) {
		start := inner
		if i != branch {
			start = value.Strip(inner)
		}
		r, herr := s.hoist(n.Of[i], start, path, depth)
		if herr == nil {
			return r, nil
		}
		if errors.Is(herr, gen.ErrInternal) {
			return nil, herr
		}
		err = herr
	}
	return nil, err
}

// oneOf repairs toward the branch the candidate was drawn from; the other
// branches are only tried when that one cannot be matched alone. Unmarked
// values start from the first branch they already match.
func (s *state) oneOf(n *resolve.OneOf, v any, path string, depth int) (any, error) {
	branch, inner, marked := value.Unwrap(v)
	if !marked || branch >= len(n.Of) {
		branch = -1
		plain := value.Strip(v)
		for i, c := range n.Of {
			if s.h.Match(c, plain) {
				branch = i
				break
			}
		}
	}
	err := unsatisfiable(path, "oneOf has no satisfiable alternative")
	for _, i := range s.order(n.Of, branch) {
		start := inner
		if i != branch {
			start = value.Strip(inner)
		}
		r, xerr := s.exclusive(n, i, start, path, depth)
		if xerr == nil {
			return r, nil
		}
		if errors.Is(xerr, gen.ErrInternal) {
			return nil, xerr
		}
		err = xerr
	}
	return nil, err
}

// exclusive looks for a value matching branch i of n and no other branch.
func (s *state) exclusive(n *resolve.OneOf, i int, v any, path string, depth int) (any, error) {
	branch := n.Of[i]
	alone := func(x any) bool {
		return s.h.Match(branch, x) && s.h.matching(n.Of, x) == 1
	}

	r, err := s.hoist(branch, v, path, depth)
	if errors.Is(err, gen.ErrInternal) {
		return nil, err
	}
	if err == nil {
		if alone(r) {
			return r, nil
		}
		if m, ok := r.(map[string]any); ok {
			trimmed := map[string]any{}
			for _, k := range requiredKeys(branch, map[resolve.Node]bool{}) {
				if x, ok := m[k]; ok {
					trimmed[k] = x
				}
			}
			if alone(trimmed) {
				return trimmed, nil
			}
		}
	}

	// kinds every other branch refuses outright
	for _, k := range value.Kinds {
		if gen.Rejects(branch, k) || !s.othersReject(n, i, k) {
			continue
		}
		x := s.h.c.SampleKind(k, s.next(), depth)
		if r, err := s.hoist(branch, x, path, depth); err == nil && alone(r) {
			return r, nil
		}
	}

	for t := 0; t < freshAttempts && s.budget > 0; t++ {
		s.budget--
		f, err := s.sample(branch, depth)
		if err != nil {
			return nil, err
		}
		r, err := s.hoist(branch, f, path, depth)
		if errors.Is(err, gen.ErrInternal) {
			return nil, err
		}
		if err == nil && alone(r) {
			return r, nil
		}
	}
	return nil, unsatisfiable(path, fmt.Sprintf("oneOf branch %d cannot be matched alone", i))
}

func (s *state) othersReject(n *resolve.OneOf, i int, k value.Kind) bool {
	for j, c := range n.Of {
		if j != i && !gen.Rejects(c, k) {
			return false
		}
	}
	return true
}

// requiredKeys collects the keys an object branch insists on.
func requiredKeys(n resolve.Node, seen map[resolve.Node]bool) []string {
	n = resolve.Deref(n)
	if seen[n] {
		return nil
	}
	seen[n] = true
	switch n := n.(type) {
	case *resolve.Object:
		return n.Required
	case *resolve.AllOf:
		var out []string
		for _, c := range n.Of {
			out = append(out, requiredKeys(c, seen)...)
		}
		return out
	}
	return nil
}

// not looks for a value the negated schema refuses: small edits of v that
// keep its kind, then samples of kinds refused outright, then sentinels.
func (s *state) not(n *resolve.Not, v any, path string, depth int) (any, error) {
	refused := func(x any) bool {
		return !s.h.Match(n.Schema, x)
	}
	for _, x := range nudges(value.Strip(v)) {
		if refused(x) {
			return x, nil
		}
	}
	if kinds := gen.RejectedKinds(n.Schema); len(kinds) > 0 {
		x := s.h.c.SampleKind(kinds[s.pick(len(kinds))], s.next(), depth)
		if refused(x) {
			return x, nil
		}
	}
	for t := 0; t < freshAttempts; t++ {
		f, err := s.sample(n, depth)
		if err != nil {
			return nil, err
		}
		if x := value.Strip(f); refused(x) {
			return x, nil
		}
	}
	for _, x := range sentinels() {
		if refused(x) {
			return x, nil
		}
	}
	return nil, unsatisfiable(path, "every value tried satisfies the negated schema")
}

// nudges are values of the same kind as v, close to it.
func nudges(v any) []any {
	switch x := v.(type) {
	case bool:
		return []any{!x}
	case string:
		return []any{x + "_", "_" + x, ""}
	case []any:
		return []any{append(append([]any{}, x...), nil), []any{}}
	case map[string]any:
		return []any{map[string]any{}}
	}
	if f, ok := value.Float(v); ok {
		return []any{f + 1, f - 1, -f, f + 0.5}
	}
	return nil
}

func sentinels() []any {
	return []any{nil, false, true, int64(0), int64(-1), 1.5, "", "a", []any{}, map[string]any{}}
}
