// Package gen compiles a resolved schema graph into rapid generators.
//
// Generation aims for plausible values cheaply; constraints that are hard
// to hit by sampling (uniqueness, dependencies, combinator exclusivity,
// negation) are left to the hoister.
package gen

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/brianvoe/gofakeit/v6"
	"pgregory.net/rapid"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/resolve"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/value"
)

// Options bound sampling where the schema leaves sizes open.
type Options struct {
	// MaxDepth stops structural growth: past it arrays take their minimum
	// length, optional and extra object keys are skipped.
	MaxDepth int
	// MaxItems caps array length when maxItems is absent.
	MaxItems int
	// MaxExtraProperties caps synthesized keys per additionalProperties or
	// patternProperties entry.
	MaxExtraProperties int
	// IntegerWidth and NumberWidth stand in for missing numeric bounds.
	IntegerWidth int64
	NumberWidth  float64
}

func DefaultOptions() Options {
	return Options{
		MaxDepth:           5,
		MaxItems:           5,
		MaxExtraProperties: 2,
		IntegerWidth:       1_000_000,
		NumberWidth:        1e9,
	}
}

type drawFunc func(t *rapid.T, depth int) any

// Spec is the compiled generator of one node. Specs of recursive schemas
// point at each other; draw is read through the pointer at draw time.
type Spec struct {
	never bool
	draw  drawFunc
}

// Never reports that the node has no value to draw.
func (s *Spec) Never() bool {
	return s.never
}

// Compiled is the generator graph of one resolved schema. It is immutable
// once Compile returns.
type Compiled struct {
	opts     Options
	root     resolve.Node
	specs    map[resolve.Node]*Spec
	ranks    ranks
	deepest  int
	patterns map[string]*regexp.Regexp
	matching map[string]*rapid.Generator[string]

	anything *Spec
	kinds    map[value.Kind]*Spec

	coin      *rapid.Generator[bool]
	seeds     *rapid.Generator[int64]
	strings   *rapid.Generator[string]
	extraKeys *rapid.Generator[string]
	ints      *rapid.Generator[int64]
	floats    *rapid.Generator[float64]
}

func Compile(root resolve.Node, opts Options) (*Compiled, error) {
	c := &Compiled{
		opts:      opts,
		root:      root,
		specs:     map[resolve.Node]*Spec{},
		ranks:     rankAll(root, opts),
		patterns:  map[string]*regexp.Regexp{},
		matching:  map[string]*rapid.Generator[string]{},
		kinds:     map[value.Kind]*Spec{},
		coin:      rapid.Bool(),
		seeds:     rapid.Int64(),
		strings:   rapid.String(),
		extraKeys: rapid.StringMatching(`[a-z][a-zA-Z0-9_]{0,7}`),
		ints:      rapid.Int64Range(-opts.IntegerWidth, opts.IntegerWidth),
		floats:    rapid.Float64Range(-opts.NumberWidth, opts.NumberWidth),
	}
	for _, r := range c.ranks.gen {
		if r < unbounded {
			c.deepest = max(c.deepest, r)
		}
	}
	c.anything = c.ofKinds(value.Kinds)
	for _, k := range value.Kinds {
		c.kinds[k] = c.ofKinds([]value.Kind{k})
	}
	if _, err := c.compile(root, "#"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Compiled) Options() Options {
	return c.opts
}

func (c *Compiled) Root() resolve.Node {
	return c.root
}

// Len is the number of compiled nodes.
func (c *Compiled) Len() int {
	return len(c.specs)
}

// Spec returns the compiled generator of n. Any nodes not met during
// compilation share the unconstrained generator.
func (c *Compiled) Spec(n resolve.Node) (*Spec, bool) {
	if s, ok := c.specs[n]; ok {
		return s, true
	}
	if _, ok := n.(*resolve.Any); ok {
		return c.anything, true
	}
	return nil, false
}

// Regexp returns the compiled form of a pattern met during compilation.
func (c *Compiled) Regexp(pattern string) *regexp.Regexp {
	return c.patterns[pattern]
}

// DepthLimit is the nesting level past which nothing may grow any more.
// Past MaxDepth draws only build what is required, and that shrinks in rank
// at every level, so draws stay below it.
func (c *Compiled) DepthLimit() int {
	return 4*c.opts.MaxDepth + 16 + c.deepest
}

func (c *Compiled) tooDeep(depth int, path string) {
	if depth > c.DepthLimit() {
		panic(&UnsatisfiableSchemaError{Path: path, Reason: "required structure recurses without end"})
	}
}

// Candidates draws root values paired with the seed the hoister uses for
// its own fresh samples.
func (c *Compiled) Candidates() *rapid.Generator[value.Candidate] {
	root := c.specs[c.root]
	return rapid.Custom(func(t *rapid.T) value.Candidate {
		v := root.draw(t, 0)
		return value.NewCandidate(v, c.seeds.Draw(t, "seed"))
	})
}

// Candidate draws the root candidate of seed outside of a rapid test.
func (c *Compiled) Candidate(seed int64) (value.Candidate, error) {
	root := c.specs[c.root]
	if root.never {
		return value.Candidate{}, &UnsatisfiableSchemaError{Path: "#", Reason: "no value satisfies this schema"}
	}
	return example(seed, func(t *rapid.T) value.Candidate {
		v := root.draw(t, 0)
		return value.NewCandidate(v, c.seeds.Draw(t, "seed"))
	})
}

// Sample draws one value for n, the same one for the same seed. depth is
// the nesting level of n inside the value being built, so recursion stays
// bounded.
func (c *Compiled) Sample(n resolve.Node, seed int64, depth int) (any, error) {
	s, ok := c.Spec(n)
	if !ok {
		return nil, &CompilerInternalError{Path: "#", Reason: fmt.Sprintf("%T was never compiled", n)}
	}
	if s.never {
		return nil, &UnsatisfiableSchemaError{Path: "#", Reason: "no value satisfies this schema"}
	}
	return example(seed, func(t *rapid.T) any {
		return s.draw(t, depth)
	})
}

var lead = rapid.Bool()

// example runs draw once on the bit stream of seed. rapid retries draws
// that panic, so the errors draw functions panic with are caught here and
// returned instead. rapid also discards draws that read no data, hence the
// leading draw.
func example[V any](seed int64, draw func(*rapid.T) V) (v V, err error) {
	var failure error
	g := rapid.Custom(func(t *rapid.T) V {
		failure = nil
		lead.Draw(t, "lead")
		defer func() {
			if r := recover(); r != nil {
				e, ok := r.(error)
				if !ok || !(errors.Is(e, ErrUnsatisfiable) || errors.Is(e, ErrInternal)) {
					panic(r)
				}
				failure = e
			}
		}()
		return draw(t)
	})
	defer func() {
		if r := recover(); r != nil {
			if failure != nil {
				err = failure
				return
			}
			err = &CompilerInternalError{Path: "#", Reason: "sampling failed", Err: fmt.Errorf("%v", r)}
		}
	}()
	v = g.Example(int(seed))
	if failure != nil {
		var zero V
		return zero, failure
	}
	return v, nil
}

// SampleKind draws an unconstrained value of kind k.
func (c *Compiled) SampleKind(k value.Kind, seed int64, depth int) any {
	s := c.kinds[k]
	g := rapid.Custom(func(t *rapid.T) any {
		return s.draw(t, depth)
	})
	return g.Example(int(seed))
}

func (c *Compiled) compile(n resolve.Node, path string) (*Spec, error) {
	if s, ok := c.specs[n]; ok {
		return s, nil
	}
	// nodes whose every value contains themselves are known up front, so
	// specs still being compiled already answer Never correctly
	endless := c.ranks.of(n) >= unbounded
	s := &Spec{never: endless}
	c.specs[n] = s

	var err error
	switch n := n.(type) {
	case *resolve.Any:
		s.draw = c.anything.draw
	case *resolve.Never:
		c.never(s, path)
	case *resolve.Leaf:
		err = c.leaf(s, n, path)
	case *resolve.Enum:
		c.enum(s, n, path)
	case *resolve.Array:
		err = c.array(s, n, path)
	case *resolve.Object:
		err = c.object(s, n, path)
	case *resolve.AnyOf:
		err = c.choice(s, n, n.Of, path+"/anyOf")
	case *resolve.OneOf:
		err = c.choice(s, n, n.Of, path+"/oneOf")
	case *resolve.AllOf:
		err = c.allOf(s, n, path+"/allOf")
	case *resolve.Not:
		err = c.not(s, n, path+"/not")
	case *resolve.Ref:
		var target *Spec
		target, err = c.compile(n.Target, n.Pointer)
		if err == nil {
			s.never = target.never
			s.draw = func(t *rapid.T, depth int) any {
				return target.draw(t, depth)
			}
		}
	default:
		err = &CompilerInternalError{Path: path, Reason: fmt.Sprintf("no generation strategy for %T", n)}
	}
	if err != nil {
		return nil, err
	}
	if endless {
		c.never(s, path)
	}
	return s, nil
}

func (c *Compiled) never(s *Spec, path string) {
	s.never = true
	s.draw = func(*rapid.T, int) any {
		panic(&UnsatisfiableSchemaError{Path: path, Reason: "drew from a schema no value satisfies"})
	}
}

// pattern compiles a regular expression together with the generator of
// strings matching it.
func (c *Compiled) pattern(p, path string) (g *rapid.Generator[string], err error) {
	if g, ok := c.matching[p]; ok {
		return g, nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, &CompilerInternalError{Path: path, Reason: "pattern is not a supported regular expression", Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &CompilerInternalError{Path: path, Reason: "cannot generate strings for pattern", Err: fmt.Errorf("%v", r)}
		}
	}()
	g = rapid.StringMatching(p)
	c.patterns[p] = re
	c.matching[p] = g
	return g, nil
}

func (c *Compiled) leaf(s *Spec, l *resolve.Leaf, path string) error {
	switch l.Type {
	case "integer":
		lo, hi, ok := LeafBounds(l).IntRange(c.opts.IntegerWidth)
		if !ok {
			c.never(s, path)
			return nil
		}
		if Safe(lo, hi) {
			g := rapid.Int64Range(int64(lo), int64(hi))
			s.draw = func(t *rapid.T, _ int) any {
				return g.Draw(t, "integer")
			}
			break
		}
		g := rapid.Float64Range(lo, hi)
		s.draw = func(t *rapid.T, _ int) any {
			return Integral(math.Round(g.Draw(t, "integer")))
		}
	case "number":
		lo, hi, ok := LeafBounds(l).FloatRange(c.opts.NumberWidth)
		if !ok {
			c.never(s, path)
			return nil
		}
		g := rapid.Float64Range(lo, hi)
		s.draw = func(t *rapid.T, _ int) any {
			return g.Draw(t, "number")
		}
	case "boolean":
		s.draw = func(t *rapid.T, _ int) any {
			return c.coin.Draw(t, "boolean")
		}
	case "null":
		s.draw = func(*rapid.T, int) any {
			return nil
		}
	case "string":
		var matching *rapid.Generator[string]
		if l.Pattern != "" {
			g, err := c.pattern(l.Pattern, path+"/pattern")
			if err != nil {
				return err
			}
			matching = g
		}
		switch {
		case l.Faker != "":
			fake, ok := fakers[l.Faker]
			if !ok {
				return &CompilerInternalError{Path: path + "/faker", Reason: fmt.Sprintf("unknown faker %q", l.Faker)}
			}
			re := c.patterns[l.Pattern]
			s.draw = func(t *rapid.T, _ int) any {
				v := fake(gofakeit.New(c.seeds.Draw(t, "faker seed")))
				if matching != nil && !re.MatchString(v) {
					return matching.Draw(t, "pattern")
				}
				return v
			}
		case matching != nil:
			s.draw = func(t *rapid.T, _ int) any {
				return matching.Draw(t, "pattern")
			}
		default:
			s.draw = func(t *rapid.T, _ int) any {
				return c.strings.Draw(t, "string")
			}
		}
	default:
		return &CompilerInternalError{Path: path, Reason: fmt.Sprintf("no generation strategy for type %q", l.Type)}
	}
	return nil
}

func (c *Compiled) enum(s *Spec, e *resolve.Enum, path string) {
	if len(e.Values) == 0 {
		c.never(s, path)
		return
	}
	index := rapid.IntRange(0, len(e.Values)-1)
	s.draw = func(t *rapid.T, _ int) any {
		return value.Strip(e.Values[index.Draw(t, "enum")])
	}
}

func (c *Compiled) array(s *Spec, a *resolve.Array, path string) error {
	items, err := c.compile(a.Items, path+"/items")
	if err != nil {
		return err
	}
	lo := 0
	if a.MinItems != nil {
		lo = *a.MinItems
	}
	hi := max(lo, c.opts.MaxItems)
	if a.MaxItems != nil {
		hi = *a.MaxItems
	}
	if items.never {
		hi = 0
	}
	if lo > hi {
		c.never(s, path)
		return nil
	}
	length := rapid.IntRange(lo, hi)
	s.draw = func(t *rapid.T, depth int) any {
		c.tooDeep(depth, path)
		n := lo
		if depth < c.opts.MaxDepth {
			n = length.Draw(t, "length")
		}
		out := make([]any, n)
		for i := range out {
			out[i] = items.draw(t, depth+1)
		}
		return out
	}
	return nil
}

type member struct {
	name     string
	spec     *Spec
	required bool
}

type patternMember struct {
	re   *regexp.Regexp
	keys *rapid.Generator[string]
	spec *Spec
}

func (c *Compiled) object(s *Spec, o *resolve.Object, path string) error {
	var members []member
	for _, p := range o.Properties {
		sp, err := c.compile(p.Schema, path+"/properties/"+p.Name)
		if err != nil {
			return err
		}
		members = append(members, member{name: p.Name, spec: sp, required: o.IsRequired(p.Name)})
	}

	var patterns []patternMember
	for _, p := range o.Patterns {
		keys, err := c.pattern(p.Pattern, path+"/patternProperties")
		if err != nil {
			return err
		}
		sp, err := c.compile(p.Schema, path+"/patternProperties/"+p.Pattern)
		if err != nil {
			return err
		}
		patterns = append(patterns, patternMember{re: c.patterns[p.Pattern], keys: keys, spec: sp})
	}

	// dependency schemas are never drawn from directly, the hoister samples
	// them when repairing
	for _, d := range o.Depends {
		if d.Schema == nil {
			continue
		}
		if _, err := c.compile(d.Schema, path+"/dependencies/"+d.Key); err != nil {
			return err
		}
	}

	var additional *Spec
	switch o.Additional.(type) {
	case nil:
		additional = c.anything
	case *resolve.Never:
	default:
		sp, err := c.compile(o.Additional, path+"/additionalProperties")
		if err != nil {
			return err
		}
		additional = sp
	}

	// required keys without a named schema take their value from the
	// first matching pattern, then from additionalProperties
	for _, name := range o.Required {
		if _, ok := o.Property(name); ok {
			continue
		}
		var sp *Spec
		for _, p := range patterns {
			if p.re.MatchString(name) {
				sp = p.spec
				break
			}
		}
		if sp == nil {
			sp = additional
		}
		if sp == nil {
			c.never(s, path+"/required")
			return nil
		}
		members = append(members, member{name: name, spec: sp, required: true})
	}

	for _, m := range members {
		if m.required && m.spec.never {
			c.never(s, path+"/properties/"+m.name)
			return nil
		}
	}

	taken := func(out map[string]any, k string) bool {
		if _, ok := out[k]; ok {
			return true
		}
		_, named := o.Property(k)
		return named
	}
	extra := rapid.IntRange(0, c.opts.MaxExtraProperties)

	s.draw = func(t *rapid.T, depth int) any {
		c.tooDeep(depth, path)
		out := map[string]any{}
		deep := depth >= c.opts.MaxDepth
		for _, m := range members {
			if m.spec.never {
				continue
			}
			if !m.required && (deep || !c.coin.Draw(t, "include "+m.name)) {
				continue
			}
			out[m.name] = m.spec.draw(t, depth+1)
		}
		if deep {
			return out
		}
		for _, p := range patterns {
			if p.spec.never {
				continue
			}
			for i, n := 0, extra.Draw(t, "pattern keys"); i < n; i++ {
				k := p.keys.Draw(t, "pattern key")
				if taken(out, k) {
					continue
				}
				out[k] = p.spec.draw(t, depth+1)
			}
		}
		if additional != nil && !additional.never {
			for i, n := 0, extra.Draw(t, "extra keys"); i < n; i++ {
				k := c.extraKeys.Draw(t, "extra key")
				if taken(out, k) || matchesAny(patterns, k) {
					continue
				}
				out[k] = additional.draw(t, depth+1)
			}
		}
		return out
	}
	return nil
}

func matchesAny(patterns []patternMember, k string) bool {
	for _, p := range patterns {
		if p.re.MatchString(k) {
			return true
		}
	}
	return false
}

// choice draws from one satisfiable child, picked uniformly, and records
// which one in a value.Choice. Children that lead back to n without
// shrinking its rank are left out, and past MaxDepth the child of least
// rank is taken, so draws through recursive combinators always end.
func (c *Compiled) choice(s *Spec, n resolve.Node, of []resolve.Node, path string) error {
	specs := make([]*Spec, len(of))
	var eligible []int
	for i, child := range of {
		sp, err := c.compile(child, fmt.Sprintf("%s/%d", path, i))
		if err != nil {
			return err
		}
		specs[i] = sp
		if c.ranks.of(child) < c.ranks.of(n) || !loops(child, n, map[resolve.Node]bool{}) {
			eligible = append(eligible, i)
		}
	}
	s.never = true
	for _, i := range eligible {
		s.never = s.never && specs[i].never
	}
	if s.never {
		c.never(s, path)
		return nil
	}
	s.draw = func(t *rapid.T, depth int) any {
		live := make([]int, 0, len(eligible))
		for _, i := range eligible {
			if !specs[i].never {
				live = append(live, i)
			}
		}
		var i int
		if depth >= c.opts.MaxDepth {
			i = live[0]
			for _, j := range live[1:] {
				if c.ranks.of(of[j]) < c.ranks.of(of[i]) {
					i = j
				}
			}
		} else {
			i = rapid.SampledFrom(live).Draw(t, "branch")
		}
		return value.Choice{Branch: i, Value: specs[i].draw(t, depth)}
	}
	return nil
}

// allOf draws from the first conjunct only; merging independent draws of
// differently shaped conjuncts is not well defined.
func (c *Compiled) allOf(s *Spec, n *resolve.AllOf, path string) error {
	specs := make([]*Spec, len(n.Of))
	for i, child := range n.Of {
		sp, err := c.compile(child, fmt.Sprintf("%s/%d", path, i))
		if err != nil {
			return err
		}
		specs[i] = sp
		if sp.never {
			c.never(s, path)
			return nil
		}
	}
	if len(specs) == 0 {
		s.draw = c.anything.draw
		return nil
	}
	first := specs[0]
	s.draw = func(t *rapid.T, depth int) any {
		return first.draw(t, depth)
	}
	return nil
}

// not does not draw from the negated schema's own kinds. It draws
// unconstrained values of the kinds the negated schema refuses outright,
// any kind when there are none, and leaves the rest to the hoister: a draw
// that still matches the negated schema is repaired there.
func (c *Compiled) not(s *Spec, n *resolve.Not, path string) error {
	if _, err := c.compile(n.Schema, path); err != nil {
		return err
	}
	everything := true
	for _, k := range value.Kinds {
		everything = everything && AcceptsAll(n.Schema, k)
	}
	if everything {
		c.never(s, path)
		return nil
	}
	kinds := RejectedKinds(n.Schema)
	if len(kinds) == 0 {
		s.draw = c.anything.draw
		return nil
	}
	s.draw = c.ofKinds(kinds).draw
	return nil
}

// ofKinds is the unconstrained generator restricted to kinds.
func (c *Compiled) ofKinds(kinds []value.Kind) *Spec {
	pick := rapid.SampledFrom(kinds)
	length := rapid.IntRange(0, 3)
	s := &Spec{}
	s.draw = func(t *rapid.T, depth int) any {
		switch pick.Draw(t, "kind") {
		case value.Boolean:
			return c.coin.Draw(t, "boolean")
		case value.Number:
			if c.coin.Draw(t, "integral") {
				return c.ints.Draw(t, "integer")
			}
			return c.floats.Draw(t, "number")
		case value.String:
			return c.strings.Draw(t, "string")
		case value.Array:
			if depth >= c.opts.MaxDepth {
				return []any{}
			}
			out := make([]any, length.Draw(t, "length"))
			for i := range out {
				out[i] = c.anything.draw(t, depth+1)
			}
			return out
		case value.Object:
			out := map[string]any{}
			if depth >= c.opts.MaxDepth {
				return out
			}
			for i, n := 0, length.Draw(t, "size"); i < n; i++ {
				out[c.extraKeys.Draw(t, "key")] = c.anything.draw(t, depth+1)
			}
			return out
		}
		return nil
	}
	return s
}
