// Package schemafuzz samples values that validate against a JSON Schema.
//
// A Fuzzer draws candidates shaped like the schema with rapid, then hoists
// them: a deterministic repair pass edits every candidate into a value the
// schema accepts. Together they make a rapid generator of valid values:
//
//	f, err := schemafuzz.New(schema)
//	...
//	rapid.Check(t, func(t *rapid.T) {
//		v := f.Valid().Draw(t, "v")
//		...
//	})
package schemafuzz

import (
	"github.com/go-logr/logr"
	"pgregory.net/rapid"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/gen"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/hoist"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/resolve"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/value"
)

// Candidate is a drawn value that is not repaired yet.
type Candidate = value.Candidate

type (
	ResolutionError          = resolve.ResolutionError
	UnsatisfiableSchemaError = gen.UnsatisfiableSchemaError
	CompilerInternalError    = gen.CompilerInternalError
)

var (
	ErrUnsatisfiable = gen.ErrUnsatisfiable
	ErrInternal      = gen.ErrInternal
)

// Plain wraps an existing JSON value, e.g. one decoded from a file, so it
// can be hoisted.
func Plain(v any) Candidate {
	return value.Plain(v)
}

// Fuzzer is safe for concurrent use.
type Fuzzer struct {
	root     resolve.Node
	compiled *gen.Compiled
	hoister  *hoist.Hoister
}

// New resolves and compiles schema. Dangling references are reported as
// *ResolutionError, schemas without any valid value as
// *UnsatisfiableSchemaError, unsupported patterns and faker names as
// *CompilerInternalError.
func New(schema []byte, opts ...Option) (*Fuzzer, error) {
	cfg := config{log: logr.Discard(), gen: gen.DefaultOptions()}
	for _, o := range opts {
		o(&cfg)
	}

	raw, err := resolve.Parse(schema)
	if err != nil {
		return nil, err
	}
	defs := resolve.DefinitionsOf(raw)
	root, err := resolve.Resolve(raw, defs)
	if err != nil {
		return nil, err
	}
	cfg.log.V(1).Info("resolved schema", "definitions", defs.Len())

	compiled, err := gen.Compile(root, cfg.gen)
	if err != nil {
		return nil, err
	}
	if spec, _ := compiled.Spec(root); spec.Never() {
		return nil, &UnsatisfiableSchemaError{Path: "#", Reason: "no value satisfies the schema"}
	}
	cfg.log.V(1).Info("compiled generator", "nodes", compiled.Len(), "maxDepth", cfg.gen.MaxDepth)

	return &Fuzzer{root: root, compiled: compiled, hoister: hoist.New(compiled)}, nil
}

// Arbitrary draws unrepaired candidates.
func (f *Fuzzer) Arbitrary() *rapid.Generator[Candidate] {
	return f.compiled.Candidates()
}

// Hoist repairs c into a value valid against the schema. The result only
// depends on the schema and c.
func (f *Fuzzer) Hoist(c Candidate) (any, error) {
	return f.hoister.Hoist(f.root, c)
}

// Valid draws hoisted values. A hoist failure fails the rapid test.
func (f *Fuzzer) Valid() *rapid.Generator[any] {
	candidates := f.Arbitrary()
	return rapid.Custom(func(t *rapid.T) any {
		v, err := f.Hoist(candidates.Draw(t, "candidate"))
		if err != nil {
			t.Fatalf("cannot hoist candidate: %v", err)
		}
		return v
	})
}

// Candidate draws the candidate of seed, outside of any rapid test.
func (f *Fuzzer) Candidate(seed int64) (Candidate, error) {
	return f.compiled.Candidate(seed)
}

// Sample draws and hoists the candidate of seed.
func (f *Fuzzer) Sample(seed int64) (any, error) {
	c, err := f.Candidate(seed)
	if err != nil {
		return nil, err
	}
	return f.Hoist(c)
}
