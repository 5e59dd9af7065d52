package schemafuzz_test

import (
	"errors"
	"sync"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"pgregory.net/rapid"

	"git.cs.nctu.edu.tw/aic/infra/schemafuzz"
	"git.cs.nctu.edu.tw/aic/infra/schemafuzz/internal/schema"
)

const (
	treeSchema = `{
		"definitions": {
			"node": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"children": {"type": "array", "items": {"$ref": "#/definitions/node"}}
				},
				"required": ["name"]
			}
		},
		"$ref": "#/definitions/node"
	}`
	forestSchema = `{
		"definitions": {
			"a": {"type": "object", "properties": {"b": {"$ref": "#/definitions/b"}}},
			"b": {"type": "array", "items": {"$ref": "#/definitions/a"}}
		},
		"$ref": "#/definitions/a"
	}`
	shapeSchema = `{
		"type": "object",
		"properties": {"kind": {"enum": ["circle", "square"]}, "size": {"type": "number", "minimum": 0}},
		"required": ["kind"],
		"oneOf": [
			{"properties": {"kind": {"const": "circle"}}},
			{"properties": {"kind": {"const": "square"}}}
		]
	}`
)

var _ = Describe("hoisted samples", func() {
	DescribeTable("validate against their schema",
		func(doc string) {
			f, err := schemafuzz.New([]byte(doc))
			Expect(err).NotTo(HaveOccurred())
			sc, err := schema.CompileString(doc)
			Expect(err).NotTo(HaveOccurred())

			valid := f.Valid()
			rapid.Check(GinkgoT(), func(t *rapid.T) {
				v := valid.Draw(t, "value")
				if err := schema.Validate(sc, v); err != nil {
					t.Fatalf("%#v does not validate: %v", v, err)
				}
			})
		},
		Entry("empty schema", `{}`),
		Entry("integer", `{"type": "integer"}`),
		Entry("integer with minimum", `{"type": "integer", "minimum": -42}`),
		Entry("integer with maximum", `{"type": "integer", "maximum": 43}`),
		Entry("integer with min/max", `{"type": "integer", "minimum": -1, "maximum": 43}`),
		Entry("integer with boolean exclusive min/max",
			`{"type": "integer", "minimum": 0, "maximum": 3, "exclusiveMinimum": true, "exclusiveMaximum": true}`),
		Entry("integer with numeric exclusive min/max", `{"type": "integer", "exclusiveMinimum": 0, "exclusiveMaximum": 3}`),
		Entry("number", `{"type": "number"}`),
		Entry("number with minimum", `{"type": "number", "minimum": -42}`),
		Entry("number with maximum", `{"type": "number", "maximum": 43}`),
		Entry("number with min/max", `{"type": "number", "minimum": -1, "maximum": 43}`),
		Entry("number with exclusive bounds", `{"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1}`),
		Entry("boolean", `{"type": "boolean"}`),
		Entry("null", `{"type": "null"}`),
		Entry("string", `{"type": "string"}`),
		Entry("string with pattern", `{"type": "string", "pattern": "^(\\([0-9]{3}\\))?[0-9]{3}-[0-9]{4}$"}`),
		Entry("faker string", `{"type": "string", "faker": "address.zipCode"}`),
		Entry("faker string with pattern", `{"type": "string", "faker": "internet.email", "pattern": "^[a-z]+$"}`),
		Entry("array", `{"type": "array", "items": {"type": "string"}}`),
		Entry("array with min and max items", `{"type": "array", "items": {"type": "string"}, "minItems": 3, "maxItems": 4}`),
		Entry("array with unique items", `{"type": "array", "items": {"type": "string"}, "uniqueItems": true}`),
		Entry("array with unique items from a small domain",
			`{"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 3}, "uniqueItems": true, "minItems": 4}`),
		Entry("object", `{"type": "object", "properties": {"foo": {"type": "string"}, "bar": {"type": "number"}}}`),
		Entry("object without additional properties",
			`{"type": "object", "properties": {"foo": {"type": "string"}, "bar": {"type": "number"}}, "additionalProperties": false}`),
		Entry("object with required properties and no additional properties",
			`{"type": "object", "required": ["foo"], "properties": {"foo": {"type": "string"}, "bar": {"type": "number"}, "baz": {"type": "integer"}}, "additionalProperties": false}`),
		Entry("$ref", `{"definitions": {"baz": {"type": "string"}}, "type": "object", "properties": {"foo": {"$ref": "#/definitions/baz"}, "bar": {"type": "number"}}}`),
		Entry("$defs", `{"$defs": {"baz": {"type": "string"}}, "type": "array", "items": {"$ref": "#/$defs/baz"}}`),
		Entry("object with additional properties",
			`{"type": "object", "properties": {"foo": {"type": "string"}}, "additionalProperties": {"type": "number"}}`),
		Entry("object with pattern properties",
			`{"type": "object", "properties": {"foo": {"type": "string"}}, "patternProperties": {"^S_": {"type": "string"}, "^I_": {"type": "integer"}}}`),
		Entry("object with pattern properties and no additional properties",
			`{"type": "object", "patternProperties": {"^S_": {"type": "string"}}, "additionalProperties": false}`),
		Entry("object with overlapping patterns",
			`{"type": "object", "patternProperties": {"^a": {"type": "integer"}, "b$": {"type": "integer", "minimum": 10}}}`),
		Entry("object with dependencies",
			`{"type": "object", "properties": {"a": {"type": "integer"}, "b": {"type": "integer"}, "c": {"type": "integer"}}, "dependencies": {"c": ["b"]}}`),
		Entry("object with a required dependent",
			`{"type": "object", "properties": {"a": {"type": "integer"}, "b": {"type": "integer"}}, "required": ["a"], "dependencies": {"a": ["b"]}}`),
		Entry("object with schema dependencies",
			`{"type": "object", "properties": {"a": {"type": "integer"}, "b": {"type": "string"}}, "dependencies": {"a": {"required": ["b"]}}}`),
		Entry("anyOf at top level", `{"anyOf": [{"type": "string"}, {"type": "number"}]}`),
		Entry("anyOf internal level",
			`{"definitions": {"foo": {"type": "number"}, "bar": {"type": "string"}}, "type": "object", "properties": {"z": {"anyOf": [{"$ref": "#/definitions/foo"}, {"$ref": "#/definitions/bar"}]}}}`),
		Entry("oneOf at top level", `{"oneOf": [{"type": "string"}, {"type": "number"}]}`),
		Entry("oneOf of overlapping objects",
			`{"oneOf": [{"type": "object", "required": ["a"]}, {"type": "object", "required": ["b"]}]}`),
		Entry("oneOf alongside a type", shapeSchema),
		Entry("not at top level", `{"not": {"type": "string"}}`),
		Entry("not at top level with definitions", `{"definitions": {"foo": {"type": "string"}}, "not": {"$ref": "#/definitions/foo"}}`),
		Entry("not inside items", `{"type": "array", "items": {"not": {"type": "string"}}}`),
		Entry("not with definitions inside items",
			`{"definitions": {"foo": {"type": "string"}}, "type": "array", "items": {"not": {"$ref": "#/definitions/foo"}}}`),
		Entry("not alongside a type", `{"type": "integer", "minimum": 0, "maximum": 10, "not": {"enum": [0, 1, 2]}}`),
		Entry("allOf at top level",
			`{"allOf": [{"type": "object", "properties": {"z": {"type": "string"}}, "required": ["z"]}, {"type": "object", "properties": {"q": {"type": "string"}}, "required": ["q"]}]}`),
		Entry("allOf at top level with definitions",
			`{"definitions": {"z": {"type": "object", "properties": {"z": {"type": "string"}}, "required": ["z"]}, "q": {"type": "object", "properties": {"q": {"type": "string"}}, "required": ["q"]}}, "allOf": [{"$ref": "#/definitions/z"}, {"$ref": "#/definitions/q"}]}`),
		Entry("enum", `{"enum": [1, "two", [3], {"four": 4}, null]}`),
		Entry("const", `{"const": {"a": [1, 2]}}`),
		Entry("type list", `{"type": ["string", "null"], "pattern": "^x"}`),
		Entry("untyped constraints", `{"minimum": 3, "pattern": "^a", "required": ["a"]}`),
		Entry("boolean subschemas", `{"type": "object", "properties": {"yes": true, "no": false}}`),
		Entry("recursive tree", treeSchema),
		Entry("mutually recursive object and array", forestSchema),
		Entry("required recursion with a way out",
			`{"type": "object", "required": ["next"], "properties": {"next": {"anyOf": [{"type": "null"}, {"$ref": "#"}]}}}`),
		Entry("integer with a large negative minimum", `{"type": "integer", "minimum": -1e16}`),
		Entry("integer with a large maximum", `{"type": "integer", "maximum": 1e16}`),
		Entry("integer with a minimum past exact integers", `{"type": "integer", "minimum": 1e16}`),
	)

	It("keeps integers within bounds", func() {
		f, err := schemafuzz.New([]byte(`{"type": "integer", "minimum": -1, "maximum": 43}`))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			v := f.Valid().Draw(t, "value")
			n, ok := v.(int64)
			if !ok || n < -1 || n > 43 {
				t.Fatalf("%#v is not an integer in [-1, 43]", v)
			}
		})
	})

	It("keeps array items unique", func() {
		f, err := schemafuzz.New([]byte(`{"type": "array", "items": {"type": "string"}, "uniqueItems": true}`))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			seen := map[string]bool{}
			for _, e := range f.Valid().Draw(t, "value").([]any) {
				if seen[e.(string)] {
					t.Fatalf("%q appears twice", e)
				}
				seen[e.(string)] = true
			}
		})
	})

	It("includes dependents along with their key", func() {
		f, err := schemafuzz.New([]byte(`{"type": "object", "properties": {"a": {"type": "integer"}, "b": {"type": "integer"}, "c": {"type": "integer"}}, "dependencies": {"c": ["b"]}}`))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			m := f.Valid().Draw(t, "value").(map[string]any)
			_, hasB := m["b"]
			if _, hasC := m["c"]; hasC && !hasB {
				t.Fatalf("%v has c without b", m)
			}
		})
	})

	It("matches exactly one oneOf branch", func() {
		f, err := schemafuzz.New([]byte(`{"oneOf": [{"type": "string"}, {"type": "number"}]}`))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			switch v := f.Valid().Draw(t, "value").(type) {
			case string, int64, float64:
			default:
				t.Fatalf("%#v is neither a string nor a number", v)
			}
		})
	})

	It("never produces what not forbids", func() {
		f, err := schemafuzz.New([]byte(`{"not": {"type": "string"}}`))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			if v, ok := f.Valid().Draw(t, "value").(string); ok {
				t.Fatalf("got string %q", v)
			}
		})
	})

	It("satisfies every allOf member", func() {
		f, err := schemafuzz.New([]byte(`{"allOf": [{"type": "object", "properties": {"z": {"type": "string"}}, "required": ["z"]}, {"type": "object", "properties": {"q": {"type": "string"}}, "required": ["q"]}]}`))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			m := f.Valid().Draw(t, "value").(map[string]any)
			_, zok := m["z"].(string)
			_, qok := m["q"].(string)
			if !zok || !qok {
				t.Fatalf("%v lacks string z or q", m)
			}
		})
	})
})

var _ = Describe("hoisting", func() {
	It("leaves valid values alone", func() {
		f, err := schemafuzz.New([]byte(treeSchema))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			v := f.Valid().Draw(t, "value")
			again, err := f.Hoist(schemafuzz.Plain(v))
			if err != nil {
				t.Fatalf("cannot hoist a valid value: %v", err)
			}
			if diff := cmp.Diff(v, again); diff != "" {
				t.Fatalf("valid value changed (-before +after):\n%s", diff)
			}
		})
	})

	It("is a function of the candidate", func() {
		f, err := schemafuzz.New([]byte(shapeSchema))
		Expect(err).NotTo(HaveOccurred())
		rapid.Check(GinkgoT(), func(t *rapid.T) {
			c := f.Arbitrary().Draw(t, "candidate")
			a, err := f.Hoist(c)
			if err != nil {
				t.Fatalf("cannot hoist: %v", err)
			}
			b, _ := f.Hoist(c)
			if diff := cmp.Diff(a, b); diff != "" {
				t.Fatalf("hoisting twice differs (-first +second):\n%s", diff)
			}
		})
	})

	It("samples reproducibly from a seed", func() {
		f, err := schemafuzz.New([]byte(treeSchema))
		Expect(err).NotTo(HaveOccurred())
		for seed := int64(0); seed < 20; seed++ {
			a, err := f.Sample(seed)
			Expect(err).NotTo(HaveOccurred())
			b, err := f.Sample(seed)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmp.Diff(a, b)).To(BeEmpty())
		}
	})

	// the validator refuses cycles that stay on one instance, so these are
	// checked by shape
	DescribeTable("end recursion through combinators",
		func(doc string, shape OmegaMatcher) {
			f, err := schemafuzz.New([]byte(doc))
			Expect(err).NotTo(HaveOccurred())
			for seed := int64(0); seed < 20; seed++ {
				v, err := f.Sample(seed)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(shape)
			}
		},
		Entry("anyOf", `{"definitions": {"a": {"anyOf": [{"type": "null"}, {"$ref": "#/definitions/a"}]}}, "$ref": "#/definitions/a"}`, BeNil()),
		Entry("oneOf behind a reference chain",
			`{"definitions": {"a": {"$ref": "#/definitions/b"}, "b": {"oneOf": [{"$ref": "#/definitions/a"}, {"type": "string"}]}}, "$ref": "#/definitions/a"}`,
			BeAssignableToTypeOf("")),
	)

	It("can be shared between goroutines", func() {
		f, err := schemafuzz.New([]byte(forestSchema))
		Expect(err).NotTo(HaveOccurred())
		const workers, seeds = 8, 16
		want := make([]any, seeds)
		for seed := range want {
			want[seed], err = f.Sample(int64(seed))
			Expect(err).NotTo(HaveOccurred())
		}

		got := make([][]any, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for w := range got {
			got[w] = make([]any, seeds)
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for seed := range got[w] {
					c, err := f.Candidate(int64(seed))
					if err != nil {
						errs[w] = err
						return
					}
					if got[w][seed], err = f.Hoist(c); err != nil {
						errs[w] = err
						return
					}
				}
			}(w)
		}
		wg.Wait()

		for w := range got {
			Expect(errs[w]).NotTo(HaveOccurred())
			Expect(cmp.Diff(want, got[w])).To(BeEmpty())
		}
	})

	It("repairs decoded documents", func() {
		f, err := schemafuzz.New([]byte(`{
			"type": "object",
			"properties": {"a": {"type": "integer", "maximum": 3}, "b": {"type": "string"}},
			"required": ["a"],
			"additionalProperties": false
		}`))
		Expect(err).NotTo(HaveOccurred())

		v, err := f.Hoist(schemafuzz.Plain(map[string]any{"a": 10.0, "b": "kept", "x": 1.0}))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(map[string]any{"a": int64(3), "b": "kept"}))

		v, err = f.Hoist(schemafuzz.Plain(map[string]any{"b": "kept"}))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(HaveKeyWithValue("b", "kept"))
		Expect(v).To(HaveKey("a"))
	})

	It("removes keys whose dependents are missing", func() {
		f, err := schemafuzz.New([]byte(`{"type": "object", "properties": {"b": {"type": "integer"}, "c": {"type": "integer"}}, "dependencies": {"c": ["b"]}}`))
		Expect(err).NotTo(HaveOccurred())
		v, err := f.Hoist(schemafuzz.Plain(map[string]any{"c": 1.0}))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(map[string]any{}))
	})
})

var _ = Describe("New", func() {
	DescribeTable("rejects schemas it cannot sample",
		func(doc string, target error) {
			_, err := schemafuzz.New([]byte(doc))
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, target)).To(BeTrue(), "got %v", err)
		},
		Entry("false", `false`, schemafuzz.ErrUnsatisfiable),
		Entry("an empty integer range", `{"type": "integer", "minimum": 5, "maximum": 4}`, schemafuzz.ErrUnsatisfiable),
		Entry("an empty exclusive range", `{"type": "integer", "exclusiveMinimum": 1, "exclusiveMaximum": 2}`, schemafuzz.ErrUnsatisfiable),
		Entry("an empty enum", `{"enum": []}`, schemafuzz.ErrUnsatisfiable),
		Entry("a required property that cannot exist",
			`{"type": "object", "properties": {"a": false}, "required": ["a"]}`, schemafuzz.ErrUnsatisfiable),
		Entry("required members that recurse without end",
			`{"type": "object", "required": ["next"], "properties": {"next": {"$ref": "#"}}}`, schemafuzz.ErrUnsatisfiable),
		Entry("a $ref cycle without a way out",
			`{"definitions": {"a": {"$ref": "#/definitions/b"}, "b": {"anyOf": [{"$ref": "#/definitions/a"}]}}, "$ref": "#/definitions/a"}`, schemafuzz.ErrUnsatisfiable),
		Entry("a schema negating itself",
			`{"definitions": {"a": {"not": {"$ref": "#/definitions/a"}}}, "$ref": "#/definitions/a"}`, schemafuzz.ErrUnsatisfiable),
		Entry("an unknown faker", `{"type": "string", "faker": "no.such"}`, schemafuzz.ErrInternal),
		Entry("an invalid pattern", `{"type": "string", "pattern": "("}`, schemafuzz.ErrInternal),
	)

	DescribeTable("reports resolution errors",
		func(doc string) {
			_, err := schemafuzz.New([]byte(doc))
			var resolution *schemafuzz.ResolutionError
			Expect(errors.As(err, &resolution)).To(BeTrue(), "got %v", err)
		},
		Entry("a dangling $ref", `{"$ref": "#/definitions/missing"}`),
		Entry("a remote $ref", `{"$ref": "http://example.com/schema.json"}`),
		Entry("a $ref chain naming itself",
			`{"definitions": {"a": {"$ref": "#/definitions/b"}, "b": {"$ref": "#/definitions/a"}}, "$ref": "#/definitions/a"}`),
		Entry("an unknown type", `{"type": "decimal"}`),
		Entry("tuple items", `{"type": "array", "items": [{"type": "string"}]}`),
		Entry("malformed json", `{"type": `),
	)
})
