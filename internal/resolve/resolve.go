// Package resolve turns a JSON Schema document into a graph of Nodes.
//
// $ref pointers become shared reference cells indexed by pointer, so
// recursive and mutually recursive definitions yield a finite, cyclic graph
// instead of an infinite expansion. The graph is complete when Resolve
// returns and is never written to again.
package resolve

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// Definitions indexes the schemas a $ref may name, keyed by the pointer as
// written in the document.
type Definitions struct {
	byPointer map[string]*Raw
}

// DefinitionsOf collects the root schema ("#") and the entries of its
// definitions and $defs keywords.
func DefinitionsOf(root *Raw) Definitions {
	d := Definitions{byPointer: map[string]*Raw{"#": root}}
	add := func(prefix string, m *orderedmap.OrderedMap[string, *Raw]) {
		if m == nil {
			return
		}
		for p := m.Oldest(); p != nil; p = p.Next() {
			d.byPointer[prefix+pointerEscaper.Replace(p.Key)] = p.Value
		}
	}
	add("#/definitions/", root.Definitions)
	add("#/$defs/", root.Defs)
	return d
}

// Len is the number of named definitions, excluding the root.
func (d Definitions) Len() int {
	return len(d.byPointer) - 1
}

type resolver struct {
	defs  Definitions
	cells map[string]*Ref
}

// Resolve builds the graph for raw. Dangling or unsupported references and
// unknown types are reported as *ResolutionError.
func Resolve(raw *Raw, defs Definitions) (Node, error) {
	r := &resolver{defs: defs, cells: map[string]*Ref{}}
	n, err := r.resolve(raw, "#")
	if err != nil {
		return nil, err
	}
	if err := r.checkCycles(); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *resolver) resolve(raw *Raw, path string) (Node, error) {
	if raw == nil {
		return &Any{}, nil
	}
	if raw.Bool != nil {
		if *raw.Bool {
			return &Any{}, nil
		}
		return &Never{}, nil
	}
	if raw.Ref != "" {
		cell, err := r.ref(raw.Ref, path)
		if err != nil {
			return nil, err
		}
		return cell, nil
	}

	var parts []Node
	if raw.Const != nil {
		var v any
		if err := json.Unmarshal(raw.Const, &v); err != nil {
			return nil, &ResolutionError{Path: path + "/const", Reason: "malformed const", Err: err}
		}
		parts = append(parts, &Enum{Values: []any{v}})
	}
	if raw.Enum != nil {
		parts = append(parts, &Enum{Values: raw.Enum})
	}

	typed, err := r.typed(raw, path)
	if err != nil {
		return nil, err
	}
	parts = append(parts, typed...)

	if len(raw.AnyOf) > 0 {
		of, err := r.list(raw.AnyOf, path+"/anyOf")
		if err != nil {
			return nil, err
		}
		parts = append(parts, &AnyOf{Of: of})
	}
	if len(raw.OneOf) > 0 {
		of, err := r.list(raw.OneOf, path+"/oneOf")
		if err != nil {
			return nil, err
		}
		parts = append(parts, &OneOf{Of: of})
	}
	if len(raw.AllOf) > 0 {
		of, err := r.list(raw.AllOf, path+"/allOf")
		if err != nil {
			return nil, err
		}
		parts = append(parts, &AllOf{Of: of})
	}
	if raw.Not != nil {
		n, err := r.resolve(raw.Not, path+"/not")
		if err != nil {
			return nil, err
		}
		parts = append(parts, &Not{Schema: n})
	}

	switch len(parts) {
	case 0:
		return &Any{}, nil
	case 1:
		return parts[0], nil
	}
	return &AllOf{Of: parts}, nil
}

func (r *resolver) list(raws []*Raw, path string) ([]Node, error) {
	out := make([]Node, len(raws))
	for i, raw := range raws {
		n, err := r.resolve(raw, fmt.Sprintf("%s/%d", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// ref returns the cell for pointer, creating and filling it on first use.
// A pointer met again while its target is still being resolved gets the
// same, not yet filled, cell back.
func (r *resolver) ref(pointer, path string) (*Ref, error) {
	if cell, ok := r.cells[pointer]; ok {
		return cell, nil
	}
	target, ok := r.defs.byPointer[pointer]
	if !ok {
		return nil, &ResolutionError{Path: path, Reason: fmt.Sprintf("$ref %q does not name a definition", pointer)}
	}
	cell := &Ref{Pointer: pointer}
	r.cells[pointer] = cell
	n, err := r.resolve(target, pointer)
	if err != nil {
		return nil, err
	}
	cell.Target = n
	return cell, nil
}

// typed resolves the type keyword, or infers implicit nodes from
// type-specific keywords when it is absent.
func (r *resolver) typed(raw *Raw, path string) ([]Node, error) {
	if len(raw.Type) == 0 {
		var out []Node
		if raw.hasObjectKeywords() {
			n, err := r.object(raw, true, path)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		if raw.hasArrayKeywords() {
			n, err := r.array(raw, true, path)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		if raw.hasNumericKeywords() {
			out = append(out, leaf(raw, "number", true))
		}
		if raw.hasStringKeywords() {
			out = append(out, leaf(raw, "string", true))
		}
		return out, nil
	}

	of := make([]Node, 0, len(raw.Type))
	for _, t := range raw.Type {
		var n Node
		var err error
		switch t {
		case "integer", "number", "string", "boolean", "null":
			n = leaf(raw, t, false)
		case "array":
			n, err = r.array(raw, false, path)
		case "object":
			n, err = r.object(raw, false, path)
		default:
			err = &ResolutionError{Path: path + "/type", Reason: fmt.Sprintf("unknown type %q", t)}
		}
		if err != nil {
			return nil, err
		}
		of = append(of, n)
	}
	if len(of) == 1 {
		return of, nil
	}
	return []Node{&AnyOf{Of: of}}, nil
}

func leaf(raw *Raw, t string, implicit bool) *Leaf {
	l := &Leaf{
		Type:             t,
		Implicit:         implicit,
		Minimum:          raw.Minimum,
		Maximum:          raw.Maximum,
		ExclusiveMinimum: raw.ExclMinimum,
		ExclusiveMaximum: raw.ExclMaximum,
	}
	if raw.Pattern != nil {
		l.Pattern = *raw.Pattern
	}
	if raw.Faker != nil {
		l.Faker = *raw.Faker
	}
	return l
}

func (r *resolver) array(raw *Raw, implicit bool, path string) (*Array, error) {
	a := &Array{
		Implicit: implicit,
		MinItems: raw.MinItems,
		MaxItems: raw.MaxItems,
	}
	if raw.UniqueItems != nil {
		a.UniqueItems = *raw.UniqueItems
	}
	switch {
	case raw.Items == nil:
		a.Items = &Any{}
	case raw.Items.Tuple != nil:
		return nil, &ResolutionError{Path: path + "/items", Reason: "tuple-form items is not supported"}
	default:
		n, err := r.resolve(raw.Items.Schema, path+"/items")
		if err != nil {
			return nil, err
		}
		a.Items = n
	}
	return a, nil
}

func (r *resolver) object(raw *Raw, implicit bool, path string) (*Object, error) {
	o := &Object{Implicit: implicit, Required: raw.Required}
	if raw.Properties != nil {
		for p := raw.Properties.Oldest(); p != nil; p = p.Next() {
			n, err := r.resolve(p.Value, path+"/properties/"+pointerEscaper.Replace(p.Key))
			if err != nil {
				return nil, err
			}
			o.Properties = append(o.Properties, Property{Name: p.Key, Schema: n})
		}
	}
	if raw.Additional != nil {
		n, err := r.resolve(raw.Additional, path+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		o.Additional = n
	}
	if raw.Patterns != nil {
		for p := raw.Patterns.Oldest(); p != nil; p = p.Next() {
			n, err := r.resolve(p.Value, path+"/patternProperties/"+pointerEscaper.Replace(p.Key))
			if err != nil {
				return nil, err
			}
			o.Patterns = append(o.Patterns, PatternProperty{Pattern: p.Key, Schema: n})
		}
	}
	if raw.Depends != nil {
		for p := raw.Depends.Oldest(); p != nil; p = p.Next() {
			d := Dependency{Key: p.Key}
			if p.Value.Schema != nil {
				n, err := r.resolve(p.Value.Schema, path+"/dependencies/"+pointerEscaper.Replace(p.Key))
				if err != nil {
					return nil, err
				}
				d.Schema = n
			} else {
				d.Requires = p.Value.Keys
			}
			o.Depends = append(o.Depends, d)
		}
	}
	return o, nil
}

// checkCycles rejects chains of cells that name each other and nothing
// else. Cycles through any other keyword are left to generation, which
// decides whether they have a way out.
func (r *resolver) checkCycles() error {
	pointers := make([]string, 0, len(r.cells))
	for p := range r.cells {
		pointers = append(pointers, p)
	}
	sort.Strings(pointers)
	for _, p := range pointers {
		cell := r.cells[p]
		seen := map[*Ref]bool{cell: true}
		for next, ok := cell.Target.(*Ref); ok; next, ok = next.Target.(*Ref) {
			if seen[next] {
				return &ResolutionError{Path: p, Reason: "$ref chain refers back to itself"}
			}
			seen[next] = true
		}
	}
	return nil
}
