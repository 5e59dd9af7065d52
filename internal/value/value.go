// Package value holds the plain JSON data model shared by the generator and
// the hoister: null, bool, numbers, strings, []any and map[string]any, plus
// the Choice marker recording which combinator branch produced a value.
package value

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/google/go-cmp/cmp"
)

type Kind int

const (
	Null Kind = iota
	Boolean
	Number
	String
	Array
	Object
)

// Kinds lists every JSON kind in the order fallbacks try them.
var Kinds = []Kind{Null, Boolean, Number, String, Array, Object}

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// KindOfType maps a JSON Schema type name to its JSON kind; integer folds
// into Number.
func KindOfType(t string) (Kind, bool) {
	switch t {
	case "null":
		return Null, true
	case "boolean":
		return Boolean, true
	case "integer", "number":
		return Number, true
	case "string":
		return String, true
	case "array":
		return Array, true
	case "object":
		return Object, true
	}
	return 0, false
}

// Choice wraps a value drawn from branch Branch of an anyOf or oneOf.
type Choice struct {
	Branch int
	Value  any
}

// Unwrap peels one Choice marker off v.
func Unwrap(v any) (branch int, inner any, ok bool) {
	if c, is := v.(Choice); is {
		return c.Branch, c.Value, true
	}
	return -1, v, false
}

// Unmarked peels every Choice marker at the top of v, leaving nested ones.
func Unmarked(v any) any {
	for {
		c, ok := v.(Choice)
		if !ok {
			return v
		}
		v = c.Value
	}
}

// KindOf classifies v, looking through Choice markers.
func KindOf(v any) (Kind, bool) {
	switch x := Unmarked(v).(type) {
	case nil:
		return Null, true
	case bool:
		return Boolean, true
	case string:
		return String, true
	case []any:
		return Array, true
	case map[string]any:
		return Object, true
	default:
		if _, ok := Float(x); ok {
			return Number, true
		}
	}
	return 0, false
}

// Float converts any Go numeric representation a JSON decoder or the
// generator may produce.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	}
	return 0, false
}

func IsInteger(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// Strip returns a deep copy of v with every Choice marker removed. The
// copy never shares containers with v.
func Strip(v any) any {
	switch x := Unmarked(v).(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Strip(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Strip(e)
		}
		return out
	default:
		return x
	}
}

func normalize(v any) any {
	switch x := Unmarked(v).(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	default:
		if f, ok := Float(x); ok {
			return f
		}
		return x
	}
}

// Equal is JSON structural equality: numbers compare by value regardless
// of their Go representation, markers are ignored.
func Equal(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

// Contains reports whether some element of list is Equal to v.
func Contains(list []any, v any) bool {
	for _, e := range list {
		if Equal(e, v) {
			return true
		}
	}
	return false
}
