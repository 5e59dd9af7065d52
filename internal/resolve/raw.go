package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Raw is a JSON Schema document as written. Keyword maps keep their
// declaration order.
type Raw struct {
	// Bool is set for the boolean schemas true and false.
	Bool *bool `json:"-"`

	Ref         string                                    `json:"$ref,omitempty"`
	Definitions *orderedmap.OrderedMap[string, *Raw]      `json:"definitions,omitempty"`
	Defs        *orderedmap.OrderedMap[string, *Raw]      `json:"$defs,omitempty"`
	Type        TypeList                                  `json:"type,omitempty"`
	Enum        []any                                     `json:"enum,omitempty"`
	Const       json.RawMessage                           `json:"const,omitempty"`
	Minimum     *float64                                  `json:"minimum,omitempty"`
	Maximum     *float64                                  `json:"maximum,omitempty"`
	ExclMinimum any                                       `json:"exclusiveMinimum,omitempty"`
	ExclMaximum any                                       `json:"exclusiveMaximum,omitempty"`
	Pattern     *string                                   `json:"pattern,omitempty"`
	Faker       *string                                   `json:"faker,omitempty"`
	Items       *Items                                    `json:"items,omitempty"`
	MinItems    *int                                      `json:"minItems,omitempty"`
	MaxItems    *int                                      `json:"maxItems,omitempty"`
	UniqueItems *bool                                     `json:"uniqueItems,omitempty"`
	Properties  *orderedmap.OrderedMap[string, *Raw]      `json:"properties,omitempty"`
	Required    []string                                  `json:"required,omitempty"`
	Additional  *Raw                                      `json:"additionalProperties,omitempty"`
	Patterns    *orderedmap.OrderedMap[string, *Raw]      `json:"patternProperties,omitempty"`
	Depends     *orderedmap.OrderedMap[string, Dependent] `json:"dependencies,omitempty"`
	AnyOf       []*Raw                                    `json:"anyOf,omitempty"`
	OneOf       []*Raw                                    `json:"oneOf,omitempty"`
	AllOf       []*Raw                                    `json:"allOf,omitempty"`
	Not         *Raw                                      `json:"not,omitempty"`
}

func (r *Raw) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		t := true
		*r = Raw{Bool: &t}
		return nil
	case "false":
		f := false
		*r = Raw{Bool: &f}
		return nil
	}
	type plain Raw
	return json.Unmarshal(data, (*plain)(r))
}

// TypeList is the "type" keyword, written either as one name or a list.
type TypeList []string

func (t *TypeList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = TypeList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("type must be a string or a list of strings: %w", err)
	}
	*t = many
	return nil
}

// Items is the items keyword. Only the single-schema form is supported;
// the tuple form is kept so resolution can reject it explicitly.
type Items struct {
	Schema *Raw
	Tuple  []*Raw
}

func (i *Items) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return json.Unmarshal(data, &i.Tuple)
	}
	i.Schema = &Raw{}
	return json.Unmarshal(data, i.Schema)
}

// Dependent is one value of the dependencies keyword: a list of property
// names or a schema.
type Dependent struct {
	Keys   []string
	Schema *Raw
}

func (d *Dependent) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		d.Keys = []string{}
		return json.Unmarshal(data, &d.Keys)
	}
	d.Schema = &Raw{}
	return json.Unmarshal(data, d.Schema)
}

// Parse decodes a schema document.
func Parse(data []byte) (*Raw, error) {
	var r Raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &ResolutionError{Path: "#", Reason: "malformed schema document", Err: err}
	}
	return &r, nil
}

func (r *Raw) hasObjectKeywords() bool {
	return r.Properties != nil || r.Required != nil || r.Additional != nil ||
		r.Patterns != nil || r.Depends != nil
}

func (r *Raw) hasArrayKeywords() bool {
	return r.Items != nil || r.MinItems != nil || r.MaxItems != nil || r.UniqueItems != nil
}

func (r *Raw) hasNumericKeywords() bool {
	return r.Minimum != nil || r.Maximum != nil || r.ExclMinimum != nil || r.ExclMaximum != nil
}

func (r *Raw) hasStringKeywords() bool {
	return r.Pattern != nil || r.Faker != nil
}
