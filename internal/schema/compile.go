// Package schema wraps the JSON Schema validator used to check sampled
// values. The sampler itself never consults it.
package schema

import (
	"bytes"
	"encoding/json"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	SchemaFileUrl = "file:///schema.json"
)

// DraftOf picks the draft a document without $schema is read as: draft 4
// when it spells exclusive bounds as booleans, draft 7 otherwise.
func DraftOf(s string) *jsonschema.Draft {
	var doc any
	if json.Unmarshal([]byte(s), &doc) == nil && booleanExclusive(doc) {
		return jsonschema.Draft4
	}
	return jsonschema.Draft7
}

func booleanExclusive(v any) bool {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			if _, ok := e.(bool); ok && (k == "exclusiveMinimum" || k == "exclusiveMaximum") {
				return true
			}
			if booleanExclusive(e) {
				return true
			}
		}
	case []any:
		for _, e := range x {
			if booleanExclusive(e) {
				return true
			}
		}
	}
	return false
}

func CompileString(s string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = DraftOf(s)
	if err := c.AddResource(SchemaFileUrl, strings.NewReader(s)); err != nil {
		return nil, err
	}
	return c.Compile(SchemaFileUrl)
}

// Validate checks v as a consumer of its JSON encoding would see it.
func Validate(sc *jsonschema.Schema, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var doc any
	if err := d.Decode(&doc); err != nil {
		return err
	}
	return sc.Validate(doc)
}
