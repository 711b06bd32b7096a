// Package schema compiles JSON Schema documents (draft-04) and validates
// JSON values against them.
//
// Documents may be written in JSON or YAML. Properties that a schema does not
// mention are accepted, and declared properties are only checked when present
// unless they are also listed as required.
package schema

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSchema = errors.New("invalid schema")

// Schema is a compiled schema document.
type Schema struct {
	compiled *gojsonschema.Schema
}

// Parse compiles a schema from JSON or YAML bytes.
func Parse(b []byte) (*Schema, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidSchema, err)
	}
	return compile(doc)
}

// LoadFile compiles the schema stored at path.
func LoadFile(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// FromValue compiles a schema given as a decoded Go value, e.g. a
// map[string]any literal or a value decoded from a suite file.
func FromValue(v any) (*Schema, error) { return compile(v) }

func compile(doc any) (*Schema, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidSchema)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(stringKeys(doc)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Schema{compiled: s}, nil
}

// stringKeys rewrites the map[any]any nodes that YAML produces for
// non-string keys so the document can be encoded as JSON.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = stringKeys(e)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = stringKeys(e)
		}
		return out
	}
	return v
}

// Violation is one place where a value does not conform.
type Violation struct {
	Path    string
	Message string
}

func (v Violation) String() string { return v.Path + ": " + v.Message }

// Validate returns every violation found in v, ordered by path. An empty
// result means v conforms to s.
func (s *Schema) Validate(v ldvalue.Value) []Violation {
	res, err := s.compiled.Validate(gojsonschema.NewStringLoader(v.JSONString()))
	if err != nil {
		return []Violation{{Path: "$", Message: err.Error()}}
	}
	if res.Valid() {
		return nil
	}
	out := make([]Violation, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		out = append(out, Violation{Path: path(e.Field()), Message: e.Description()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// path turns a gojsonschema field ("(root)", "id", "items.1.name") into
// the $-rooted form used in diagnostics ("$", "$.id", "$.items[1].name").
func path(field string) string {
	if field == "" || field == "(root)" {
		return "$"
	}
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString("." + seg)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
