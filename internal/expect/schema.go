package expect

import (
	"strings"

	"contractkit/internal/response"
	"contractkit/internal/schema"
)

type schemaMatches struct{ s *schema.Schema }

// JSONSchemaMatches validates the body's shape against s.
func JSONSchemaMatches(s *schema.Schema) Expectation { return schemaMatches{s: s} }

func (schemaMatches) Kind() string { return KindSchema }

func (e schemaMatches) Match(rec *response.Record) Result {
	if !rec.BodyParsed {
		return notJSON(KindSchema, rec)
	}
	violations := e.s.Validate(rec.Body)
	if len(violations) == 0 {
		return pass()
	}
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = "  - " + v.String()
	}
	return failf("jsonSchema: %d violation(s):\n%s\nactual: %s",
		len(violations), strings.Join(lines, "\n"), clip(rec.Body.JSONString()))
}
