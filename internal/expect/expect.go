// Package expect compares an executed response against declared
// expectations. Every matcher is a pure function of the expectation and the
// response record.
package expect

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"contractkit/internal/response"
)

// Expectation kinds, as they appear in diagnostics and reports.
const (
	KindStatus   = "status"
	KindJSON     = "json"
	KindJSONLike = "jsonLike"
	KindSchema   = "jsonSchema"
	KindText     = "bodyContains"
	KindHeader   = "header"
	KindContract = "contract"
)

// Expectation is one declared assertion rule attached to a request.
type Expectation interface {
	Kind() string
	Match(rec *response.Record) Result
}

// Result is the outcome of a single expectation. Diff is empty when OK.
type Result struct {
	OK   bool
	Diff string
}

func pass() Result { return Result{OK: true} }

func failf(format string, args ...any) Result {
	return Result{Diff: fmt.Sprintf(format, args...)}
}

// Match evaluates exp against rec.
func Match(exp Expectation, rec *response.Record) Result {
	if exp == nil {
		return failf("nil expectation")
	}
	if rec == nil {
		return failf("%s: no response to evaluate", exp.Kind())
	}
	return exp.Match(rec)
}

// AssertionError reports the first failed expectation of a request.
type AssertionError struct {
	Kind  string
	Index int
	Diff  string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expectation #%d (%s) failed: %s", e.Index+1, e.Kind, e.Diff)
}

// ValueOf converts a Go value into a JSON value. ldvalue.Value and raw JSON
// bytes are taken as-is; anything else goes through encoding/json. Numbers
// that a float64 cannot hold exactly are rejected.
func ValueOf(v any) (ldvalue.Value, error) {
	switch x := v.(type) {
	case ldvalue.Value:
		return x, nil
	case json.RawMessage:
		return parseRaw(x)
	case []byte:
		return parseRaw(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ldvalue.Null(), fmt.Errorf("encode %T as JSON: %w", v, err)
	}
	return parseRaw(b)
}

func parseRaw(b []byte) (ldvalue.Value, error) {
	v, err := response.ParseJSON(b)
	if errors.Is(err, response.ErrInexactNumber) {
		return ldvalue.Null(), err
	}
	if err != nil {
		return ldvalue.Null(), fmt.Errorf("invalid JSON: %s", clip(string(b)))
	}
	return v, nil
}

// clip shortens s for diagnostics without splitting a multi-byte rune.
func clip(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}

func notJSON(kind string, rec *response.Record) Result {
	switch {
	case rec.Truncated:
		return failf("%s: response body was truncated at %d bytes and cannot be parsed as JSON (content-type %q): %s",
			kind, len(rec.Raw), rec.ContentType(), clip(rec.Text()))
	case errors.Is(rec.BodyErr, response.ErrInexactNumber):
		return failf("%s: response body is JSON but cannot be compared exactly (%v): %s", kind, rec.BodyErr, clip(rec.Text()))
	}
	return failf("%s: response body is not JSON (content-type %q): %s", kind, rec.ContentType(), clip(rec.Text()))
}
