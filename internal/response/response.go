package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Record is the normalized result of one executed request. Expectations for a
// request are all evaluated against the same Record.
type Record struct {
	// Request side, kept so diagnostics and contract checks know what produced
	// the response.
	Method string
	URL    string

	Status  int
	Header  http.Header
	Raw     []byte
	Elapsed time.Duration

	// Body is the parsed JSON body. It is ldvalue.Null() when BodyParsed is false.
	Body       ldvalue.Value
	BodyParsed bool
	// BodyErr says why a non-empty Raw was not parsed.
	BodyErr error
	// Truncated is set when Raw holds only the first part of a larger body.
	Truncated bool
}

// ErrInexactNumber is returned for JSON numbers that would change value when
// held as a float64: integers past 2^53 that are not exactly representable,
// and anything outside the float64 range.
var ErrInexactNumber = errors.New("number cannot be represented exactly")

// New builds a Record and parses raw as JSON when possible. Invalid or empty
// JSON is not an error: the raw text is kept and BodyParsed is false.
func New(method, url string, status int, header http.Header, raw []byte, elapsed time.Duration) *Record {
	rec := &Record{
		Method:  method,
		URL:     url,
		Status:  status,
		Header:  header.Clone(),
		Raw:     raw,
		Elapsed: elapsed,
		Body:    ldvalue.Null(),
	}
	if rec.Header == nil {
		rec.Header = http.Header{}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return rec
	}
	body, err := ParseJSON(trimmed)
	if err != nil {
		rec.BodyErr = err
		return rec
	}
	rec.Body = body
	rec.BodyParsed = true
	return rec
}

// MarkTruncated flags the record as holding a cut-off body. A partial body is
// never treated as parsed JSON, even when the prefix happens to be valid.
func (r *Record) MarkTruncated(limit int64) {
	r.Truncated = true
	if r.BodyParsed || r.BodyErr == nil {
		r.BodyErr = fmt.Errorf("body truncated at %d bytes", limit)
	}
	r.Body = ldvalue.Null()
	r.BodyParsed = false
}

// ParseJSON decodes a single JSON document. Unlike ldvalue.Parse it fails
// instead of silently rounding or overflowing numbers.
func ParseJSON(b []byte) (ldvalue.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ldvalue.Null(), err
	}
	if _, err := dec.Token(); err != io.EOF {
		return ldvalue.Null(), errors.New("unexpected data after top-level value")
	}
	return toValue(v)
}

func toValue(v any) (ldvalue.Value, error) {
	switch x := v.(type) {
	case nil:
		return ldvalue.Null(), nil
	case bool:
		return ldvalue.Bool(x), nil
	case string:
		return ldvalue.String(x), nil
	case json.Number:
		f, err := number(x)
		if err != nil {
			return ldvalue.Null(), err
		}
		return ldvalue.Float64(f), nil
	case []any:
		arr := ldvalue.ArrayBuildWithCapacity(len(x))
		for _, e := range x {
			ev, err := toValue(e)
			if err != nil {
				return ldvalue.Null(), err
			}
			arr.Add(ev)
		}
		return arr.Build(), nil
	case map[string]any:
		obj := ldvalue.ObjectBuildWithCapacity(len(x))
		for k, e := range x {
			ev, err := toValue(e)
			if err != nil {
				return ldvalue.Null(), fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, ev)
		}
		return obj.Build(), nil
	}
	return ldvalue.Null(), fmt.Errorf("unexpected JSON value %T", v)
}

func number(n json.Number) (float64, error) {
	s := string(n)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	// Integers with up to 15 digits always fit in a float64 mantissa.
	if len(strings.TrimPrefix(s, "-")) <= 15 || strings.ContainsAny(s, ".eE") {
		return f, nil
	}
	want, _ := new(big.Int).SetString(s, 10)
	got, _ := big.NewFloat(f).Int(nil)
	if want == nil || want.Cmp(got) != 0 {
		return 0, fmt.Errorf("%w: %s", ErrInexactNumber, s)
	}
	return f, nil
}

// Text returns the body as received.
func (r *Record) Text() string { return string(r.Raw) }

// ContentType returns the response Content-Type header, if any.
func (r *Record) ContentType() string { return r.Header.Get("Content-Type") }
