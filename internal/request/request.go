// Package request builds immutable request specs. Building never performs
// network I/O.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contractkit/internal/expect"
	"contractkit/internal/schema"
)

// DefaultTimeout applies when a spec does not set its own timeout.
const DefaultTimeout = 10 * time.Second

type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// ParseMethod accepts any letter case.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, nil
	}
	return "", fmt.Errorf("unsupported method %q", s)
}

// ConfigurationError reports a spec that cannot be executed.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid request spec: " + e.Field + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Spec is a fully built request. It has no setters and every accessor
// returns a copy, so a Spec can be handed to an executor without aliasing.
type Spec struct {
	method       Method
	url          string
	header       map[string]string
	body         []byte
	timeout      time.Duration
	expectations []expect.Expectation
}

func (s Spec) Method() Method { return s.method }
func (s Spec) URL() string    { return s.url }

// Timeout is the per-request budget, DefaultTimeout unless overridden.
func (s Spec) Timeout() time.Duration { return s.timeout }

func (s Spec) Headers() map[string]string {
	out := make(map[string]string, len(s.header))
	for k, v := range s.header {
		out[k] = v
	}
	return out
}

func (s Spec) HasBody() bool { return s.body != nil }

// Body returns the encoded request body, or nil.
func (s Spec) Body() []byte {
	if s.body == nil {
		return nil
	}
	return append([]byte(nil), s.body...)
}

// Expectations returns the declared expectations in declaration order.
func (s Spec) Expectations() []expect.Expectation {
	return append([]expect.Expectation(nil), s.expectations...)
}

// Builder accumulates a spec. Every method returns a new Builder, so a
// partially configured Builder can be reused as a template.
type Builder struct {
	method       string
	url          string
	baseURL      string
	header       map[string]string
	body         any
	hasBody      bool
	rawBody      bool
	timeout      time.Duration
	expectations []expect.Expectation
	errs         []error
}

func New() Builder { return Builder{} }

func (b Builder) clone() Builder {
	out := b
	out.header = make(map[string]string, len(b.header))
	for k, v := range b.header {
		out.header[k] = v
	}
	out.expectations = append([]expect.Expectation(nil), b.expectations...)
	out.errs = append([]error(nil), b.errs...)
	return out
}

func (b Builder) WithMethod(m Method) Builder {
	b = b.clone()
	b.method = string(m)
	return b
}

func (b Builder) WithURL(u string) Builder {
	b = b.clone()
	b.url = u
	return b
}

// WithBaseURL sets the URL that relative request URLs resolve against.
func (b Builder) WithBaseURL(u string) Builder {
	b = b.clone()
	b.baseURL = u
	return b
}

func (b Builder) Get(u string) Builder    { return b.WithMethod(MethodGet).WithURL(u) }
func (b Builder) Post(u string) Builder   { return b.WithMethod(MethodPost).WithURL(u) }
func (b Builder) Put(u string) Builder    { return b.WithMethod(MethodPut).WithURL(u) }
func (b Builder) Patch(u string) Builder  { return b.WithMethod(MethodPatch).WithURL(u) }
func (b Builder) Delete(u string) Builder { return b.WithMethod(MethodDelete).WithURL(u) }

// WithHeader sets a header; the last write for a name wins.
func (b Builder) WithHeader(key, value string) Builder {
	b = b.clone()
	b.header[http.CanonicalHeaderKey(key)] = value
	return b
}

// WithJSON sets a JSON body and the matching Content-Type.
func (b Builder) WithJSON(v any) Builder {
	b = b.WithHeader("Content-Type", "application/json")
	b.body, b.hasBody, b.rawBody = v, true, false
	return b
}

// WithText sets a raw body. Content-Type is left to the caller.
func (b Builder) WithText(s string) Builder {
	b = b.clone()
	b.body, b.hasBody, b.rawBody = s, true, true
	return b
}

func (b Builder) WithTimeout(d time.Duration) Builder {
	b = b.clone()
	b.timeout = d
	return b
}

// Expect appends expectations; they are evaluated in declaration order.
func (b Builder) Expect(exps ...expect.Expectation) Builder {
	b = b.clone()
	b.expectations = append(b.expectations, exps...)
	return b
}

func (b Builder) ExpectStatus(code int) Builder { return b.Expect(expect.StatusEquals(code)) }

func (b Builder) ExpectBodyContains(s string) Builder {
	return b.Expect(expect.BodyContainsText(s))
}

func (b Builder) ExpectHeader(name, value string) Builder {
	return b.Expect(expect.HeaderEquals(name, value))
}

func (b Builder) ExpectJSON(v any) Builder {
	val, err := expect.ValueOf(v)
	if err != nil {
		return b.fail(&ConfigurationError{Field: "expect.json", Reason: "cannot encode expected value", Err: err})
	}
	return b.Expect(expect.JSONEquals(val))
}

func (b Builder) ExpectJSONLike(v any) Builder {
	val, err := expect.ValueOf(v)
	if err != nil {
		return b.fail(&ConfigurationError{Field: "expect.jsonLike", Reason: "cannot encode expected value", Err: err})
	}
	return b.Expect(expect.JSONContains(val))
}

// ExpectJSONSchema accepts a compiled *schema.Schema or any value that
// encodes to a schema document.
func (b Builder) ExpectJSONSchema(v any) Builder {
	s, ok := v.(*schema.Schema)
	if !ok {
		var err error
		if s, err = schema.FromValue(v); err != nil {
			return b.fail(&ConfigurationError{Field: "expect.jsonSchema", Reason: "invalid schema", Err: err})
		}
	}
	return b.Expect(expect.JSONSchemaMatches(s))
}

func (b Builder) fail(err error) Builder {
	b = b.clone()
	b.errs = append(b.errs, err)
	return b
}

// Build validates the accumulated values and returns an immutable Spec.
func (b Builder) Build() (Spec, error) {
	if len(b.errs) > 0 {
		return Spec{}, errors.Join(b.errs...)
	}
	if b.method == "" {
		return Spec{}, &ConfigurationError{Field: "method", Reason: "not set"}
	}
	m, err := ParseMethod(b.method)
	if err != nil {
		return Spec{}, &ConfigurationError{Field: "method", Reason: "unsupported", Err: err}
	}
	if b.url == "" {
		return Spec{}, &ConfigurationError{Field: "url", Reason: "not set"}
	}
	u, err := resolve(b.baseURL, b.url)
	if err != nil {
		return Spec{}, &ConfigurationError{Field: "url", Reason: "cannot resolve " + b.url, Err: err}
	}
	if b.timeout < 0 {
		return Spec{}, &ConfigurationError{Field: "timeout", Reason: fmt.Sprintf("negative duration %s", b.timeout)}
	}

	spec := Spec{
		method:       m,
		url:          u,
		header:       b.clone().header,
		timeout:      b.timeout,
		expectations: append([]expect.Expectation(nil), b.expectations...),
	}
	if spec.timeout == 0 {
		spec.timeout = DefaultTimeout
	}
	if b.hasBody {
		if b.rawBody {
			spec.body = []byte(b.body.(string))
		} else {
			body, err := encodeJSON(b.body)
			if err != nil {
				return Spec{}, &ConfigurationError{Field: "body", Reason: "cannot encode JSON", Err: err}
			}
			spec.body = body
		}
	}
	return spec, nil
}

func encodeJSON(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		v = []byte(raw)
	}
	if b, ok := v.([]byte); ok {
		if !json.Valid(b) {
			return nil, errors.New("body bytes are not valid JSON")
		}
		return append([]byte(nil), b...), nil
	}
	return json.Marshal(v)
}

func resolve(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if !r.IsAbs() {
		if base == "" {
			return "", errors.New("relative URL without base URL")
		}
		bu, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("base url: %w", err)
		}
		if !bu.IsAbs() {
			return "", fmt.Errorf("base url %q is not absolute", base)
		}
		// Keep the base path: "http://h/api" + "company" -> "http://h/api/company".
		if !strings.HasSuffix(bu.Path, "/") {
			bu.Path += "/"
			if bu.RawPath != "" {
				bu.RawPath += "/"
			}
		}
		// RawPath keeps escapes such as %2F that Path has already decoded.
		r = bu.ResolveReference(&url.URL{
			Path:     strings.TrimPrefix(r.Path, "/"),
			RawPath:  strings.TrimPrefix(r.RawPath, "/"),
			RawQuery: r.RawQuery,
		})
	}
	if r.Scheme != "http" && r.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", r.Scheme)
	}
	if r.Host == "" {
		return "", errors.New("missing host")
	}
	return r.String(), nil
}
