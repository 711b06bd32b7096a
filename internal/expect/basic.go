package expect

import (
	"net/http"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"contractkit/internal/response"
)

type statusEquals struct{ code int }

// StatusEquals requires the exact status code.
func StatusEquals(code int) Expectation { return statusEquals{code: code} }

func (statusEquals) Kind() string { return KindStatus }

func (e statusEquals) Match(rec *response.Record) Result {
	if rec.Status != e.code {
		return failf("status: expected %d (%s), got %d (%s); body: %s",
			e.code, http.StatusText(e.code), rec.Status, http.StatusText(rec.Status), clip(rec.Text()))
	}
	return pass()
}

type bodyContains struct{ text string }

// BodyContainsText requires a case-sensitive substring of the body. For JSON
// bodies the decoded string values are searched as well, so escaped
// characters in the wire form still match.
func BodyContainsText(s string) Expectation { return bodyContains{text: s} }

func (bodyContains) Kind() string { return KindText }

func (e bodyContains) Match(rec *response.Record) Result {
	if strings.Contains(rec.Text(), e.text) {
		return pass()
	}
	if rec.BodyParsed && anyStringContains(rec.Body, e.text) {
		return pass()
	}
	return failf("bodyContains: expected body to contain %q, got: %s", e.text, clip(rec.Text()))
}

func anyStringContains(v ldvalue.Value, s string) bool {
	switch v.Type() {
	case ldvalue.StringType:
		return strings.Contains(v.StringValue(), s)
	case ldvalue.ArrayType:
		for i := 0; i < v.Count(); i++ {
			if anyStringContains(v.GetByIndex(i), s) {
				return true
			}
		}
	case ldvalue.ObjectType:
		for _, k := range v.Keys() {
			if strings.Contains(k, s) || anyStringContains(v.GetByKey(k), s) {
				return true
			}
		}
	}
	return false
}

type headerEquals struct{ name, value string }

// HeaderEquals requires a response header with exactly the given value. The
// header name is case-insensitive.
func HeaderEquals(name, value string) Expectation { return headerEquals{name: name, value: value} }

func (headerEquals) Kind() string { return KindHeader }

func (e headerEquals) Match(rec *response.Record) Result {
	values := rec.Header.Values(e.name)
	for _, v := range values {
		if v == e.value {
			return pass()
		}
	}
	if len(values) == 0 {
		return failf("header %s: expected %q, header missing", http.CanonicalHeaderKey(e.name), e.value)
	}
	return failf("header %s: expected %q, got %q", http.CanonicalHeaderKey(e.name), e.value, strings.Join(values, ", "))
}
