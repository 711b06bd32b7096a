package parser_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"contractkit/internal/ir"
	"contractkit/internal/parser"
)

const validYAML = `
name: Company API
baseUrl: ${BASE_URL|http://localhost:8081}
timeoutMs: 30000
cases:
  - name: Create company with invalid CNPJ
    tags: [company, negative]
    request:
      method: post
      url: /company
      timeoutMs: 10000
      json:
        name: "Test Company"
        cnpj: "12345678"
    expect:
      - status: 400
      - bodyContains: "CNPJ deve ter 14 dígitos"
  - name: Delete company with invalid id
    request: { method: DELETE, url: /company/abc }
    expect:
      - status: 400
      - jsonLike:
          errors:
            - { type: field, value: abc, path: id, location: params }
      - header: { name: Content-Type, value: application/json; charset=utf-8 }
    capture:
      firstError: errors.0.msg
`

const missingNameYAML = `
cases: []
`

const unknownFieldYAML = `
name: Foo
cases:
  - name: Bar
    request:
      method: POST
      url: http://localhost:8081
    expect: []
    notARealField: true
`

func TestParse_ValidSuite(t *testing.T) {
	p := parser.New()

	suite, err := p.ParseBytes([]byte(validYAML))
	if err != nil {
		t.Fatalf("ParseBytes error: %v", err)
	}
	if suite == nil {
		t.Fatal("suite is nil")
	}
	if diff := cmp.Diff("Company API", suite.Name); diff != "" {
		t.Fatalf("name mismatch (-want +got):\n%s", diff)
	}
	if suite.BaseURL != "${BASE_URL|http://localhost:8081}" {
		t.Fatalf("baseUrl = %s; interpolation belongs to the runner", suite.BaseURL)
	}
	if len(suite.Cases) != 2 {
		t.Fatalf("cases len = %d, want 2", len(suite.Cases))
	}

	c := suite.Cases[0]
	if c.Request.Method != "POST" {
		t.Fatalf("method = %s, want POST", c.Request.Method)
	}
	if c.Request.TimeoutMs != 10000 {
		t.Fatalf("timeoutMs = %d, want 10000", c.Request.TimeoutMs)
	}
	if got, want := len(c.Expect), 2; got != want {
		t.Fatalf("expect len = %d, want %d", got, want)
	}
	if c.Expect[0].Kind() != ir.ExpectStatus || *c.Expect[0].Status != 400 {
		t.Fatalf("expect[0] = %+v, want status 400", c.Expect[0])
	}
	if *c.Expect[1].BodyContains != "CNPJ deve ter 14 dígitos" {
		t.Fatalf("bodyContains = %q", *c.Expect[1].BodyContains)
	}

	del := suite.Cases[1]
	var kinds []string
	for _, e := range del.Expect {
		kinds = append(kinds, e.Kind())
	}
	if diff := cmp.Diff([]string{ir.ExpectStatus, ir.ExpectJSONLike, ir.ExpectHeader}, kinds); diff != "" {
		t.Fatalf("expect kinds (-want +got):\n%s", diff)
	}
	want := map[string]any{
		"errors": []any{map[string]any{"type": "field", "value": "abc", "path": "id", "location": "params"}},
	}
	if diff := cmp.Diff(want, del.Expect[1].JSONLike); diff != "" {
		t.Fatalf("jsonLike (-want +got):\n%s", diff)
	}
	if del.Capture["firstError"] != "errors.0.msg" {
		t.Fatalf("capture = %v", del.Capture)
	}
}

func TestParse_Validation_MissingName(t *testing.T) {
	p := parser.New()

	_, err := p.ParseBytes([]byte(missingNameYAML))
	if err == nil {
		t.Fatal("expected error for missing suite name, got nil")
	}
	if !errors.Is(err, parser.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParse_KnownFieldsEnforced(t *testing.T) {
	p := parser.New()

	_, err := p.ParseBytes([]byte(unknownFieldYAML))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"no cases": `name: x
cases: []`,
		"bad method": `name: x
cases:
  - name: a
    request: {method: TRACE, url: /}`,
		"missing url": `name: x
cases:
  - name: a
    request: {method: GET}`,
		"two kinds in one entry": `name: x
cases:
  - name: a
    request: {method: GET, url: /}
    expect:
      - {status: 200, bodyContains: ok}`,
		"empty entry": `name: x
cases:
  - name: a
    request: {method: GET, url: /}
    expect:
      - {}`,
		"json and text": `name: x
cases:
  - name: a
    request: {method: POST, url: /, json: {a: 1}, text: raw}`,
		"duplicate names": `name: x
cases:
  - name: a
    request: {method: GET, url: /}
  - name: a
    request: {method: GET, url: /x}`,
		"negative timeout": `name: x
cases:
  - name: a
    request: {method: GET, url: /, timeoutMs: -1}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parser.New().ParseBytes([]byte(doc))
			if !errors.Is(err, parser.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestParse_JSONInput(t *testing.T) {
	doc := `{"name":"x","cases":[{"name":"a","request":{"method":"get","url":"/company/1"},"expect":[{"status":404}]}]}`
	suite, err := parser.New().ParseBytes([]byte(doc))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if suite.Cases[0].Request.Method != "GET" || *suite.Cases[0].Expect[0].Status != 404 {
		t.Fatalf("unexpected case %+v", suite.Cases[0])
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := parser.New().ParseFile(path); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	_, err := parser.New().ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read suite") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestParse_BundledSuite(t *testing.T) {
	suite, err := parser.New().ParseFile(filepath.Join("..", "..", "testdata", "company.yaml"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(suite.Cases) == 0 {
		t.Fatal("bundled suite has no cases")
	}
}
