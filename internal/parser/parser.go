package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"contractkit/internal/ir"
	"contractkit/internal/request"
)

var ErrValidation = errors.New("validation error")

type Parser struct{}

func New() *Parser { return &Parser{} }

// ParseFile reads and parses a suite file.
func (p *Parser) ParseFile(path string) (*ir.TestSuite, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	return p.ParseBytes(b)
}

// ParseBytes parses YAML (or JSON) into IR and validates it.
func (p *Parser) ParseBytes(b []byte) (*ir.TestSuite, error) {
	var suite ir.TestSuite

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true) // fail on unknown fields

	if err := dec.Decode(&suite); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := validateSuite(&suite); err != nil {
		return nil, err
	}

	// Normalize HTTP methods
	for i := range suite.Cases {
		m := suite.Cases[i].Request.Method
		suite.Cases[i].Request.Method = strings.ToUpper(strings.TrimSpace(m))
	}
	return &suite, nil
}

// --- validation helpers ---

func validateSuite(s *ir.TestSuite) error {
	if s.Name == "" {
		return wrapValidation("suite.name must not be empty")
	}
	if s.TimeoutMs < 0 {
		return wrapValidation("suite.timeoutMs must not be negative")
	}
	if len(s.Cases) == 0 {
		return wrapValidation("suite.cases must not be empty")
	}
	seen := map[string]int{}
	for i := range s.Cases {
		if err := validateCase(&s.Cases[i], i); err != nil {
			return err
		}
		if j, dup := seen[s.Cases[i].Name]; dup {
			return wrapValidation(fmt.Sprintf("case[%d].name %q duplicates case[%d]", i, s.Cases[i].Name, j))
		}
		seen[s.Cases[i].Name] = i
	}
	return nil
}

func validateCase(c *ir.Case, idx int) error {
	if c.Name == "" {
		return wrapValidation(fmt.Sprintf("case[%d].name must not be empty", idx))
	}
	if err := validateRequest(&c.Request, idx); err != nil {
		return err
	}
	for j := range c.Expect {
		switch kinds := c.Expect[j].Kinds(); len(kinds) {
		case 1:
		case 0:
			return wrapValidation(fmt.Sprintf("case[%d].expect[%d] sets no expectation", idx, j))
		default:
			return wrapValidation(fmt.Sprintf("case[%d].expect[%d] sets %s; use one entry per expectation",
				idx, j, strings.Join(kinds, ", ")))
		}
		if h := c.Expect[j].Header; h != nil && h.Name == "" {
			return wrapValidation(fmt.Sprintf("case[%d].expect[%d].header.name must not be empty", idx, j))
		}
	}
	for name, path := range c.Capture {
		if name == "" || path == "" {
			return wrapValidation(fmt.Sprintf("case[%d].capture entries need a variable name and a path", idx))
		}
	}
	return nil
}

func validateRequest(r *ir.Request, idx int) error {
	if r.Method == "" {
		return wrapValidation(fmt.Sprintf("case[%d].request.method must not be empty", idx))
	}
	if _, err := request.ParseMethod(r.Method); err != nil {
		return wrapValidation(fmt.Sprintf("case[%d].request.method: %v", idx, err))
	}
	if r.URL == "" {
		return wrapValidation(fmt.Sprintf("case[%d].request.url must not be empty", idx))
	}
	if r.JSON != nil && r.Text != nil {
		return wrapValidation(fmt.Sprintf("case[%d].request sets both json and text", idx))
	}
	if r.TimeoutMs < 0 {
		return wrapValidation(fmt.Sprintf("case[%d].request.timeoutMs must not be negative", idx))
	}
	return nil
}

func wrapValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
