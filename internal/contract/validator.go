package contract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"contractkit/internal/response"
)

// Operation identifies a templated operation of the document.
type Operation struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

func (o Operation) String() string { return o.Method + " " + o.Path }

type Validator struct {
	doc    *openapi3.T
	router routers.Router

	mu      sync.Mutex
	covered map[Operation]bool
}

func LoadFromFile(path string) (*Validator, error) {
	loader := &openapi3.Loader{IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return build(doc)
}

func LoadFromBytes(b []byte) (*Validator, error) {
	loader := &openapi3.Loader{IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromData(b)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return build(doc)
}

func build(doc *openapi3.T) (*Validator, error) {
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate spec: %w", err)
	}
	r, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	return &Validator{doc: doc, router: r, covered: map[Operation]bool{}}, nil
}

// ValidateResponse checks rec against the operation its request resolves to.
// The resolved operation is returned (and counted as covered) even when the
// response violates it.
func (v *Validator) ValidateResponse(ctx context.Context, rec *response.Record) (Operation, error) {
	u, err := url.Parse(rec.URL)
	if err != nil {
		return Operation{}, fmt.Errorf("parse url: %w", err)
	}
	req := &http.Request{
		Method: rec.Method,
		URL:    u,
		Header: http.Header{},
	}

	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return Operation{}, fmt.Errorf("route not found for %s %s: %w", rec.Method, u.Path, err)
	}
	op := Operation{Method: strings.ToUpper(route.Method), Path: route.Path}
	v.markCovered(op)

	rvi := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options:    &openapi3filter.Options{},
	}
	rsp := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: rvi,
		Status:                 rec.Status,
		Header:                 rec.Header,
		Body:                   io.NopCloser(bytes.NewReader(rec.Raw)),
		Options:                &openapi3filter.Options{},
	}
	if err := openapi3filter.ValidateResponse(ctx, rsp); err != nil {
		return op, err
	}
	return op, nil
}

func (v *Validator) markCovered(op Operation) {
	v.mu.Lock()
	v.covered[op] = true
	v.mu.Unlock()
}

// Covered returns the operations exercised so far, sorted by path then method.
func (v *Validator) Covered() []Operation {
	v.mu.Lock()
	out := make([]Operation, 0, len(v.covered))
	for op := range v.covered {
		out = append(out, op)
	}
	v.mu.Unlock()
	sortOps(out)
	return out
}

// Operations lists every operation declared by the document.
func (v *Validator) Operations() []Operation {
	var out []Operation
	if v.doc == nil || v.doc.Paths == nil {
		return out
	}
	for p, pi := range v.doc.Paths.Map() {
		if pi == nil {
			continue
		}
		for method := range pi.Operations() {
			out = append(out, Operation{Method: strings.ToUpper(method), Path: p})
		}
	}
	sortOps(out)
	return out
}

type CoverageReport struct {
	Total     int      `json:"total"`
	Covered   int      `json:"covered"`
	Percent   float64  `json:"percent"`
	Exercised []string `json:"covered_set"`
	Missing   []string `json:"uncovered_set"`
}

// Coverage compares the declared operations with the ones exercised so far.
func (v *Validator) Coverage() CoverageReport {
	seen := map[Operation]bool{}
	for _, op := range v.Covered() {
		seen[op] = true
	}
	rep := CoverageReport{Exercised: []string{}, Missing: []string{}}
	for _, op := range v.Operations() {
		rep.Total++
		if seen[op] {
			rep.Covered++
			rep.Exercised = append(rep.Exercised, op.String())
		} else {
			rep.Missing = append(rep.Missing, op.String())
		}
	}
	rep.Percent = pct(rep.Covered, rep.Total)
	return rep
}

func pct(n, d int) float64 {
	if d == 0 {
		return 100.0
	}
	return float64(n) * 100.0 / float64(d)
}

func sortOps(ops []Operation) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path == ops[j].Path {
			return ops[i].Method < ops[j].Method
		}
		return ops[i].Path < ops[j].Path
	})
}
