// Package runner executes a parsed suite: it turns each case into a request
// builder and drives it through the assertion pipeline, serially or with a
// bounded worker pool.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"contractkit/internal/contract"
	"contractkit/internal/expect"
	"contractkit/internal/ir"
	"contractkit/internal/pipeline"
	"contractkit/internal/request"
	"contractkit/internal/schema"
	"contractkit/internal/vars"
)

// ErrNoCases is returned when tag filtering leaves nothing to run.
var ErrNoCases = errors.New("no cases left after tag filtering")

type SuiteResult struct {
	// Passed is false when any case failed or was not run.
	Passed bool
	// Results holds one entry per executed case, in declaration order.
	Results []pipeline.Result
	// NotRun lists cases skipped by fail-fast or cancellation.
	NotRun     []string
	DurationMs float64
}

type Runner struct {
	pipe   *pipeline.Pipeline
	logger *slog.Logger

	baseVars map[string]string
	baseURL  string
	timeout  time.Duration
	suiteDir string
	contract *contract.Validator

	parallel    int
	failFast    bool
	includeTags []string
	excludeTags []string
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option          { return func(r *Runner) { r.logger = l } }
func WithVars(m map[string]string) Option       { return func(r *Runner) { r.baseVars = clone(m) } }
func WithBaseURL(u string) Option               { return func(r *Runner) { r.baseURL = u } }
func WithTimeout(d time.Duration) Option        { return func(r *Runner) { r.timeout = d } }
func WithSuiteDir(dir string) Option            { return func(r *Runner) { r.suiteDir = dir } }
func WithContract(v *contract.Validator) Option { return func(r *Runner) { r.contract = v } }
func WithFailFast(b bool) Option                { return func(r *Runner) { r.failFast = b } }
func WithTags(include, exclude []string) Option { return func(r *Runner) { r.includeTags, r.excludeTags = include, exclude } }
func WithParallel(n int) Option                 { return func(r *Runner) { r.parallel = max(n, 1) } }

// New returns a runner driving cases through a pipeline built on exec and
// rec. rec may be nil.
func New(exec pipeline.Executor, rec pipeline.Recorder, opts ...Option) *Runner {
	r := &Runner{logger: slog.Default(), parallel: 1}
	for _, o := range opts {
		o(r)
	}
	r.pipe = pipeline.New(exec, rec, pipeline.WithLogger(r.logger))
	return r
}

func clone(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RunSuite runs every selected case. Case failures never abort the run;
// cancelling ctx stops handing out new cases but lets in-flight requests
// finish within their own timeouts.
func (r *Runner) RunSuite(ctx context.Context, suite *ir.TestSuite) (*SuiteResult, error) {
	if suite == nil {
		return nil, errors.New("nil suite")
	}
	cases := FilterByTags(suite.Cases, r.includeTags, r.excludeTags)
	if len(cases) == 0 {
		return nil, ErrNoCases
	}

	startSuite := time.Now()
	shared := vars.NewSet(r.baseVars)
	res := &SuiteResult{Passed: true}
	slots := make([]*pipeline.Result, len(cases))

	parallel := r.parallel
	if r.failFast || parallel < 1 {
		parallel = 1
	}
	r.logger.Info("suite started", "suite", suite.Name, "cases", len(cases), "parallel", parallel)

	if parallel == 1 {
		for i, c := range cases {
			if ctx.Err() != nil {
				break
			}
			cr := r.runCase(ctx, suite, c, shared)
			slots[i] = &cr
			if r.failFast && !cr.Passed() {
				break
			}
		}
	} else {
		type job struct {
			idx int
			c   ir.Case
		}
		type result struct {
			idx int
			res pipeline.Result
		}

		jobs := make(chan job)
		results := make(chan result)

		for w := 0; w < parallel; w++ {
			go func() {
				for j := range jobs {
					results <- result{idx: j.idx, res: r.runCase(ctx, suite, j.c, shared)}
				}
			}()
		}
		sent := make(chan int, 1)
		go func() {
			n := 0
		feed:
			for i, c := range cases {
				select {
				case <-ctx.Done():
					break feed
				case jobs <- job{idx: i, c: c}:
					n++
				}
			}
			close(jobs)
			sent <- n
		}()

		pending, total := 0, -1
		for total < 0 || pending < total {
			select {
			case rx := <-results:
				slots[rx.idx] = &rx.res
				pending++
			case n := <-sent:
				total = n
			}
		}
	}

	for i, s := range slots {
		if s == nil {
			res.NotRun = append(res.NotRun, cases[i].Name)
			res.Passed = false
			continue
		}
		if !s.Passed() {
			res.Passed = false
		}
		res.Results = append(res.Results, *s)
	}
	res.DurationMs = float64(time.Since(startSuite).Milliseconds())
	r.logger.Info("suite finished", "suite", suite.Name, "passed", res.Passed,
		"executed", len(res.Results), "not_run", len(res.NotRun), "duration_ms", res.DurationMs)
	return res, nil
}

func (r *Runner) runCase(ctx context.Context, suite *ir.TestSuite, c ir.Case, shared *vars.Set) pipeline.Result {
	local := shared.Snapshot(vars.Builtins())
	b, err := r.compile(suite, c, local)
	if err != nil {
		return r.pipe.Reject(c.Name, err, c.Tags...)
	}
	// In-flight requests are not aborted by suite cancellation.
	res := r.pipe.Run(context.WithoutCancel(ctx), c.Name, b, c.Tags...)
	if res.Passed() {
		r.capture(c, res, shared)
	}
	return res
}

// compile expands variables and turns one case into a request builder.
func (r *Runner) compile(suite *ir.TestSuite, c ir.Case, vs map[string]string) (request.Builder, error) {
	base := r.baseURL
	if base == "" {
		base = vars.Expand(suite.BaseURL, vs)
	}
	url := vars.Expand(c.Request.URL, vs)

	headers := map[string]string{}
	for _, src := range []map[string]string{suite.Headers, c.Request.Headers} {
		for k, v := range src {
			headers[http.CanonicalHeaderKey(k)] = vars.Expand(v, vs)
		}
	}

	var missing []string
	missing = append(missing, vars.Unresolved(base)...)
	missing = append(missing, vars.Unresolved(url)...)
	for _, v := range headers {
		missing = append(missing, vars.Unresolved(v)...)
	}

	m, err := request.ParseMethod(c.Request.Method)
	if err != nil {
		return request.Builder{}, &request.ConfigurationError{Field: "method", Reason: "unsupported", Err: err}
	}
	b := request.New().WithBaseURL(base).WithMethod(m).WithURL(url)
	for k, v := range headers {
		b = b.WithHeader(k, v)
	}
	switch {
	case c.Request.JSON != nil:
		body := vars.ExpandValue(c.Request.JSON, vs)
		missing = append(missing, vars.UnresolvedValue(body)...)
		b = b.WithJSON(body)
	case c.Request.Text != nil:
		text := vars.Expand(*c.Request.Text, vs)
		missing = append(missing, vars.Unresolved(text)...)
		b = b.WithText(text)
	}
	if d := r.caseTimeout(suite, c); d > 0 {
		b = b.WithTimeout(d)
	}

	for i, e := range c.Expect {
		var err error
		if b, err = r.addExpectation(b, e, vs, &missing); err != nil {
			return request.Builder{}, &request.ConfigurationError{Field: fmt.Sprintf("expect[%d]", i), Reason: e.Kind(), Err: err}
		}
	}
	if missing = dedupe(missing); len(missing) > 0 {
		return request.Builder{}, &request.ConfigurationError{
			Field:  "vars",
			Reason: "unresolved variables: " + strings.Join(missing, ", ") + " (define via -env or use ${VAR|default})",
		}
	}
	return b, nil
}

func (r *Runner) addExpectation(b request.Builder, e ir.Expectation, vs map[string]string, missing *[]string) (request.Builder, error) {
	expand := func(v any) any {
		out := vars.ExpandValue(v, vs)
		*missing = append(*missing, vars.UnresolvedValue(out)...)
		return out
	}
	switch e.Kind() {
	case ir.ExpectStatus:
		return b.ExpectStatus(*e.Status), nil
	case ir.ExpectJSON:
		return b.ExpectJSON(expand(e.JSON)), nil
	case ir.ExpectJSONLike:
		return b.ExpectJSONLike(expand(e.JSONLike)), nil
	case ir.ExpectJSONSchema:
		return b.ExpectJSONSchema(e.JSONSchema), nil
	case ir.ExpectJSONSchemaFile:
		s, err := schema.LoadFile(r.resolvePath(e.JSONSchemaFile))
		if err != nil {
			return b, err
		}
		return b.ExpectJSONSchema(s), nil
	case ir.ExpectBodyContains:
		return b.ExpectBodyContains(expand(*e.BodyContains).(string)), nil
	case ir.ExpectHeader:
		return b.ExpectHeader(e.Header.Name, expand(e.Header.Value).(string)), nil
	case ir.ExpectContract:
		return b.Expect(expect.OpenAPIContract(r.contract)), nil
	}
	return b, fmt.Errorf("expectation must set exactly one kind, got %v", e.Kinds())
}

func (r *Runner) caseTimeout(suite *ir.TestSuite, c ir.Case) time.Duration {
	switch {
	case c.Request.TimeoutMs > 0:
		return time.Duration(c.Request.TimeoutMs) * time.Millisecond
	case suite.TimeoutMs > 0:
		return time.Duration(suite.TimeoutMs) * time.Millisecond
	}
	return r.timeout
}

func (r *Runner) resolvePath(p string) string {
	if filepath.IsAbs(p) || r.suiteDir == "" {
		return p
	}
	return filepath.Join(r.suiteDir, p)
}

// capture copies values out of a passed case's JSON body into the shared
// scope. A missing path is logged; later cases that need the variable fail
// as unresolved.
func (r *Runner) capture(c ir.Case, res pipeline.Result, shared *vars.Set) {
	if len(c.Capture) == 0 || res.Response == nil {
		return
	}
	for name, path := range c.Capture {
		v, ok := Lookup(res.Response.Body, path)
		if !ok {
			r.logger.Warn("capture path not found", "case", c.Name, "var", name, "path", path)
			continue
		}
		shared.Put(name, v)
	}
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// FilterByTags keeps cases carrying any include tag (when given) and none
// of the exclude tags. Tags compare case-insensitively.
func FilterByTags(in []ir.Case, include, exclude []string) []ir.Case {
	if len(include) == 0 && len(exclude) == 0 {
		return in
	}
	toSet := func(ss []string) map[string]bool {
		m := map[string]bool{}
		for _, s := range ss {
			m[strings.ToLower(s)] = true
		}
		return m
	}
	inc, exc := toSet(include), toSet(exclude)
	hasAny := func(tags []string, m map[string]bool) bool {
		for _, t := range tags {
			if m[strings.ToLower(t)] {
				return true
			}
		}
		return false
	}
	out := make([]ir.Case, 0, len(in))
	for _, c := range in {
		if len(inc) > 0 && !hasAny(c.Tags, inc) {
			continue
		}
		if len(exc) > 0 && hasAny(c.Tags, exc) {
			continue
		}
		out = append(out, c)
	}
	return out
}
