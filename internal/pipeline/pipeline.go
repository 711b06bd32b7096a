// Package pipeline runs one test case: execute the request once, evaluate
// its expectations in declaration order and stop at the first failure.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"contractkit/internal/executor"
	"contractkit/internal/expect"
	"contractkit/internal/reporter"
	"contractkit/internal/request"
	"contractkit/internal/response"
)

// maxReportBody caps the response body copied into an outcome.
const maxReportBody = 64 << 10

type Executor interface {
	Execute(ctx context.Context, spec request.Spec) (*response.Record, error)
}

// Recorder receives every outcome. *reporter.Reporter satisfies it.
type Recorder interface {
	Record(o reporter.Outcome)
}

type State int

const (
	StateBuilt State = iota
	StateExecuted
	StatePassed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateExecuted:
		return "executed"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the terminal state of one case. Response is nil when the
// request was never answered. Err holds the typed cause of a failure.
type Result struct {
	State    State
	Outcome  reporter.Outcome
	Response *response.Record
	Err      error
}

func (r Result) Passed() bool { return r.State == StatePassed }

type Pipeline struct {
	exec   Executor
	rec    Recorder
	logger *slog.Logger
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// New returns a pipeline. rec may be nil when outcomes are only consumed
// through the returned Result.
func New(exec Executor, rec Recorder, opts ...Option) *Pipeline {
	p := &Pipeline{exec: exec, rec: rec, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	if p.exec == nil {
		p.exec = executor.New(executor.WithLogger(p.logger))
	}
	return p
}

// Run builds b and runs the resulting spec. A build failure is recorded as
// a configuration failure without any network call.
func (p *Pipeline) Run(ctx context.Context, name string, b request.Builder, tags ...string) Result {
	spec, err := b.Build()
	if err != nil {
		return p.Reject(name, err, tags...)
	}
	return p.RunSpec(ctx, name, spec, tags...)
}

// RunSpec executes spec exactly once and evaluates its expectations.
func (p *Pipeline) RunSpec(ctx context.Context, name string, spec request.Spec, tags ...string) Result {
	started := time.Now()
	res := Result{State: StateBuilt}
	res.Outcome = reporter.Outcome{
		Name:           name,
		StartedAt:      started,
		Tags:           tags,
		Method:         string(spec.Method()),
		URL:            spec.URL(),
		RequestHeaders: spec.Headers(),
		RequestBody:    string(spec.Body()),
	}

	rec, err := p.exec.Execute(ctx, spec)
	if err != nil {
		return p.finish(res, started, err)
	}
	res.State = StateExecuted
	res.Response = rec
	res.Outcome.StatusCode = rec.Status
	res.Outcome.ResponseBody = limitBody(rec.Raw, maxReportBody)

	for i, exp := range spec.Expectations() {
		if m := expect.Match(exp, rec); !m.OK {
			return p.finish(res, started, &expect.AssertionError{Kind: exp.Kind(), Index: i, Diff: m.Diff})
		}
	}
	return p.finish(res, started, nil)
}

// Reject records a case that failed before it could be built, such as a
// request that references an undefined variable.
func (p *Pipeline) Reject(name string, err error, tags ...string) Result {
	now := time.Now()
	res := Result{State: StateBuilt, Outcome: reporter.Outcome{Name: name, StartedAt: now, Tags: tags}}
	var cfgErr *request.ConfigurationError
	if !errors.As(err, &cfgErr) {
		err = &request.ConfigurationError{Field: "case", Reason: "rejected", Err: err}
	}
	return p.finish(res, now, err)
}

func (p *Pipeline) finish(res Result, started time.Time, err error) Result {
	res.Outcome.DurationMs = float64(time.Since(started).Microseconds()) / 1000
	if err == nil {
		res.State = StatePassed
		res.Outcome.Passed = true
	} else {
		res.State = StateFailed
		res.Err = err
		res.Outcome.Failure = Classify(err)
		p.logger.Debug("case failed", "case", res.Outcome.Name, "kind", res.Outcome.Failure.Kind, "error", err)
	}
	if p.rec != nil {
		p.rec.Record(res.Outcome)
	}
	return res
}

// Classify maps an error onto a reporter failure kind. Errors of unknown
// type are treated as network failures since they come from the executor.
func Classify(err error) *reporter.Failure {
	f := &reporter.Failure{Message: err.Error()}
	var (
		cfgErr *request.ConfigurationError
		tmoErr *executor.TimeoutError
		netErr *executor.NetworkError
		asrErr *expect.AssertionError
	)
	switch {
	case errors.As(err, &asrErr):
		f.Kind, f.Expectation, f.Message = reporter.KindAssertion, asrErr.Kind, asrErr.Diff
	case errors.As(err, &cfgErr):
		f.Kind = reporter.KindConfiguration
	case errors.As(err, &tmoErr):
		f.Kind = reporter.KindTimeout
	case errors.As(err, &netErr):
		f.Kind = reporter.KindNetwork
	default:
		f.Kind = reporter.KindNetwork
	}
	return f
}

func limitBody(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	for max > 0 && !utf8.RuneStart(b[max]) {
		max--
	}
	return string(b[:max]) + "\n...[truncated]..."
}
