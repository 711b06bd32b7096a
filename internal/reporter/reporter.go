// Package reporter collects test outcomes for one run and flushes them to
// pluggable sinks when the run ends.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Failure kinds. Network and timeout failures point at the environment, not
// at the contract under test.
const (
	KindConfiguration = "configuration"
	KindNetwork       = "network"
	KindTimeout       = "timeout"
	KindAssertion     = "assertion"
)

// Outcome is the immutable result of one test case.
type Outcome struct {
	Name       string    `json:"name"`
	Passed     bool      `json:"passed"`
	Failure    *Failure  `json:"failure,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs float64   `json:"durationMs"`
	Tags       []string  `json:"tags,omitempty"`

	Method         string            `json:"method,omitempty"`
	URL            string            `json:"url,omitempty"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
	RequestBody    string            `json:"requestBody,omitempty"`
	StatusCode     int               `json:"statusCode,omitempty"`
	ResponseBody   string            `json:"responseBody,omitempty"`
}

type Failure struct {
	Kind        string `json:"kind"`
	Expectation string `json:"expectation,omitempty"`
	Message     string `json:"message"`
}

func (o Outcome) validate() error {
	switch {
	case o.Name == "":
		return errors.New("outcome has no name")
	case o.DurationMs < 0:
		return fmt.Errorf("outcome %q has negative duration", o.Name)
	case !o.Passed && o.Failure == nil:
		return fmt.Errorf("outcome %q failed without failure detail", o.Name)
	case o.Passed && o.Failure != nil:
		return fmt.Errorf("outcome %q passed but carries a failure", o.Name)
	}
	return nil
}

// Summary is what sinks receive at the end of a run.
type Summary struct {
	RunID      string         `json:"runId"`
	Name       string         `json:"name"`
	StartedAt  time.Time      `json:"startedAt"`
	DurationMs float64        `json:"durationMs"`
	Total      int            `json:"total"`
	Passed     int            `json:"passed"`
	Failed     int            `json:"failed"`
	ByKind     map[string]int `json:"failuresByKind"`
	Outcomes   []Outcome      `json:"outcomes"`
}

func (s Summary) OK() bool { return s.Failed == 0 }

// Sink receives the summary once, when the run ends.
type Sink interface {
	Name() string
	Open(ctx context.Context) error
	Flush(ctx context.Context, s Summary) error
}

// Observer is implemented by sinks that also want each outcome as it is
// recorded. Observe calls are serialized by the reporter.
type Observer interface {
	Observe(o Outcome)
}

// ReporterError wraps a sink or lifecycle failure. It never changes test
// results.
type ReporterError struct {
	Sink string
	Op   string
	Err  error
}

func (e *ReporterError) Error() string {
	if e.Sink == "" {
		return fmt.Sprintf("reporter %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("reporter sink %s %s: %v", e.Sink, e.Op, e.Err)
}

func (e *ReporterError) Unwrap() error { return e.Err }

const (
	stateNew = iota
	stateStarted
	stateEnded
)

type Reporter struct {
	name   string
	logger *slog.Logger
	sinks  []Sink

	mu       sync.Mutex
	state    int
	runID    string
	started  time.Time
	outcomes []Outcome
}

func New(name string, logger *slog.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{name: name, logger: logger, sinks: sinks}
}

// Start opens every sink. It must be called exactly once, before any
// Record; a failure here is the one reporter error that should abort a run.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateNew {
		return &ReporterError{Op: "start", Err: errors.New("already started")}
	}
	for _, s := range r.sinks {
		if err := s.Open(ctx); err != nil {
			return &ReporterError{Sink: s.Name(), Op: "open", Err: err}
		}
	}
	r.state = stateStarted
	r.runID = uuid.NewString()
	r.started = time.Now()
	r.logger.Debug("reporter started", "run_id", r.runID, "sinks", len(r.sinks))
	return nil
}

// RunID identifies the run once Start has succeeded.
func (r *Reporter) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Record appends an outcome. It is safe for concurrent use. Malformed
// outcomes and records outside Start/End are logged and dropped.
func (r *Reporter) Record(o Outcome) {
	if err := o.validate(); err != nil {
		r.logger.Warn("dropping malformed outcome", "error", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateStarted {
		r.logger.Warn("dropping outcome recorded outside of run", "name", o.Name)
		return
	}
	r.outcomes = append(r.outcomes, o)
	for _, s := range r.sinks {
		if obs, ok := s.(Observer); ok {
			obs.Observe(o)
		}
	}
}

// End flushes all recorded outcomes to every sink exactly once. Sink
// failures are logged and joined into the returned error; the summary is
// always complete.
func (r *Reporter) End(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	if r.state != stateStarted {
		r.mu.Unlock()
		return Summary{}, &ReporterError{Op: "end", Err: errors.New("reporter not running")}
	}
	r.state = stateEnded
	sum := r.summarize()
	r.mu.Unlock()

	var errs []error
	for _, s := range r.sinks {
		if err := s.Flush(ctx, sum); err != nil {
			rerr := &ReporterError{Sink: s.Name(), Op: "flush", Err: err}
			r.logger.Error("reporter sink failed", "sink", s.Name(), "error", err)
			errs = append(errs, rerr)
		}
	}
	return sum, errors.Join(errs...)
}

func (r *Reporter) summarize() Summary {
	sum := Summary{
		RunID:      r.runID,
		Name:       r.name,
		StartedAt:  r.started,
		DurationMs: float64(time.Since(r.started).Milliseconds()),
		ByKind:     map[string]int{},
		Outcomes:   append([]Outcome(nil), r.outcomes...),
	}
	for _, o := range sum.Outcomes {
		sum.Total++
		if o.Passed {
			sum.Passed++
			continue
		}
		sum.Failed++
		sum.ByKind[o.Failure.Kind]++
	}
	return sum
}
