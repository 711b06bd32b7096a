package reporter_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"contractkit/internal/reporter"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memorySink struct {
	mu       sync.Mutex
	opened   int
	flushed  []reporter.Summary
	observed []string
	openErr  error
	flushErr error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Open(context.Context) error {
	m.opened++
	return m.openErr
}

func (m *memorySink) Flush(_ context.Context, s reporter.Summary) error {
	m.flushed = append(m.flushed, s)
	return m.flushErr
}

func (m *memorySink) Observe(o reporter.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, o.Name)
}

func pass(name string) reporter.Outcome {
	return reporter.Outcome{Name: name, Passed: true, DurationMs: 3}
}

func fail(name, kind, msg string) reporter.Outcome {
	return reporter.Outcome{Name: name, DurationMs: 5, Failure: &reporter.Failure{Kind: kind, Message: msg}}
}

func TestReporter_Lifecycle(t *testing.T) {
	sink := &memorySink{}
	r := reporter.New("Company API", quiet(), sink)
	ctx := context.Background()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.RunID() == "" {
		t.Fatal("run id not assigned")
	}
	r.Record(pass("create company"))
	r.Record(fail("get company", reporter.KindAssertion, "status: expected 200 (OK), got 404 (Not Found)"))
	r.Record(fail("list products", reporter.KindNetwork, "connection refused"))

	sum, err := r.End(ctx)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if sum.Total != 3 || sum.Passed != 1 || sum.Failed != 2 || sum.OK() {
		t.Fatalf("counts = %d/%d/%d", sum.Total, sum.Passed, sum.Failed)
	}
	if diff := cmp.Diff(map[string]int{reporter.KindAssertion: 1, reporter.KindNetwork: 1}, sum.ByKind); diff != "" {
		t.Fatalf("failures by kind (-want +got):\n%s", diff)
	}
	if sum.RunID != r.RunID() || sum.Name != "Company API" {
		t.Fatalf("summary header = %q %q", sum.RunID, sum.Name)
	}
	if sink.opened != 1 || len(sink.flushed) != 1 {
		t.Fatalf("sink opened %d times, flushed %d times", sink.opened, len(sink.flushed))
	}
	if diff := cmp.Diff([]string{"create company", "get company", "list products"}, sink.observed); diff != "" {
		t.Fatalf("observed (-want +got):\n%s", diff)
	}
}

func TestReporter_EmptyRun(t *testing.T) {
	r := reporter.New("empty", quiet())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum, err := r.End(context.Background())
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if sum.Total != 0 || !sum.OK() {
		t.Fatalf("empty run summary = %+v", sum)
	}
}

func TestReporter_StartTwice(t *testing.T) {
	r := reporter.New("x", quiet())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := r.Start(context.Background())
	var rerr *reporter.ReporterError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ReporterError, got %v", err)
	}
}

func TestReporter_EndWithoutStart(t *testing.T) {
	if _, err := reporter.New("x", quiet()).End(context.Background()); err == nil {
		t.Fatal("End before Start should fail")
	}
}

func TestReporter_RecordOutsideRunIsDropped(t *testing.T) {
	sink := &memorySink{}
	r := reporter.New("x", quiet(), sink)
	r.Record(pass("before start"))
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sum, _ := r.End(context.Background())
	r.Record(pass("after end"))
	if sum.Total != 0 || len(sink.observed) != 0 {
		t.Fatalf("outcomes outside the run were kept: %+v", sum.Outcomes)
	}
}

func TestReporter_MalformedOutcomeIsDropped(t *testing.T) {
	var logs bytes.Buffer
	r := reporter.New("x", slog.New(slog.NewTextHandler(&logs, nil)))
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Record(reporter.Outcome{})
	r.Record(reporter.Outcome{Name: "failed without detail"})
	r.Record(reporter.Outcome{Name: "negative", Passed: true, DurationMs: -1})
	r.Record(pass("ok"))

	sum, _ := r.End(context.Background())
	if sum.Total != 1 {
		t.Fatalf("total = %d, want only the well-formed outcome", sum.Total)
	}
	if !bytes.Contains(logs.Bytes(), []byte("dropping malformed outcome")) {
		t.Fatalf("drop was not logged: %s", logs.String())
	}
}

func TestReporter_ConcurrentRecord(t *testing.T) {
	sink := &memorySink{}
	r := reporter.New("parallel", quiet(), sink)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const workers, each = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				r.Record(pass(fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	sum, err := r.End(context.Background())
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if sum.Total != workers*each || len(sink.observed) != workers*each {
		t.Fatalf("recorded %d, observed %d, want %d", sum.Total, len(sink.observed), workers*each)
	}
	seen := map[string]bool{}
	for _, o := range sum.Outcomes {
		if seen[o.Name] {
			t.Fatalf("duplicate outcome %s", o.Name)
		}
		seen[o.Name] = true
	}
}

func TestReporter_SinkFailureIsIsolated(t *testing.T) {
	broken := &memorySink{flushErr: errors.New("disk full")}
	healthy := &memorySink{}
	r := reporter.New("x", quiet(), broken, healthy)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Record(pass("a"))

	sum, err := r.End(context.Background())
	var rerr *reporter.ReporterError
	if !errors.As(err, &rerr) || rerr.Op != "flush" {
		t.Fatalf("expected flush ReporterError, got %v", err)
	}
	if sum.Total != 1 || !sum.OK() {
		t.Fatalf("sink failure changed results: %+v", sum)
	}
	if len(healthy.flushed) != 1 {
		t.Fatal("healthy sink was not flushed")
	}
}

func TestReporter_SinkOpenFailureAbortsStart(t *testing.T) {
	r := reporter.New("x", quiet(), &memorySink{openErr: errors.New("permission denied")})
	err := r.Start(context.Background())
	var rerr *reporter.ReporterError
	if !errors.As(err, &rerr) || rerr.Op != "open" {
		t.Fatalf("expected open ReporterError, got %v", err)
	}
}
