// Package pipelinetest connects pipeline results to Go tests.
package pipelinetest

import (
	"testing"

	"contractkit/internal/pipeline"
)

// Require fails t with the case diagnostic unless r passed.
func Require(t testing.TB, r pipeline.Result) {
	t.Helper()
	if r.Passed() {
		return
	}
	f := r.Outcome.Failure
	if f == nil {
		t.Fatalf("%s: did not pass (state %s)", r.Outcome.Name, r.State)
		return
	}
	t.Fatalf("%s: %s failure: %s", r.Outcome.Name, f.Kind, f.Message)
}
