package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/internal/executor"
	"contractkit/internal/expect"
	"contractkit/internal/pipeline"
	"contractkit/internal/pipeline/pipelinetest"
	"contractkit/internal/reporter"
	"contractkit/internal/request"
)

type outcomes struct {
	mu  sync.Mutex
	all []reporter.Outcome
}

func (o *outcomes) Record(out reporter.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.all = append(o.all, out)
}

func jsonHandler(status int, body string) http.Handler {
	return httphelpers.HandlerWithResponse(status, http.Header{"Content-Type": []string{"application/json; charset=utf-8"}}, []byte(body))
}

func TestRun_StatusProperty(t *testing.T) {
	for _, status := range []int{200, 201, 204, 400, 404, 500} {
		httphelpers.WithServer(httphelpers.HandlerWithStatus(status), func(server *httptest.Server) {
			for _, want := range []int{200, 404} {
				res := pipeline.New(executor.New(), nil).Run(context.Background(), "status",
					request.New().Get(server.URL).ExpectStatus(want))
				if status == want {
					assert.Equal(t, pipeline.StatePassed, res.State)
					assert.Nil(t, res.Outcome.Failure)
					continue
				}
				require.Equal(t, pipeline.StateFailed, res.State)
				assert.Equal(t, reporter.KindAssertion, res.Outcome.Failure.Kind)
				assert.Contains(t, res.Outcome.Failure.Message, http.StatusText(want))
				assert.Contains(t, res.Outcome.Failure.Message, http.StatusText(status))
			}
		})
	}
}

func TestRun_FailFastReportsFirstFailure(t *testing.T) {
	httphelpers.WithServer(jsonHandler(404, `{"message":"Empresa não encontrada"}`), func(server *httptest.Server) {
		res := pipeline.New(executor.New(), nil).Run(context.Background(), "get company",
			request.New().Get(server.URL+"/company/1").
				ExpectStatus(200).
				ExpectJSON(map[string]any{"id": 1}))

		require.Equal(t, pipeline.StateFailed, res.State)
		f := res.Outcome.Failure
		assert.Equal(t, expect.KindStatus, f.Expectation)
		assert.Contains(t, f.Message, "status: expected 200")
		assert.NotContains(t, f.Message, "json:")

		var aerr *expect.AssertionError
		require.True(t, errors.As(res.Err, &aerr))
		assert.Equal(t, 0, aerr.Index)
	})
}

func TestRun_LaterExpectationFailure(t *testing.T) {
	httphelpers.WithServer(jsonHandler(200, `{"id":2}`), func(server *httptest.Server) {
		res := pipeline.New(executor.New(), nil).Run(context.Background(), "get company",
			request.New().Get(server.URL).ExpectStatus(200).ExpectJSON(map[string]any{"id": 1}))

		require.Equal(t, pipeline.StateFailed, res.State)
		assert.Equal(t, expect.KindJSON, res.Outcome.Failure.Expectation)
		assert.Contains(t, res.Outcome.Failure.Message, "json: mismatch at $.id")
		assert.Equal(t, 200, res.Outcome.StatusCode)
	})
}

func TestRun_ZeroExpectationsIsIdempotent(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		p := pipeline.New(executor.New(), nil)
		b := request.New().Get(server.URL + "/health")
		const n = 20
		for i := 0; i < n; i++ {
			res := p.Run(context.Background(), "health", b)
			require.Equal(t, pipeline.StatePassed, res.State, "run %d", i)
		}
		assert.Len(t, requests, n)
	})
}

func TestRun_InvalidCNPJScenario(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(jsonHandler(400, `{"message":"CNPJ deve ter 14 dígitos"}`))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		res := pipeline.New(executor.New(), nil).Run(context.Background(), "invalid cnpj",
			request.New().
				Post(server.URL+"/company").
				WithJSON(map[string]any{"cnpj": "12345678"}).
				ExpectStatus(400).
				ExpectBodyContains("CNPJ deve ter 14 dígitos"))

		pipelinetest.Require(t, res)
		info := <-requests
		assert.JSONEq(t, `{"cnpj":"12345678"}`, string(info.Body))
	})
}

func TestRun_DeleteWithInvalidIDScenario(t *testing.T) {
	body := `{"errors":[{"type":"field","value":"abc","msg":"ID deve ser um número inteiro","path":"id","location":"params"}]}`
	httphelpers.WithServer(jsonHandler(400, body), func(server *httptest.Server) {
		res := pipeline.New(executor.New(), nil).Run(context.Background(), "delete abc",
			request.New().
				Delete(server.URL+"/company/abc").
				ExpectStatus(400).
				ExpectJSONLike(map[string]any{
					"errors": []any{map[string]any{"type": "field", "value": "abc", "path": "id", "location": "params"}},
				}))

		pipelinetest.Require(t, res)
	})
}

func TestRun_ConfigurationFailureSkipsNetwork(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		rec := &outcomes{}
		res := pipeline.New(executor.New(), rec).Run(context.Background(), "no method", request.New().WithURL(server.URL))

		require.Equal(t, pipeline.StateFailed, res.State)
		assert.Equal(t, reporter.KindConfiguration, res.Outcome.Failure.Kind)
		assert.Len(t, requests, 0)
		require.Len(t, rec.all, 1)
		assert.Equal(t, "no method", rec.all[0].Name)
	})
}

func TestRun_NetworkAndTimeoutAreDistinct(t *testing.T) {
	closed := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	closed.Close()

	res := pipeline.New(executor.New(), nil).Run(context.Background(), "down", request.New().Get(closed.URL).ExpectStatus(200))
	require.Equal(t, pipeline.StateFailed, res.State)
	assert.Equal(t, reporter.KindNetwork, res.Outcome.Failure.Kind)
	assert.Nil(t, res.Response)

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	httphelpers.WithServer(slow, func(server *httptest.Server) {
		res := pipeline.New(executor.New(), nil).Run(context.Background(), "slow",
			request.New().Get(server.URL).WithTimeout(50*time.Millisecond))
		require.Equal(t, pipeline.StateFailed, res.State)
		assert.Equal(t, reporter.KindTimeout, res.Outcome.Failure.Kind)
	})
}

func TestRun_RecordsIntoReporter(t *testing.T) {
	httphelpers.WithServer(jsonHandler(201, `{"id":1,"name":"Test Company"}`), func(server *httptest.Server) {
		rep := reporter.New("company", nil)
		require.NoError(t, rep.Start(context.Background()))

		p := pipeline.New(executor.New(), rep)
		p.Run(context.Background(), "create", request.New().Post(server.URL).WithJSON(map[string]any{"name": "Test Company"}).ExpectStatus(201), "company")
		p.Run(context.Background(), "create again", request.New().Post(server.URL).ExpectStatus(400))

		sum, err := rep.End(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Total)
		assert.Equal(t, 1, sum.Passed)
		assert.Equal(t, []string{"company"}, sum.Outcomes[0].Tags)
		assert.Equal(t, "POST", sum.Outcomes[0].Method)
		assert.Equal(t, `{"name":"Test Company"}`, sum.Outcomes[0].RequestBody)
		assert.Equal(t, `{"id":1,"name":"Test Company"}`, sum.Outcomes[0].ResponseBody)
	})
}

func TestReject(t *testing.T) {
	rec := &outcomes{}
	res := pipeline.New(executor.New(), rec).Reject("unresolved", errors.New("unresolved variables: ${companyId}"))

	require.Equal(t, pipeline.StateFailed, res.State)
	assert.Equal(t, reporter.KindConfiguration, res.Outcome.Failure.Kind)
	assert.Contains(t, res.Outcome.Failure.Message, "${companyId}")
	require.Len(t, rec.all, 1)
}

func TestRun_ConcurrentPipelinesShareReporter(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(200), func(server *httptest.Server) {
		rep := reporter.New("parallel", nil)
		require.NoError(t, rep.Start(context.Background()))
		p := pipeline.New(executor.New(), rep)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Run(context.Background(), "ping", request.New().Get(server.URL).ExpectStatus(200))
			}()
		}
		wg.Wait()

		sum, err := rep.End(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 16, sum.Passed)
	})
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		reporter.KindConfiguration: &request.ConfigurationError{Field: "url", Reason: "not set"},
		reporter.KindNetwork:       &executor.NetworkError{Method: "GET", URL: "http://x", Err: errors.New("refused")},
		reporter.KindTimeout:       &executor.TimeoutError{Method: "GET", URL: "http://x", Timeout: time.Second},
		reporter.KindAssertion:     &expect.AssertionError{Kind: expect.KindStatus, Diff: "status: expected 200"},
	}
	for kind, err := range cases {
		assert.Equal(t, kind, pipeline.Classify(err).Kind, kind)
	}
}

func TestRun_LargeBodyIsCutOnRuneBoundary(t *testing.T) {
	body := "a" + strings.Repeat("é", 40<<10)
	httphelpers.WithServer(httphelpers.HandlerWithResponse(500, nil, []byte(body)), func(server *httptest.Server) {
		res := pipeline.New(executor.New(), nil).Run(context.Background(), "big", request.New().Get(server.URL).ExpectStatus(200))

		require.Equal(t, pipeline.StateFailed, res.State)
		assert.Less(t, len(res.Outcome.ResponseBody), len(body))
		assert.True(t, utf8.ValidString(res.Outcome.ResponseBody))
		assert.True(t, strings.HasSuffix(res.Outcome.ResponseBody, "...[truncated]..."))
	})
}
