package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"contractkit/internal/request"
	"contractkit/internal/response"
)

// DefaultMaxBody caps how much of a response body is read.
const DefaultMaxBody = 10 << 20

// NetworkError reports a request that never produced a response: DNS,
// dial, TLS or connection failures, or a canceled parent context.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError reports a request that exceeded its spec's timeout.
type TimeoutError struct {
	Method  string
	URL     string
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s %s: no response within %s (elapsed %s)",
		e.Method, e.URL, e.Timeout, e.Elapsed.Round(time.Millisecond))
}

// Executor performs exactly one HTTP exchange per Execute call. It never
// retries. An Executor is safe for concurrent use.
type Executor struct {
	client  *http.Client
	logger  *slog.Logger
	maxBody int64
}

type Option func(*Executor)

func WithTransport(rt http.RoundTripper) Option {
	return func(e *Executor) { e.client = &http.Client{Transport: rt} }
}

func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

func WithMaxBody(n int64) Option { return func(e *Executor) { e.maxBody = n } }

func New(opts ...Option) *Executor {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	e := &Executor{
		client:  &http.Client{Transport: tr},
		logger:  slog.Default(),
		maxBody: DefaultMaxBody,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute sends spec and returns the normalized response. Non-JSON bodies are
// not an error; the record keeps the raw body with BodyParsed unset.
func (e *Executor) Execute(ctx context.Context, spec request.Spec) (*response.Record, error) {
	method, url := string(spec.Method()), spec.URL()
	tmo := spec.Timeout()
	if tmo <= 0 {
		tmo = request.DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, tmo)
	defer cancel()

	var body io.Reader
	if spec.HasBody() {
		body = bytes.NewReader(spec.Body())
	}
	httpReq, err := http.NewRequestWithContext(cctx, method, url, body)
	if err != nil {
		return nil, &request.ConfigurationError{Field: "url", Reason: "cannot create request", Err: err}
	}
	for k, v := range spec.Headers() {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.classify(ctx, cctx, err, method, url, tmo, time.Since(start))
	}
	defer resp.Body.Close()

	// One byte past the cap tells a body of exactly maxBody from a longer one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody+1))
	elapsed := time.Since(start)
	if err != nil {
		return nil, e.classify(ctx, cctx, fmt.Errorf("read body: %w", err), method, url, tmo, elapsed)
	}
	truncated := int64(len(data)) > e.maxBody
	if truncated {
		data = data[:e.maxBody]
	}

	e.logger.Debug("http exchange",
		"method", method, "url", url, "status", resp.StatusCode,
		"bytes", len(data), "truncated", truncated, "elapsed_ms", elapsed.Milliseconds())

	rec := response.New(method, url, resp.StatusCode, resp.Header, data, elapsed)
	if truncated {
		e.logger.Warn("response body truncated", "method", method, "url", url, "limit", e.maxBody)
		rec.MarkTruncated(e.maxBody)
	}
	return rec, nil
}

func (e *Executor) classify(parent, cctx context.Context, err error, method, url string, tmo, elapsed time.Duration) error {
	e.logger.Debug("http exchange failed", "method", method, "url", url, "error", err, "elapsed_ms", elapsed.Milliseconds())

	if parent.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Method: method, URL: url, Timeout: tmo, Elapsed: elapsed}
	}
	var netErr net.Error
	if parent.Err() == nil && errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Method: method, URL: url, Timeout: tmo, Elapsed: elapsed}
	}
	return &NetworkError{Method: method, URL: url, Err: err}
}
