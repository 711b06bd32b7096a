package reporter

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Target is where a file-based sink writes its output.
type Target interface {
	open() (io.WriteCloser, error)
	String() string
}

type fileTarget string

// File targets a path; parent directories are created when the run starts.
func File(path string) Target { return fileTarget(path) }

func (t fileTarget) open() (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(string(t)), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return os.Create(string(t))
}

func (t fileTarget) String() string { return string(t) }

type writerTarget struct{ w io.Writer }

// Writer targets an existing writer, which is never closed.
func Writer(w io.Writer) Target { return writerTarget{w: w} }

func (t writerTarget) open() (io.WriteCloser, error) { return nopCloser{t.w}, nil }
func (t writerTarget) String() string                { return fmt.Sprintf("%T", t.w) }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// fileSink opens its target at Start so an unwritable destination aborts
// the run before any request goes out.
type fileSink struct {
	name   string
	target Target
	render func(io.Writer, Summary) error
	wc     io.WriteCloser
}

func (s *fileSink) Name() string { return s.name + "(" + s.target.String() + ")" }

func (s *fileSink) Open(context.Context) error {
	wc, err := s.target.open()
	if err != nil {
		return err
	}
	s.wc = wc
	return nil
}

func (s *fileSink) Flush(_ context.Context, sum Summary) error {
	if s.wc == nil {
		return fmt.Errorf("not opened")
	}
	err := s.render(s.wc, sum)
	if cerr := s.wc.Close(); err == nil {
		err = cerr
	}
	return err
}

// -------- JSON --------

func NewJSONSink(t Target) Sink { return &fileSink{name: "json", target: t, render: WriteJSON} }

func WriteJSON(w io.Writer, sum Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

// -------- JUnit XML --------

func NewJUnitSink(t Target) Sink { return &fileSink{name: "junit", target: t, render: WriteJUnit} }

// Contract violations become <failure>; environment and configuration
// problems become <error>, so CI can tell them apart.
type junitTestsuite struct {
	XMLName  xml.Name        `xml:"testsuite"`
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Time     string          `xml:"time,attr"`
	Testcase []junitTestcase `xml:"testcase"`
}

type junitTestcase struct {
	Classname string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitProblem `xml:"failure,omitempty"`
	Error     *junitProblem `xml:"error,omitempty"`
}

type junitProblem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

func WriteJUnit(w io.Writer, sum Summary) error {
	ts := junitTestsuite{
		Name: sum.Name,
		Time: fmt.Sprintf("%.3f", sum.DurationMs/1000.0),
	}
	for _, o := range sum.Outcomes {
		ts.Tests++
		tc := junitTestcase{
			Classname: sum.Name,
			Name:      o.Name,
			Time:      fmt.Sprintf("%.3f", o.DurationMs/1000.0),
		}
		if f := o.Failure; f != nil {
			p := &junitProblem{
				Message: firstLine(f.Message),
				Type:    errorType(f.Kind),
				Text:    f.Message,
			}
			if f.Kind == KindAssertion {
				ts.Failures++
				tc.Failure = p
			} else {
				ts.Errors++
				tc.Error = p
			}
		}
		ts.Testcase = append(ts.Testcase, tc)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(ts)
}

func errorType(kind string) string {
	switch kind {
	case KindAssertion:
		return "AssertionError"
	case KindNetwork:
		return "NetworkError"
	case KindTimeout:
		return "TimeoutError"
	case KindConfiguration:
		return "ConfigurationError"
	}
	return kind
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
