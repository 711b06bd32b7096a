package reporter

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// ConsoleSink prints one line per outcome as it is recorded and a totals
// block when the run ends.
type ConsoleSink struct {
	w       io.Writer
	verbose bool

	pass, fail, env, dim *color.Color
}

func NewConsoleSink(w io.Writer, verbose, noColor bool) *ConsoleSink {
	c := &ConsoleSink{
		w:       w,
		verbose: verbose,
		pass:    color.New(color.FgGreen, color.Bold),
		fail:    color.New(color.FgRed, color.Bold),
		env:     color.New(color.FgYellow, color.Bold),
		dim:     color.New(color.Faint),
	}
	if noColor {
		for _, col := range []*color.Color{c.pass, c.fail, c.env, c.dim} {
			col.DisableColor()
		}
	}
	return c
}

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Open(context.Context) error { return nil }

func (c *ConsoleSink) Observe(o Outcome) {
	var sb strings.Builder
	switch {
	case o.Passed:
		sb.WriteString(c.pass.Sprint("PASS"))
	case o.Failure.Kind == KindNetwork || o.Failure.Kind == KindTimeout:
		sb.WriteString(c.env.Sprint(strings.ToUpper(o.Failure.Kind)))
	default:
		sb.WriteString(c.fail.Sprint("FAIL"))
	}
	fmt.Fprintf(&sb, " %s %s\n", o.Name, c.dim.Sprintf("(%.0f ms)", o.DurationMs))
	if o.Failure != nil {
		for _, line := range strings.Split(o.Failure.Message, "\n") {
			sb.WriteString("    " + line + "\n")
		}
		if c.verbose {
			if cmd := CurlCommand(o); cmd != "" {
				sb.WriteString("    " + c.dim.Sprint("reproduce: "+cmd) + "\n")
			}
		}
	}
	_, _ = io.WriteString(c.w, sb.String())
}

func (c *ConsoleSink) Flush(_ context.Context, sum Summary) error {
	var sb strings.Builder
	sb.WriteString("\n")
	status := c.pass.Sprint("PASS")
	if !sum.OK() {
		status = c.fail.Sprint("FAIL")
	}
	fmt.Fprintf(&sb, "%s %s: %d passed, %d failed, %d total (%.0f ms)\n",
		status, sum.Name, sum.Passed, sum.Failed, sum.Total, sum.DurationMs)
	if len(sum.ByKind) > 0 {
		kinds := make([]string, 0, len(sum.ByKind))
		for k := range sum.ByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		parts := make([]string, len(kinds))
		for i, k := range kinds {
			parts[i] = fmt.Sprintf("%s=%d", k, sum.ByKind[k])
		}
		fmt.Fprintf(&sb, "  failures by kind: %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintf(&sb, "  run %s\n", sum.RunID)
	_, err := io.WriteString(c.w, sb.String())
	return err
}
