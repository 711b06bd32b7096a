package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"sort"
	"strconv"
	"strings"
)

func NewHTMLSink(t Target) Sink { return &fileSink{name: "html", target: t, render: WriteHTML} }

// WriteHTML renders a self-contained report page.
func WriteHTML(w io.Writer, sum Summary) error {
	var sb strings.Builder

	sb.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
	sb.WriteString(`<meta name="viewport" content="width=device-width,initial-scale=1">`)
	sb.WriteString(`<title>contractkit report: ` + html.EscapeString(sum.Name) + `</title>`)
	sb.WriteString(`<style>
:root { --ok:#0a0; --bad:#b00; --env:#b60; --muted:#666; --chip:#eee; --line:#e5e5e5; }
body{font-family:system-ui,Segoe UI,Roboto,Arial,sans-serif;margin:24px;line-height:1.45}
h1{margin:0 0 12px}
.summary{display:flex;gap:12px;align-items:center;margin:12px 0 18px;flex-wrap:wrap}
.pass{color:var(--ok)} .fail{color:var(--bad)} .env{color:var(--env)}
.badge{display:inline-block;padding:2px 8px;border-radius:999px;background:var(--chip);font-size:.85rem}
.card{border:1px solid var(--line);border-radius:12px;padding:8px 16px;margin:10px 0}
details>summary{cursor:pointer;list-style:none}
details>summary::-webkit-details-marker{display:none}
summary {padding:6px 0}
pre{background:#f8f8f8;padding:12px;border-radius:8px;overflow:auto;max-height:320px;margin:8px 0 0;white-space:pre-wrap}
.muted{color:var(--muted)}
hr{border:0;border-top:1px solid var(--line);margin:20px 0}
.small{font-size:.85rem}
</style></head><body>`)

	sb.WriteString(`<h1>` + html.EscapeString(sum.Name) + `</h1>`)
	sb.WriteString(`<div class="summary">`)
	sb.WriteString(`<div>Status: <strong class="` + statusClass(sum.OK()) + `">` + tern(sum.OK(), "PASS", "FAIL") + `</strong></div>`)
	sb.WriteString(chip("Duration: " + ms(sum.DurationMs)))
	sb.WriteString(chip("Cases: " + strconv.Itoa(sum.Total)))
	sb.WriteString(chip("Passed: " + strconv.Itoa(sum.Passed)))
	sb.WriteString(chip("Failed: " + strconv.Itoa(sum.Failed)))
	kinds := make([]string, 0, len(sum.ByKind))
	for k := range sum.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		sb.WriteString(chip(k + ": " + strconv.Itoa(sum.ByKind[k])))
	}
	sb.WriteString(chip("Run: " + sum.RunID))
	sb.WriteString(`</div><hr>`)

	for _, o := range sum.Outcomes {
		sb.WriteString(`<div class="card">`)
		sb.WriteString(`<details ` + tern(!o.Passed, "open", "") + `>`)
		sb.WriteString(`<summary>` + badge(o) + ` ` + html.EscapeString(o.Name) + ` • ` +
			html.EscapeString(o.Method+" "+o.URL) + ` • status ` + strconv.Itoa(o.StatusCode) + ` ` + chip(ms(o.DurationMs)) + `</summary>`)

		if o.Failure != nil {
			sb.WriteString(`<pre>` + html.EscapeString(o.Failure.Message) + `</pre>`)
			sb.WriteString(`<div class="small muted" style="margin-top:10px;">Reproduce</div>`)
			sb.WriteString(`<pre>` + html.EscapeString(CurlCommand(o)) + `</pre>`)
		} else {
			sb.WriteString(`<div class="small muted">No errors.</div>`)
		}

		sb.WriteString(`<div class="small muted" style="margin-top:10px;">Request</div>`)
		if len(o.RequestHeaders) > 0 {
			sb.WriteString(`<pre>` + html.EscapeString(kvBlock(o.RequestHeaders)) + `</pre>`)
		}
		if o.RequestBody != "" {
			sb.WriteString(`<pre>` + html.EscapeString(prettyJSON(o.RequestBody)) + `</pre>`)
		}
		if o.ResponseBody != "" {
			sb.WriteString(`<div class="small muted" style="margin-top:10px;">Response</div>`)
			sb.WriteString(`<pre>` + html.EscapeString(prettyJSON(o.ResponseBody)) + `</pre>`)
		}
		sb.WriteString(`</details></div>`)
	}

	sb.WriteString(`</body></html>`)
	_, err := io.WriteString(w, sb.String())
	return err
}

func statusClass(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func badge(o Outcome) string {
	switch {
	case o.Passed:
		return `<span class="badge pass">PASS</span>`
	case o.Failure.Kind == KindNetwork || o.Failure.Kind == KindTimeout:
		return `<span class="badge env">` + html.EscapeString(strings.ToUpper(o.Failure.Kind)) + `</span>`
	}
	return `<span class="badge fail">FAIL</span>`
}

func chip(text string) string {
	return `<span class="badge">` + html.EscapeString(text) + `</span>`
}

func ms(v float64) string { return fmt.Sprintf("%.0f ms", v) }

func tern[T ~string](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

func kvBlock(h map[string]string) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(h[k])
		b.WriteByte('\n')
	}
	return b.String()
}

func prettyJSON(s string) string {
	var buf bytes.Buffer
	var raw any
	if json.Unmarshal([]byte(s), &raw) == nil {
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		_ = enc.Encode(raw)
		return strings.TrimRight(buf.String(), "\n")
	}
	return s
}
