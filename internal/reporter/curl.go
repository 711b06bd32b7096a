package reporter

import (
	"sort"

	"github.com/alessio/shellescape"
)

// CurlCommand renders a shell-safe curl invocation that repeats the request
// behind o.
func CurlCommand(o Outcome) string {
	if o.URL == "" {
		return ""
	}
	args := []string{"curl", "-sS", "-i"}
	if o.Method != "" && o.Method != "GET" {
		args = append(args, "-X", o.Method)
	}
	keys := make([]string, 0, len(o.RequestHeaders))
	for k := range o.RequestHeaders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-H", k+": "+o.RequestHeaders[k])
	}
	if o.RequestBody != "" {
		args = append(args, "--data-raw", o.RequestBody)
	}
	args = append(args, o.URL)
	return shellescape.QuoteCommand(args)
}
