// Package vars loads suite variables and interpolates ${KEY} and
// ${KEY|default} references.
package vars

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func LoadJSONFiles(paths []string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}

		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		for k, v := range m {
			out[k] = Stringify(v)
		}
	}
	return out, nil
}

// LoadDotenv reads KEY=VALUE files without touching the process
// environment. Later files win.
func LoadDotenv(paths []string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		m, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out, nil
}

// Stringify coerces a decoded JSON value into a variable value.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprint(x) // numbers and bools
	}
}

// Builtins returns the per-case variables: a fresh uuid and the current
// UTC time.
func Builtins() map[string]string {
	return map[string]string{
		"uuid": uuid.NewString(),
		"now":  time.Now().UTC().Format(time.RFC3339),
	}
}

// Set is a variable scope shared by the cases of one run. Captured values
// are written while other cases read, so access is synchronized.
type Set struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewSet(initial ...map[string]string) *Set {
	s := &Set{m: map[string]string{}}
	for _, m := range initial {
		for k, v := range m {
			s.m[k] = v
		}
	}
	return s
}

func (s *Set) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

// Snapshot copies the current values and overlays extra on top.
func (s *Set) Snapshot(extra ...map[string]string) map[string]string {
	s.mu.RLock()
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	s.mu.RUnlock()
	for _, m := range extra {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Expand replaces ${KEY} and ${KEY|default}. An empty value counts as
// missing. A missing key without default is left intact so Unresolved can
// report it.
func Expand(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		inner := m[2 : len(m)-1]
		key, def, hasDef := strings.Cut(inner, "|")
		if v, ok := vars[strings.TrimSpace(key)]; ok && v != "" {
			return v
		}
		if hasDef {
			return def
		}
		return m
	})
}

// ExpandValue walks decoded JSON/YAML and expands every string in it,
// object keys included.
func ExpandValue(v any, vars map[string]string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return Expand(x, vars)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[Expand(k, vars)] = ExpandValue(vv, vars)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = ExpandValue(x[i], vars)
		}
		return out
	default:
		return v
	}
}

// Unresolved lists the references left in s after expansion, sorted and
// without duplicates.
func Unresolved(s string) []string {
	seen := map[string]bool{}
	collect(s, seen)
	return sorted(seen)
}

// UnresolvedValue is Unresolved for a decoded JSON/YAML value.
func UnresolvedValue(v any) []string {
	seen := map[string]bool{}
	var walk func(any)
	walk = func(v any) {
		switch x := v.(type) {
		case string:
			collect(x, seen)
		case map[string]any:
			for k, vv := range x {
				collect(k, seen)
				walk(vv)
			}
		case []any:
			for _, vv := range x {
				walk(vv)
			}
		}
	}
	walk(v)
	return sorted(seen)
}

func collect(s string, seen map[string]bool) {
	for _, m := range varPattern.FindAllStringSubmatch(s, -1) {
		// A reference with a default always resolves.
		if strings.Contains(m[1], "|") {
			continue
		}
		seen["${"+m[1]+"}"] = true
	}
}

func sorted(seen map[string]bool) []string {
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
