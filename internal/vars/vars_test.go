package vars_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"contractkit/internal/vars"
)

func TestLoadJSONFiles(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "env.json")
	if err := os.WriteFile(fp, []byte(`{"BASE_URL":"http://x","NUM":42,"BOOL":true}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := vars.LoadJSONFiles([]string{fp})
	if err != nil {
		t.Fatalf("LoadJSONFiles: %v", err)
	}
	if m["BASE_URL"] != "http://x" {
		t.Fatalf("BASE_URL = %q", m["BASE_URL"])
	}
	if m["NUM"] != "42" {
		t.Fatalf("NUM = %q, want 42", m["NUM"])
	}
	if m["BOOL"] != "true" {
		t.Fatalf("BOOL = %q, want true", m["BOOL"])
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.env")
	b := filepath.Join(dir, "b.env")
	if err := os.WriteFile(a, []byte("BASE_URL=http://a\nTOKEN=one\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(b, []byte("# override\nTOKEN=\"two\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := vars.LoadDotenv([]string{a, b})
	if err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"BASE_URL": "http://a", "TOKEN": "two"}, m); diff != "" {
		t.Fatalf("vars (-want +got):\n%s", diff)
	}
	if _, ok := os.LookupEnv("TOKEN"); ok {
		t.Fatal("dotenv values must not leak into the process environment")
	}
	if _, err := vars.LoadDotenv([]string{filepath.Join(dir, "missing.env")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpand(t *testing.T) {
	m := map[string]string{"BASE_URL": "http://localhost:8081", "companyId": "7", "EMPTY": ""}
	cases := map[string]string{
		"${BASE_URL}/company/${companyId}": "http://localhost:8081/company/7",
		"${MISSING|fallback}":              "fallback",
		"${EMPTY|d}":                       "d",
		"${MISSING}":                       "${MISSING}",
		"${ companyId }":                   "7",
		"no refs":                          "no refs",
	}
	for in, want := range cases {
		if got := vars.Expand(in, m); got != want {
			t.Fatalf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExpandValue(t *testing.T) {
	in := map[string]any{
		"name":  "Company ${suffix}",
		"cnpj":  "${cnpj}",
		"count": 3,
		"tags":  []any{"${suffix}", true},
	}
	got := vars.ExpandValue(in, map[string]string{"suffix": "X", "cnpj": "12345678000195"})
	want := map[string]any{
		"name":  "Company X",
		"cnpj":  "12345678000195",
		"count": 3,
		"tags":  []any{"X", true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExpandValue (-want +got):\n%s", diff)
	}
	if in["name"] != "Company ${suffix}" {
		t.Fatal("input was mutated")
	}
}

func TestUnresolved(t *testing.T) {
	got := vars.Unresolved("/company/${companyId}/products/${productId}/${companyId}?x=${y|1}")
	if diff := cmp.Diff([]string{"${companyId}", "${productId}"}, got); diff != "" {
		t.Fatalf("Unresolved (-want +got):\n%s", diff)
	}
	if vars.Unresolved("/company/1") != nil {
		t.Fatal("expected no unresolved refs")
	}
	got = vars.UnresolvedValue(map[string]any{"a": []any{"${token}"}, "${key}": 1})
	if diff := cmp.Diff([]string{"${key}", "${token}"}, got); diff != "" {
		t.Fatalf("UnresolvedValue (-want +got):\n%s", diff)
	}
}

func TestBuiltins(t *testing.T) {
	a, b := vars.Builtins(), vars.Builtins()
	if _, err := uuid.Parse(a["uuid"]); err != nil {
		t.Fatalf("uuid builtin = %q: %v", a["uuid"], err)
	}
	if a["uuid"] == b["uuid"] {
		t.Fatal("uuid must differ per call")
	}
	if a["now"] == "" {
		t.Fatal("now builtin missing")
	}
}

func TestSet_ConcurrentPutAndSnapshot(t *testing.T) {
	s := vars.NewSet(map[string]string{"BASE_URL": "http://x"})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Put("companyId", "1")
			_ = s.Snapshot(map[string]string{"uuid": "u"})
		}()
	}
	wg.Wait()

	snap := s.Snapshot(map[string]string{"BASE_URL": "http://override"})
	if snap["companyId"] != "1" || snap["BASE_URL"] != "http://override" {
		t.Fatalf("snapshot = %v", snap)
	}
	if v := s.Snapshot()["BASE_URL"]; v != "http://x" {
		t.Fatalf("overlay leaked into set: %s", v)
	}
}
