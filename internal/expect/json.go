package expect

import (
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"contractkit/internal/response"
)

type jsonEquals struct{ want ldvalue.Value }

// JSONEquals requires the body to be deeply equal to want. Object key order
// is irrelevant, array order is significant, numbers compare numerically.
func JSONEquals(want ldvalue.Value) Expectation { return jsonEquals{want: want} }

func (jsonEquals) Kind() string { return KindJSON }

func (e jsonEquals) Match(rec *response.Record) Result {
	if !rec.BodyParsed {
		return notJSON(KindJSON, rec)
	}
	if e.want.Equal(rec.Body) {
		return pass()
	}
	path, want, got := firstDifference(e.want, rec.Body, "$")
	d := cmp.Diff(e.want.AsArbitraryValue(), rec.Body.AsArbitraryValue())
	return failf("json: mismatch at %s: expected %s, got %s\nexpected: %s\nactual:   %s\n(-expected +actual):\n%s",
		path, want, got, clip(e.want.JSONString()), clip(rec.Body.JSONString()), d)
}

// firstDifference walks want and got in a stable order and describes the
// first point where they diverge.
func firstDifference(want, got ldvalue.Value, path string) (string, string, string) {
	if want.Type() != got.Type() {
		return path, describe(want), describe(got)
	}
	switch want.Type() {
	case ldvalue.ObjectType:
		wantKeys, gotKeys := sortedKeys(want), sortedKeys(got)
		gotSet := map[string]bool{}
		for _, k := range gotKeys {
			gotSet[k] = true
		}
		for _, k := range wantKeys {
			if !gotSet[k] {
				return path + "." + k, describe(want.GetByKey(k)), "<missing>"
			}
			if !want.GetByKey(k).Equal(got.GetByKey(k)) {
				return firstDifference(want.GetByKey(k), got.GetByKey(k), path+"."+k)
			}
		}
		wantSet := map[string]bool{}
		for _, k := range wantKeys {
			wantSet[k] = true
		}
		for _, k := range gotKeys {
			if !wantSet[k] {
				return path + "." + k, "<absent>", describe(got.GetByKey(k))
			}
		}
	case ldvalue.ArrayType:
		n := want.Count()
		if got.Count() < n {
			n = got.Count()
		}
		for i := 0; i < n; i++ {
			if !want.GetByIndex(i).Equal(got.GetByIndex(i)) {
				return firstDifference(want.GetByIndex(i), got.GetByIndex(i), fmt.Sprintf("%s[%d]", path, i))
			}
		}
		if want.Count() != got.Count() {
			return path, fmt.Sprintf("array of length %d", want.Count()), fmt.Sprintf("array of length %d", got.Count())
		}
	}
	return path, describe(want), describe(got)
}

type jsonContains struct{ partial ldvalue.Value }

// JSONContains requires every key of partial to be present in the body with
// a contained value. Keys present only in the body are ignored. Arrays in
// partial match when each element is contained in a distinct element of the
// actual array, in any order.
func JSONContains(partial ldvalue.Value) Expectation { return jsonContains{partial: partial} }

func (jsonContains) Kind() string { return KindJSONLike }

func (e jsonContains) Match(rec *response.Record) Result {
	if !rec.BodyParsed {
		return notJSON(KindJSONLike, rec)
	}
	if path, reason, ok := contains(e.partial, rec.Body, "$"); !ok {
		return failf("jsonLike: %s: %s\nexpected to contain: %s\nactual: %s",
			path, reason, clip(e.partial.JSONString()), clip(rec.Body.JSONString()))
	}
	return pass()
}

// Contains reports whether partial is structurally contained in actual.
func Contains(partial, actual ldvalue.Value) bool {
	_, _, ok := contains(partial, actual, "$")
	return ok
}

func contains(partial, actual ldvalue.Value, path string) (string, string, bool) {
	switch partial.Type() {
	case ldvalue.ObjectType:
		if actual.Type() != ldvalue.ObjectType {
			return path, fmt.Sprintf("expected object, got %s", describe(actual)), false
		}
		present := map[string]bool{}
		for _, k := range actual.Keys() {
			present[k] = true
		}
		for _, k := range sortedKeys(partial) {
			if !present[k] {
				return path + "." + k, fmt.Sprintf("missing key, expected %s", describe(partial.GetByKey(k))), false
			}
			if p, reason, ok := contains(partial.GetByKey(k), actual.GetByKey(k), path+"."+k); !ok {
				return p, reason, false
			}
		}
		return "", "", true

	case ldvalue.ArrayType:
		if actual.Type() != ldvalue.ArrayType {
			return path, fmt.Sprintf("expected array, got %s", describe(actual)), false
		}
		if partial.Count() > actual.Count() {
			return path, fmt.Sprintf("expected at least %d elements, got %d", partial.Count(), actual.Count()), false
		}
		used := make([]bool, actual.Count())
		if i, ok := assignElements(partial, actual, 0, used); !ok {
			el := partial.GetByIndex(i)
			return fmt.Sprintf("%s[%d]", path, i), fmt.Sprintf("no element contains %s", clip(el.JSONString())), false
		}
		return "", "", true

	default:
		if !partial.Equal(actual) {
			return path, fmt.Sprintf("expected %s, got %s", describe(partial), describe(actual)), false
		}
		return "", "", true
	}
}

// assignElements finds a distinct actual element for every partial element
// from index i onward. On failure it returns the deepest partial index that
// could not be placed.
func assignElements(partial, actual ldvalue.Value, i int, used []bool) (int, bool) {
	if i == partial.Count() {
		return i, true
	}
	worst := i
	want := partial.GetByIndex(i)
	for j := 0; j < actual.Count(); j++ {
		if used[j] || !Contains(want, actual.GetByIndex(j)) {
			continue
		}
		used[j] = true
		failed, ok := assignElements(partial, actual, i+1, used)
		used[j] = false
		if ok {
			return failed, true
		}
		if failed > worst {
			worst = failed
		}
	}
	return worst, false
}

func sortedKeys(v ldvalue.Value) []string {
	keys := v.Keys()
	sort.Strings(keys)
	return keys
}

func describe(v ldvalue.Value) string {
	return fmt.Sprintf("%s %s", v.Type(), clip(v.JSONString()))
}
