package runner

import (
	"strconv"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Lookup resolves a dotted path ("id", "errors.0.msg") in a JSON value and
// returns it as a variable value: strings as-is, everything else as JSON.
// An empty path or "$" selects the whole value.
func Lookup(v ldvalue.Value, path string) (string, bool) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			switch v.Type() {
			case ldvalue.ObjectType:
				if !contains(v.Keys(), seg) {
					return "", false
				}
				v = v.GetByKey(seg)
			case ldvalue.ArrayType:
				i, err := strconv.Atoi(seg)
				if err != nil || i < 0 || i >= v.Count() {
					return "", false
				}
				v = v.GetByIndex(i)
			default:
				return "", false
			}
		}
	}
	switch v.Type() {
	case ldvalue.NullType:
		return "", false
	case ldvalue.StringType:
		return v.StringValue(), true
	}
	return v.JSONString(), true
}

func contains(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}
