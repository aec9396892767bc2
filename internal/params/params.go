// Package params cleans the flat filter bag shared by every upstream call.
// The CFPB search API is string-typed and treats an empty parameter as a
// different query than an absent one, so empty values are removed entirely.
package params

import (
	"net/url"
	"strconv"
	"strings"
)

// CleanScalar canonicalizes a single candidate value. It returns nil when the
// value should be treated as absent. Booleans become the literal strings
// "true"/"false"; strings are trimmed, and a string that case-insensitively
// spells a boolean is lowercased so mixed-case inputs from tool callers are
// tolerated. Numbers pass through unchanged.
func CleanScalar(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		trimmed := strings.TrimSpace(x)
		if trimmed == "" {
			return nil
		}
		lowered := strings.ToLower(trimmed)
		if lowered == "true" || lowered == "false" {
			return lowered
		}
		return trimmed
	default:
		return v
	}
}

// CleanList normalizes each element independently and drops the list when
// nothing survives. A forwarded empty list is never produced.
func CleanList(values []any) []any {
	out := make([]any, 0, len(values))
	for _, item := range values {
		cleaned := CleanScalar(item)
		if cleaned == nil {
			continue
		}
		out = append(out, cleaned)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Prune removes nil/empty entries from a candidate parameter map. The result
// never contains a key whose value is nil, "", or an empty list. Pure and
// total over the supported value shapes; unknown types pass through as-is.
func Prune(in map[string]any) map[string]any {
	cleaned := make(map[string]any, len(in))
	for key, value := range in {
		var normalized any
		switch v := value.(type) {
		case []any:
			if lst := CleanList(v); lst != nil {
				normalized = lst
			}
		case []string:
			lst := make([]any, 0, len(v))
			for _, s := range v {
				lst = append(lst, s)
			}
			if lst = CleanList(lst); lst != nil {
				normalized = lst
			}
		default:
			normalized = CleanScalar(value)
		}
		if normalized == nil {
			continue
		}
		cleaned[key] = normalized
	}
	return cleaned
}

// Encode renders a pruned parameter map as url.Values. List values are
// emitted as repeated keys, which is how the upstream API expects them.
func Encode(in map[string]any) url.Values {
	values := url.Values{}
	for key, value := range in {
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				values.Add(key, Stringify(item))
			}
		case []string:
			for _, item := range v {
				values.Add(key, item)
			}
		default:
			values.Add(key, Stringify(value))
		}
	}
	return values
}

// Stringify converts a normalized scalar into its query-string form.
func Stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
