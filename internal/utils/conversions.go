package utils

import "fmt"

// StringSlice converts a decoded YAML/JSON list to strings. Non-string scalars
// are formatted, nils are dropped.
func StringSlice(slice []any) []string {
	out := make([]string, 0, len(slice))
	for _, v := range slice {
		switch tv := v.(type) {
		case nil:
		case string:
			out = append(out, tv)
		default:
			out = append(out, fmt.Sprint(tv))
		}
	}
	return out
}
