package classify

import "crmscan/pkg/email"

// containsEmail walks a decoded JSON value depth-first and reports whether
// any string field equals the target address or contains it as an
// address-shaped substring. Decoded JSON is acyclic, so the walk needs no
// visited set.
func containsEmail(v any, target string) bool {
	switch val := v.(type) {
	case string:
		if email.Normalize(val) == target {
			return true
		}
		for _, m := range email.Pattern.FindAllString(val, -1) {
			if email.Normalize(m) == target {
				return true
			}
		}
	case map[string]any:
		for _, child := range val {
			if containsEmail(child, target) {
				return true
			}
		}
	case []any:
		for _, child := range val {
			if containsEmail(child, target) {
				return true
			}
		}
	}
	return false
}
