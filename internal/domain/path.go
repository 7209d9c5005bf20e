package domain

import "strings"

// LookupPath resolves a dotted path in a decoded message. The boolean reports
// whether the final key is present, even when its value is null.
func LookupPath(message map[string]any, path string) (any, bool) {
	if message == nil || path == "" {
		return nil, false
	}
	current := message
	parts := strings.Split(path, ".")
	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		next, isMap := value.(map[string]any)
		if !isMap {
			return nil, false
		}
		current = next
	}
	return nil, false
}
