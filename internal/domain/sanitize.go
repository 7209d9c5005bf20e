package domain

import "fmt"

// binaryLogLimit is the length above which a value is summarised in logs.
const binaryLogLimit = 200

var binaryFields = map[string]bool{"image_1920": true}

// SanitizeForLog returns a copy of values safe to print: binary payloads and
// very long strings are replaced with a size summary.
func SanitizeForLog(values Values) Values {
	out := make(Values, len(values))
	for key, value := range values {
		switch typed := value.(type) {
		case string:
			if binaryFields[key] || len(typed) > binaryLogLimit {
				out[key] = fmt.Sprintf("<%d bytes>", len(typed))
				continue
			}
		case []byte:
			out[key] = fmt.Sprintf("<%d bytes>", len(typed))
			continue
		}
		out[key] = value
	}
	return out
}
