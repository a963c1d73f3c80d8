package security

import (
	"regexp"
)

// Keys that allow prototype pollution when client JSON is merged into
// objects downstream. Stripped recursively before any client-supplied
// map reaches business logic.
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

var (
	scriptTagPattern    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script[^>]*>`)
	javascriptPattern   = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandlerPattern = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

// SanitizeMap strips dangerous keys and scrubs string values recursively.
// The input is not mutated.
func SanitizeMap(input map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}

	out := make(map[string]interface{}, len(input))
	for key, value := range input {
		if blockedKeys[key] {
			continue
		}
		out[key] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return SanitizeString(v)
	case map[string]interface{}:
		return SanitizeMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return value
	}
}

// SanitizeString removes script tags, javascript: URIs and inline event
// handler patterns from a string field
func SanitizeString(s string) string {
	s = scriptTagPattern.ReplaceAllString(s, "")
	s = javascriptPattern.ReplaceAllString(s, "")
	s = eventHandlerPattern.ReplaceAllString(s, "")
	return s
}
