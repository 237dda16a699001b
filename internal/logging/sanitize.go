package logging

import (
	"regexp"
	"strings"
)

// Redacted replaces every secret value.
const Redacted = "[REDACTED]"

var (
	sensitiveKeys = []string{"password", "passwd", "pwd", "api_key", "token", "secret", "authorization", "auth"}

	inlineSecret = regexp.MustCompile(`(?i)(password|passwd|pwd|api_key|token|secret)['"]?\s*[:=]\s*['"]?[^\s'"]+`)
	authHeader   = regexp.MustCompile(`(?i)\b(basic|bearer)\s+[A-Za-z0-9+/=._~-]{8,}`)
)

// IsSensitiveKey reports whether a map key names a credential.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of v with credentials removed: values of
// sensitive map keys, key=value secrets and Authorization credentials
// inside strings. Maps and slices are walked recursively.
func Sanitize(v any) any {
	switch val := v.(type) {
	case string:
		return SanitizeString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Sanitize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = SanitizeString(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = SanitizeString(item)
		}
		return out
	default:
		return v
	}
}

// SanitizeString masks inline secrets in free text.
func SanitizeString(s string) string {
	s = inlineSecret.ReplaceAllString(s, "${1}="+Redacted)
	return authHeader.ReplaceAllString(s, "${1} "+Redacted)
}
