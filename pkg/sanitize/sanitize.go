package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// Marker replaces every secret segment found by this package.
const Marker = "<REDACTED>"

// Secret-bearing URL shapes. Each pattern captures the prefix to keep in
// group 1; everything after it up to the next delimiter is the secret.
var urlPatterns = []*regexp.Regexp{
	// Discord webhooks: .../api/webhooks/<id>/<token>
	regexp.MustCompile(`(?i)((?:https?://)?[^\s/]*/api/webhooks/\d+/)[A-Za-z0-9_.-]+`),
	// Telegram bot URLs: .../bot<id>:<token>/...
	regexp.MustCompile(`(?i)((?:https?://)?[^\s/]*/bot\d+:)[A-Za-z0-9_-]+`),
	// Query-string credentials: ?api_key=..., &token=..., etc.
	regexp.MustCompile(`(?i)([?&](?:api_?key|token|secret|password|auth)=)[^&\s]+`),
}

// Field names whose values are replaced wholesale, wherever they appear.
var sensitiveFields = []string{
	"token", "key", "secret", "password", "auth",
	"webhook", "credential", "bearer",
}

// fieldPattern matches a serialized `"name": value` pair whose name contains
// a sensitive word, at any nesting depth. Group 1 keeps the name and the
// separator; the value, string or bare scalar, is replaced wholesale.
var fieldPattern = regexp.MustCompile(
	`(?i)("[^"]*(?:` + strings.Join(sensitiveFields, "|") + `)[^"]*"\s*:\s*)` +
		`("(?:[^"\\]|\\.)*"|-?[0-9][0-9.eE+-]*|true|false|null)`)

// String rewrites every secret-shaped segment in s with the marker.
// Applying String twice yields the same result as applying it once.
func String(s string) string {
	for _, re := range urlPatterns {
		s = re.ReplaceAllString(s, "${1}"+Marker)
	}
	return s
}

// Record scrubs one serialized log record: the URL pass of String plus
// wholesale replacement of any value keyed by a sensitive field name, so a
// structured field like token or webhook_url never reaches a sink intact.
// Like String, Record is idempotent.
func Record(s string) string {
	s = String(s)
	return fieldPattern.ReplaceAllString(s, `${1}"`+Marker+`"`)
}

// SensitiveField reports whether a field name should have its entire value
// redacted. Matching is case-insensitive and substring-based, so
// "webhook_url" and "AuthToken" both match.
func SensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, f := range sensitiveFields {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Value redacts v recursively. Sensitive map keys have their values replaced
// wholesale; other strings are pattern-scrubbed; slices and maps are walked.
// Non-container, non-string values pass through unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case error:
		return Error(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if SensitiveField(k) {
				out[k] = Marker
				continue
			}
			out[k] = Value(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if SensitiveField(k) {
				out[k] = Marker
				continue
			}
			out[k] = String(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = String(val)
		}
		return out
	default:
		return v
	}
}

// Error formats err as "<TypeName>: <sanitized message>". Returns "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%T: %s", err, String(err.Error()))
}
