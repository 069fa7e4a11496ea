package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// NormalizeError turns a non-2xx backend body into a client-facing message.
// Fallback chain: a structured field (detail, error, error.message, message),
// then the raw body text, then a generic message naming the status.
func NormalizeError(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return genericError(status)
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		if msg := structuredMessage(v); msg != "" {
			return truncate(msg)
		}
	}
	return truncate(text)
}

func genericError(status int) string {
	return fmt.Sprintf("processing backend returned status %d", status)
}

func structuredMessage(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range []string{"detail", "error", "message", "msg"} {
			if msg := fieldMessage(t[key]); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// fieldMessage handles the shapes FastAPI and friends put in error fields:
// plain strings, {"message": ...} objects, and validation lists of {"msg": ...}.
func fieldMessage(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range []string{"message", "msg", "detail"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	case []any:
		var parts []string
		for _, item := range t {
			if msg := fieldMessage(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func truncate(s string) string {
	if len(s) <= maxErrorText {
		return s
	}
	cut := maxErrorText
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
