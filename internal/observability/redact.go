// Package observability provides logging utilities with sensitive data redaction.
package observability

import (
	"regexp"
	"strings"
)

// Redactor handles sensitive data masking in logs.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
	name        string
}

// NewRedactor creates a new redactor with default patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	// Vault tokens - service, batch, and legacy formats
	r.AddPattern(`hvs\.[a-zA-Z0-9\-_]{20,}`, "[REDACTED_VAULT_TOKEN]", "vault_service_token")
	r.AddPattern(`hvb\.[a-zA-Z0-9\-_]{20,}`, "[REDACTED_VAULT_TOKEN]", "vault_batch_token")
	r.AddPattern(`\bs\.[a-zA-Z0-9]{24}\b`, "[REDACTED_VAULT_TOKEN]", "vault_legacy_token")

	// AWS access key IDs
	r.AddPattern(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`, "[REDACTED_AWS_KEY]", "aws_access_key")

	// Generic hex API keys
	r.AddPattern(`\b[a-f0-9]{32}\b`, "[REDACTED_API_KEY]", "generic_api_key")

	// Bearer tokens
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]", "bearer_token")

	// Passwords embedded in connection URLs (postgres://, redis://, ...)
	r.AddPattern(`(://[^:/@\s]+:)[^@\s]+@`, "${1}[REDACTED]@", "url_password")

	// PEM blocks - certificate and key classes hold these, and backend
	// errors sometimes echo the payload back
	r.AddPattern(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`, "[REDACTED_PEM]", "pem_block")
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return // Skip invalid patterns
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
		name:        name,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// RedactMap redacts sensitive values in a map. Used when logging adapter
// settings, which may carry credentials under well-known names.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = r.redactValue(k, v)
	}
	return result
}

func (r *Redactor) redactValue(key string, value any) any {
	// Check if key itself suggests sensitive data
	lowerKey := strings.ToLower(key)
	sensitiveKeys := []string{"token", "secret", "password", "auth", "credential", "api_key", "apikey", "access_key"}
	for _, sk := range sensitiveKeys {
		if strings.Contains(lowerKey, sk) {
			return "[REDACTED]"
		}
	}

	switch v := value.(type) {
	case string:
		return r.Redact(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = r.redactValue("", item)
		}
		return result
	default:
		return value
	}
}

// RedactSettings redacts a flat adapter settings map.
func (r *Redactor) RedactSettings(settings map[string]string) map[string]string {
	result := make(map[string]string, len(settings))
	for k, v := range settings {
		if rv, ok := r.redactValue(k, v).(string); ok {
			result[k] = rv
		} else {
			result[k] = "[REDACTED]"
		}
	}
	return result
}
