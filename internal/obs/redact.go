// Package obs: redaction of upstream credentials that flow through
// endpoint specs as constant or runtime arguments.
package obs

import (
	"regexp"
	"strings"
)

// Redactor masks sensitive values before they reach the log stream.
// Endpoint specs routinely carry apiKey/bearer-token arguments that get
// substituted straight into a resolved URL or header; nothing upstream
// of logging strips them. Only the obs.Logger Redacted* methods apply a
// Redactor; other log calls, including the plain slog logger the runtime
// components use, print values as given.
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
	r.AddPattern(`[a-f0-9]{32,}`, "[REDACTED_API_KEY]", "generic_api_key")
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]", "bearer_token")
	r.AddPattern(`Authorization:\s*[^\s]+`, "Authorization: [REDACTED]", "auth_header")
	r.AddPattern(`([?&](?:api_?key|token|secret|password)=)[^&\s]+`, "${1}[REDACTED]", "query_credential")
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
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

// RedactArguments redacts argument values whose name suggests a
// credential, used before logging a plan entry's resolved ParameterArgs
// or HeaderArgs.
func (r *Redactor) RedactArguments(args map[string]string) map[string]string {
	result := make(map[string]string, len(args))
	for k, v := range args {
		result[k] = r.redactValue(k, v)
	}
	return result
}

func (r *Redactor) redactValue(key, value string) string {
	lowerKey := strings.ToLower(key)
	sensitiveKeys := []string{"key", "token", "secret", "password", "auth", "credential", "api_key", "apikey"}
	for _, sk := range sensitiveKeys {
		if strings.Contains(lowerKey, sk) {
			return "[REDACTED]"
		}
	}
	return r.Redact(value)
}

// RedactHeaders redacts sensitive HTTP headers before they're logged.
func (r *Redactor) RedactHeaders(headers map[string][]string) map[string][]string {
	sensitiveHeaders := map[string]bool{
		"authorization": true,
		"x-api-key":     true,
		"api-key":       true,
		"x-auth-token":  true,
		"cookie":        true,
		"set-cookie":    true,
	}

	result := make(map[string][]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			result[k] = []string{"[REDACTED]"}
		} else {
			result[k] = v
		}
	}
	return result
}
