package policy

import (
	"regexp"
	"strings"
)

var (
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
	keyParamPattern  = regexp.MustCompile(`([?&](?:key|api_key|apiKey)=)[^&\s"']+`)
)

// RedactSecrets masks provider API keys, both bare and as URL parameters.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := keyParamPattern.ReplaceAllString(input, "${1}[REDACTED_KEY]")
	out = googleKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	return out, out != input
}

// Redact applies both PII and secret redaction.
func Redact(input string) (string, bool) {
	out, pii := RedactPII(input)
	out, secrets := RedactSecrets(out)
	return out, pii || secrets
}

// MaskKey keeps the first and last four characters of a key for display.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
