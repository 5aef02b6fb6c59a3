// Package policy masks personal data before user text reaches the logs.
package policy

import (
	"regexp"
	"unicode/utf8"
)

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Cards run before phones so that long digit runs are not reported as phones.
var rules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b0x[0-9a-fA-F]{64}\b`), "[REDACTED_KEY]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks emails, card and phone numbers and raw 32 byte hex keys.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		next := r.pattern.ReplaceAllString(out, r.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// LogText redacts s and caps it at max runes for a log field.
func LogText(s string, max int) string {
	s, _ = RedactPII(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}
