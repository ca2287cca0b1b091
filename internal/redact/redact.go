// Package redact scrubs sensitive substrings from log messages before they
// are persisted. Best-effort heuristic, not a security boundary: it may
// under- or over-redact.
package redact

import "regexp"

var (
	reEmail  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	reBearer = regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`)
	reSecret = regexp.MustCompile(`(?i)(key|token|secret|password|auth|pwd)([=\s:]+)([a-zA-Z0-9\-_]{8,})`)
)

// Redact replaces email-shaped substrings with [EMAIL], bearer tokens with
// Bearer [REDACTED], and the values of key/token/secret/password/auth/pwd
// pairs with [REDACTED], preserving the key and separator. Idempotent: the
// replacement markers never match the patterns again.
func Redact(message string) string {
	out := reEmail.ReplaceAllString(message, "[EMAIL]")
	out = reBearer.ReplaceAllString(out, "Bearer [REDACTED]")
	out = reSecret.ReplaceAllString(out, "${1}${2}[REDACTED]")
	return out
}
