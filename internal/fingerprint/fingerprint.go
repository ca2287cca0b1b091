// Package fingerprint derives stable error signatures from log messages.
//
// Two messages that differ only by embedded identifiers (UUIDs, counters,
// timestamps rendered as digit runs) must collapse to the same signature so
// repeated occurrences of the same underlying error cluster together.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"unicode/utf8"
)

// Normalization regexes compiled once at package init.
var (
	reUUID   = regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	reDigits = regexp.MustCompile(`\b\d+\b`)
)

const maxNormalizedBytes = 500

// Signature computes the error signature for a message and request path.
// UUID-shaped substrings become "{uuid}", digit runs become "{n}", the
// normalized message is truncated to 500 characters and hashed together with
// the path as SHA-256 hex. Pure and deterministic; an empty message and path
// still produce a valid (degenerate) signature.
func Signature(message, path string) string {
	normalized := Normalize(message)
	sum := sha256.Sum256([]byte(normalized + "|" + path))
	return hex.EncodeToString(sum[:])
}

// Normalize applies the identifier substitutions and truncation without
// hashing. Exposed for tests and debugging.
func Normalize(message string) string {
	msg := reUUID.ReplaceAllString(message, "{uuid}")
	msg = reDigits.ReplaceAllString(msg, "{n}")
	return truncateString(msg, maxNormalizedBytes)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
