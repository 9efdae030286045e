// Package observability holds the telemetry plumbing around the metering
// core: credential sanitization for error messages, a scrubbing span
// exporter, trace-correlated logging, and the OTel SDK bootstrap used by the
// CLI and demos.
package observability

import (
	"regexp"
	"strings"
)

const credentialRedacted = "[REDACTED]"

// credentialPatterns detects credential formats that must never appear in a
// span status message, hook payload, or log line. Provider API key shapes
// come first since they are the ones most likely to ride along in wrapped
// client errors.
var credentialPatterns = []*regexp.Regexp{
	// Anthropic keys, then generic sk-/pk- style keys (OpenAI, fal, ...).
	regexp.MustCompile(`\bsk-ant-[a-zA-Z0-9_-]{8,}\b`),
	regexp.MustCompile(`\b(?:sk|pk|rk)-[a-zA-Z0-9_-]{8,}\b`),
	regexp.MustCompile(`(?i)\b(?:sk|pk|rk|xox[baprs]|gh[pousr]|pat)_[a-z0-9_-]{8,}\b`),
	// Google API keys.
	regexp.MustCompile(`\bAIza[a-zA-Z0-9_-]{20,}\b`),
	// JWT-like tokens (three base64url segments separated by dots).
	regexp.MustCompile(`(?i)eyj[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}\.[a-z0-9_-]{8,}`),
	// Bearer token in header-like strings.
	regexp.MustCompile(`(?i)\bBearer\s+[a-z0-9_.\-/+=]{8,}\b`),
	// Parameter-style secrets: api_key=..., authorization=..., token=...
	regexp.MustCompile(`(?i)\b(?:api[_-]?key|authorization|password|secret|token)\s*[=:]\s*\S{4,}`),
}

// ContainsCredential reports whether s matches any known credential pattern.
// Strings shorter than 8 characters are skipped as a fast path.
func ContainsCredential(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, p := range credentialPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// SanitizeMessage replaces detected credential patterns in s with [REDACTED].
// This is the mandatory transformation applied to every error message before
// it is attached to a span or handed to a hook. If nothing matches, s is
// returned unchanged with no allocation.
func SanitizeMessage(s string) string {
	if len(s) < 8 {
		return s
	}
	result := s
	changed := false
	for _, p := range credentialPatterns {
		if p.MatchString(result) {
			result = p.ReplaceAllString(result, credentialRedacted)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.TrimSpace(result)
}
