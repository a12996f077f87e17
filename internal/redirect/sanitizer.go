// Package redirect checks client supplied return URLs before redirecting to them.
package redirect

import "strings"

// DefaultTarget is used whenever a candidate URL is rejected.
const DefaultTarget = "/"

// Sanitizer accepts only URLs that begin with the configured base URL.
// The match is an exact, case-sensitive prefix match without any normalization
// of the candidate.
type Sanitizer struct {
	baseURL string
}

// NewSanitizer builds a Sanitizer for baseURL. A trailing slash is appended to
// the base so that "https://base.com.evil.com" never matches "https://base.com".
func NewSanitizer(baseURL string) *Sanitizer {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Sanitizer{baseURL: baseURL}
}

// Sanitize returns the url unchanged and true when it is safe to redirect to.
func (s *Sanitizer) Sanitize(candidate string) (string, bool) {
	if candidate == "" || s.baseURL == "" {
		return "", false
	}
	if !strings.HasPrefix(candidate, s.baseURL) {
		return "", false
	}
	return candidate, true
}

// SafeOrDefault returns the candidate when safe, DefaultTarget otherwise.
func (s *Sanitizer) SafeOrDefault(candidate string) string {
	if safe, ok := s.Sanitize(candidate); ok {
		return safe
	}
	return DefaultTarget
}
