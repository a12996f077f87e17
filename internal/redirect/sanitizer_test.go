package redirect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	s := NewSanitizer("https://base.com")

	tests := []struct {
		name string
		url  string
		ok   bool
	}{
		{"root", "https://base.com/", true},
		{"bare host", "https://base.com", false},
		{"path", "https://base.com/profile?tab=1", true},
		{"empty", "", false},
		{"relative", "/profile", false},
		{"other host", "https://evil.com/https://base.com", false},
		{"scheme confused", "http://base.com.evil.com", false},
		{"suffix host", "https://base.com.evil.com/profile", false},
		{"userinfo", "https://base.com@evil.com/", false},
		{"http downgrade", "http://base.com/profile", false},
		{"case differs", "https://BASE.com/profile", false},
		{"protocol relative", "//base.com/profile", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Sanitize(tt.url)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.url, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestSanitizeWithoutBase(t *testing.T) {
	_, ok := NewSanitizer("").Sanitize("https://anything")
	assert.False(t, ok)
}

func TestSafeOrDefault(t *testing.T) {
	s := NewSanitizer("https://base.com")
	assert.Equal(t, "https://base.com/x", s.SafeOrDefault("https://base.com/x"))
	assert.Equal(t, DefaultTarget, s.SafeOrDefault("https://base.com.evil.com/x"))
	assert.Equal(t, DefaultTarget, s.SafeOrDefault(""))
}
