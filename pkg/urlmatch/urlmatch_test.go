package urlmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		url     string
		want    bool
	}{
		{
			name:    "wildcard scheme and subdomain",
			pattern: "*://*.example.com/*",
			url:     "https://shop.example.com/cart",
			want:    true,
		},
		{
			name:    "lookalike domain rejected",
			pattern: "*://*.example.com/*",
			url:     "https://example.com.evil.net/",
			want:    false,
		},
		{
			name:    "anchored at start",
			pattern: "example.com/*",
			url:     "https://example.com/page",
			want:    false,
		},
		{
			name:    "anchored at end",
			pattern: "https://example.com",
			url:     "https://example.com/page",
			want:    false,
		},
		{
			name:    "star matches empty run",
			pattern: "https://example.com/*",
			url:     "https://example.com/",
			want:    true,
		},
		{
			name:    "case insensitive",
			pattern: "https://Example.COM/*",
			url:     "HTTPS://example.com/Login",
			want:    true,
		},
		{
			name:    "question mark is literal",
			pattern: "https://example.com/page?tab=*",
			url:     "https://example.com/pagextab=1",
			want:    false,
		},
		{
			name:    "question mark matches itself",
			pattern: "https://example.com/page?tab=*",
			url:     "https://example.com/page?tab=settings",
			want:    true,
		},
		{
			name:    "brackets are literal",
			pattern: "https://example.com/[id]",
			url:     "https://example.com/[id]",
			want:    true,
		},
		{
			name:    "exact match without wildcards",
			pattern: "https://example.com/login",
			url:     "https://example.com/login",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.url))

			// One-shot helper agrees with the compiled form.
			assert.Equal(t, tt.want, Match(tt.pattern, tt.url))
		})
	}
}

func TestCompilePreservesRawPattern(t *testing.T) {
	p, err := Compile("*://*.Example.com/*")
	require.NoError(t, err)
	assert.Equal(t, "*://*.Example.com/*", p.String())
}

func TestMatchInvalidPatternNeverMatches(t *testing.T) {
	// Quoting makes every pattern compilable, so the helper only returns
	// false for genuinely unmatchable input rather than erroring.
	assert.False(t, Match("https://example.com/a", "https://example.com/b"))
}
