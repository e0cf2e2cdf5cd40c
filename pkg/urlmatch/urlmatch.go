// Package urlmatch implements the URL glob matching shared by network rule
// conditions and vault credential patterns. A pattern written once behaves
// identically in both contexts.
//
// Semantics: '*' matches any run of characters (including the empty run),
// every other character matches literally, matching is case-insensitive and
// anchored at both ends.
package urlmatch

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled URL pattern.
type Pattern struct {
	raw string
	g   glob.Glob
}

// Compile compiles a URL pattern. Only '*' is a metacharacter; everything
// else, including '?', '[' and '{', is quoted so it matches literally.
func Compile(pattern string) (*Pattern, error) {
	lowered := strings.ToLower(pattern)

	var b strings.Builder
	for i, segment := range strings.Split(lowered, "*") {
		if i > 0 {
			b.WriteByte('*')
		}
		b.WriteString(glob.QuoteMeta(segment))
	}

	g, err := glob.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid URL pattern %q: %w", pattern, err)
	}

	return &Pattern{raw: pattern, g: g}, nil
}

// Match reports whether the URL matches the pattern. Matching is
// case-insensitive and covers the entire URL.
func (p *Pattern) Match(url string) bool {
	return p.g.Match(strings.ToLower(url))
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// Match is a convenience for one-shot matching. Invalid patterns never match.
func Match(pattern, url string) bool {
	p, err := Compile(pattern)
	if err != nil {
		return false
	}
	return p.Match(url)
}
