// Package graphemes measures and trims post text in user-perceived
// characters (extended grapheme clusters), the unit Bluesky counts its
// 300-character limit in.
package graphemes

import (
	"strings"

	"github.com/rivo/uniseg"
)

const (
	// MaxPost is the grapheme budget for a Bluesky post.
	MaxPost = 300
	// MaxPostBytes is the protocol's UTF-8 byte cap for the same field.
	MaxPostBytes = 3000

	Ellipsis = "…"
)

// Count returns the number of extended grapheme clusters in s.
func Count(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Fits reports whether s is within the post budget, both in graphemes and bytes.
func Fits(s string) bool {
	return len(s) <= MaxPostBytes && Count(s) <= MaxPost
}

// Head returns the first n grapheme clusters of s.
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for i := 0; i < n && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	return b.String()
}

// Truncate shortens s to at most n graphemes, ending in an ellipsis when
// anything was cut. Trailing whitespace before the ellipsis is dropped.
func Truncate(s string, n int) string {
	if Count(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	if n == 1 {
		return Ellipsis
	}
	return strings.TrimRight(Head(s, n-1), " \t\n") + Ellipsis
}
