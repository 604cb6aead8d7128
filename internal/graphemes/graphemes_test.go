package graphemes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"hello", 5},
		{"café", 4},
		{"café", 4}, // combining accent
		{"日本語", 3},
		{"🙂", 1},
		{"👍🏽", 1},      // skin tone modifier
		{"👨‍👩‍👧‍👦", 1}, // ZWJ family
		{"🇯🇵🇫🇷", 2},    // two flags
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Count(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"empty", "", 5, ""},
		{"no truncation needed", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"truncate ASCII", "hello world", 6, "hello…"},
		{"trailing space dropped", "hello world", 7, "hello…"},
		{"truncate multibyte", "日本語テスト", 4, "日本語…"},
		{"keeps emoji sequence whole", "👨‍👩‍👧‍👦👨‍👩‍👧‍👦👨‍👩‍👧‍👦", 2, "👨‍👩‍👧‍👦…"},
		{"one", "hello", 1, "…"},
		{"zero length", "hello", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.s, tt.n)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, Count(got), max(tt.n, 0))
		})
	}
}

func TestFits(t *testing.T) {
	assert.True(t, Fits(strings.Repeat("a", MaxPost)))
	assert.False(t, Fits(strings.Repeat("a", MaxPost+1)))
	// 300 graphemes of 4 bytes each is still within 3000 bytes.
	assert.True(t, Fits(strings.Repeat("🙂", MaxPost)))
	// 300 ZWJ families exceed the byte cap long before the grapheme cap.
	assert.False(t, Fits(strings.Repeat("👨‍👩‍👧‍👦", MaxPost)))
}
