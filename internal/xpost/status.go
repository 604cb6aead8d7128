package xpost

import (
	"strings"
	"unicode/utf8"
)

// MaxStatus is the X post length, counted in runes.
const MaxStatus = 280

const ellipsis = "…"

// FitStatus shortens text to max runes. A trailing hashtag line is kept
// whole and the body before it is cut with an ellipsis; when even the
// hashtag line does not fit, the whole text is cut instead.
func FitStatus(text string, max int) string {
	text = strings.TrimSpace(text)
	if runeLen(text) <= max {
		return text
	}

	body, tail := splitHashtagLine(text)
	if tail != "" && runeLen(tail)+runeLen(ellipsis) < max {
		avail := max - runeLen(tail) - runeLen(ellipsis)
		trunc := strings.TrimRight(truncateRunes(body, avail), " \t\n")
		return trunc + ellipsis + tail
	}
	if max <= 0 {
		return ""
	}
	return strings.TrimRight(truncateRunes(text, max-1), " \t\n") + ellipsis
}

// splitHashtagLine returns text before its last line and that line with
// its leading separator, when the last line holds only hashtags.
func splitHashtagLine(text string) (string, string) {
	i := strings.LastIndexByte(text, '\n')
	if i < 0 {
		return text, ""
	}
	last := text[i+1:]
	fields := strings.Fields(last)
	if len(fields) == 0 {
		return text, ""
	}
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") || len(f) < 2 {
			return text, ""
		}
	}
	body := strings.TrimRight(text[:i], "\n")
	return body, text[len(body):]
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runeLen(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
