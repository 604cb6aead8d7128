package hashtag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := LoadDefault()
	require.NoError(t, err)
	return e
}

func TestSuggest_RanksByFrequencyThenAffinity(t *testing.T) {
	e := newTestEngine(t)

	got := e.Suggest("Photography walk: night photography, street lights and bluesky vibes", nil)
	require.NotEmpty(t, got)
	assert.Equal(t, "photography", got[0], "most frequent token ranks first")
	assert.Equal(t, "bluesky", got[1], "affinity breaks the frequency tie")
	assert.Len(t, got, MaxSuggestions)
}

func TestSuggest_SweetSpotTiebreak(t *testing.T) {
	e := NewEngine(Table{})

	// Same frequency, no affinity: "garden" (6) is inside 5-12, "cat" (3)
	// and "extraordinarily" (15) are outside.
	got := e.Suggest("cat extraordinarily garden", nil)
	assert.Equal(t, []string{"garden", "cat", "extraordinarily"}, got)
}

func TestSuggest_SkipsStopwordsAndShortTokens(t *testing.T) {
	e := newTestEngine(t)

	got := e.Suggest("It is the app for you and me", nil)
	assert.Equal(t, []string{"app"}, got)
}

func TestSuggest_NeverReturnsExistingTag(t *testing.T) {
	e := newTestEngine(t)
	focus := "Launch day for my app launch party"

	got := e.Suggest(focus, []string{"#LAUNCH", "Party"})
	for _, tag := range got {
		assert.NotEqual(t, "launch", strings.ToLower(tag))
		assert.NotEqual(t, "party", strings.ToLower(tag))
	}
	assert.Contains(t, got, "day")
}

func TestSuggest_Deterministic(t *testing.T) {
	e := newTestEngine(t)
	focus := "golang rust python tutorial podcast design music writing art"

	first := e.Suggest(focus, []string{"art"})
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, e.Suggest(focus, []string{"art"}))
	}
}

func TestSuggest_EmptyFocus(t *testing.T) {
	e := newTestEngine(t)
	assert.Empty(t, e.Suggest("", nil))
	assert.Empty(t, e.Suggest("!!! ... ???", nil))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"launch", "launch"},
		{"#launch", "launch"},
		{"##Indie Dev", "IndieDev"},
		{"c++", "c"},
		{"open-source!", "opensource"},
		{"  snake_case ", "snake_case"},
		{"日本語", "日本語"},
		{"#", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"Launch", "#launch", "LAUNCH", "", "#", "app", "App!"})
	assert.Equal(t, []string{"Launch", "app"}, got)
}

func TestLine(t *testing.T) {
	assert.Equal(t, "#a #b", Line([]string{"a", "b"}))
	assert.Equal(t, "", Line(nil))
}

func TestParseTable_Invalid(t *testing.T) {
	_, err := ParseTable([]byte("affinity: [unclosed"))
	assert.Error(t, err)
}

func TestKeywords(t *testing.T) {
	e := newTestEngine(t)
	got := e.Keywords("Launch day for my app: the app launch")
	assert.Equal(t, []string{"launch", "day", "app"}, got)
}
