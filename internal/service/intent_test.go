package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

func TestParseIntentText(t *testing.T) {
	tests := []struct {
		name                  string
		text                  string
		focus, audience, tone string
	}{
		{"builder", "Focus: Launch day\nAudience: indie devs\nTone: excited", "Launch day", "indie devs", "excited"},
		{"case and spacing", "  focus :  New zine \r\n TONE: cozy", "New zine", "", "cozy"},
		{"no focus line", "My new print\nTone: funny", "My new print", "", "funny"},
		{"empty", "  \n ", "", "", ""},
		{"colon in value", "Focus: Talk at 10:30", "Talk at 10:30", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, a, to := ParseIntentText(tt.text)
			assert.Equal(t, tt.focus, f)
			assert.Equal(t, tt.audience, a)
			assert.Equal(t, tt.tone, to)
		})
	}
}

func TestApplyIntentText_ExplicitFieldsWin(t *testing.T) {
	r := GenerateRequest{Intent: model.Intent{Tone: "serious"}}
	r.ApplyIntentText("Focus: Launch\nTone: cozy\nAudience: makers")
	assert.Equal(t, "Launch", r.Focus)
	assert.Equal(t, "makers", r.Audience)
	assert.Equal(t, "serious", r.Tone)
}
