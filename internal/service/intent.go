package service

import "strings"

// ParseIntentText reads the builder format, one "Focus:", "Audience:" or
// "Tone:" line each, matched case-insensitively. Without a Focus line the
// first non-empty line is the focus.
func ParseIntentText(text string) (focus, audience, tone string) {
	first := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "focus":
			focus = value
		case "audience":
			audience = value
		case "tone":
			tone = value
		}
	}
	if focus == "" {
		focus = first
	}
	return focus, audience, tone
}

// ApplyIntentText fills the intent fields the request left empty from
// text in the builder format.
func (r *GenerateRequest) ApplyIntentText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	focus, audience, tone := ParseIntentText(text)
	if strings.TrimSpace(r.Focus) == "" {
		r.Focus = focus
	}
	if strings.TrimSpace(r.Audience) == "" {
		r.Audience = audience
	}
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = tone
	}
}
