package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zebadrabbit/HelpMePost/internal/model"
	"github.com/zebadrabbit/HelpMePost/internal/plan"
)

const systemPrompt = "You are a helpful assistant that outputs ONLY valid JSON. " +
	"No markdown, no code fences, no extra keys, no trailing text."

type mediaSummary struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type userPrompt struct {
	Task            string           `json:"task"`
	Focus           string           `json:"focus"`
	Audience        string           `json:"audience"`
	Tone            string           `json:"tone"`
	Tags            []string         `json:"tags"`
	MediaSummary    []mediaSummary   `json:"media_summary"`
	GenerateTargets []model.Platform `json:"generate_targets"`
	AddEmojis       bool             `json:"add_emojis"`
	IncludeCTA      bool             `json:"include_cta"`
	CTATarget       string           `json:"cta_target"`
	RequiredSchema  map[string]any   `json:"required_schema"`
	Rules           []string         `json:"rules"`
}

// BuildPrompt renders req as the system instruction plus a JSON user
// message describing the schema and the writing rules.
func BuildPrompt(req Request) (Prompt, error) {
	in := req.Intent
	targets := req.Options.Targets
	if len(targets) == 0 {
		targets = plan.DefaultTargets
	}
	wantBluesky, wantYouTube := false, false
	for _, t := range targets {
		wantBluesky = wantBluesky || t == model.PlatformBluesky
		wantYouTube = wantYouTube || t == model.PlatformYouTube
	}

	schema := map[string]any{}
	rules := []string{
		"Return ONLY a single JSON object matching required_schema.",
		"Prefer specific nouns from the focus and media.",
		"Avoid opening with salesy questions like 'Are you looking to...'.",
		"Keep the voice consistent with the requested tone.",
		"If a section is not requested, OMIT its key entirely.",
	}
	if wantBluesky {
		schema["bluesky"] = map[string]string{
			"text":     "string (<= 300 characters, hashtags inline at the end)",
			"hashtags": "array of strings (2-5 items, no '#')",
			"alt_text": "array of strings (one per media item, same order as media_summary)",
		}
		rules = append(rules,
			"Bluesky: the opening line is a concrete hook that restates the focus in plain English.",
			"Bluesky voice: first person unless the focus clearly implies otherwise.",
			"Bluesky.hashtags: 2-5 items without '#', at least 2 specific to the focus.",
			"Bluesky.alt_text must have the same length and order as media_summary.",
		)
	}
	if wantYouTube {
		schema["youtube"] = map[string]string{
			"title":       "string (<= 100 characters)",
			"description": "string (2-5 short paragraphs)",
			"tags":        "array of strings (8-20 items)",
			"category":    "string (human-readable)",
		}
	}
	if in.AddEmojis {
		rules = append(rules,
			"Emojis are allowed but sparingly.",
			"YouTube.title: at most 2 emojis, only at the start or end.",
			"Bluesky.text: at most 3 emojis.",
		)
	} else {
		rules = append(rules, "Do not use emojis.")
	}
	if target := ctaTarget(in); target != "" {
		rules = append(rules,
			"Include a short call-to-action line near the end; keep hashtags as the final line.",
			fmt.Sprintf("The call-to-action MUST include this exact string verbatim: %s", target),
		)
		if lower := strings.ToLower(target); !strings.Contains(lower, "youtube.com") && !strings.Contains(lower, "youtu.be") {
			rules = append(rules, "The call-to-action target is a link or handle, not a video; do not call it a video.")
		}
	} else {
		rules = append(rules, "Do not include any call-to-action.")
	}

	media := make([]mediaSummary, len(req.Media))
	for i, m := range req.Media {
		media[i] = mediaSummary{ID: m.ID, Filename: m.Filename, ContentType: m.ContentType, SizeBytes: m.Size}
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	body, err := json.Marshal(userPrompt{
		Task:            "Generate a posting plan.",
		Focus:           in.Focus,
		Audience:        in.Audience,
		Tone:            in.Tone,
		Tags:            tags,
		MediaSummary:    media,
		GenerateTargets: targets,
		AddEmojis:       in.AddEmojis,
		IncludeCTA:      in.IncludeCTA,
		CTATarget:       in.CTATarget,
		RequiredSchema:  schema,
		Rules:           rules,
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("planner: encode prompt: %w", err)
	}
	return Prompt{System: systemPrompt, User: string(body)}, nil
}
