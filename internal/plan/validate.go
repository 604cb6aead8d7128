// Package plan defines the canonical draft schema and enforces it.
//
// Every plan that leaves the planners passes through Validate. Untyped
// backend output is first projected into model.Plan by Decode (or Parse,
// which also cleans up raw text) so that loosely-typed data never travels
// further than this package.
package plan

import (
	"fmt"
	"strings"

	"github.com/zebadrabbit/HelpMePost/internal/graphemes"
	"github.com/zebadrabbit/HelpMePost/internal/hashtag"
	"github.com/zebadrabbit/HelpMePost/internal/model"
	"github.com/zebadrabbit/HelpMePost/internal/richtext"
)

const (
	MaxHashtags     = 5
	MaxYouTubeTitle = 100
	MaxYouTubeTags  = 20
	MaxIntentTags   = 10
	MaxTagLen       = 30
	MaxAudienceLen  = 80
	MaxToneLen      = 40
	MaxCTATargetLen = 100
	MaxFocusLen     = graphemes.MaxPost
)

// SchemaError reports the first field that breaks the schema.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("plan: %s: %s", e.Field, e.Reason)
}

func fieldErr(field, format string, args ...any) *SchemaError {
	return &SchemaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DefaultTargets is used when a request names no platform.
var DefaultTargets = []model.Platform{model.PlatformBluesky, model.PlatformYouTube}

// NormalizeTargets trims, lowercases and dedupes platform names, keeping
// only the ones a plan can carry. An empty result means DefaultTargets.
func NormalizeTargets(in []string) []model.Platform {
	var out []model.Platform
	for _, t := range in {
		p := model.Platform(strings.ToLower(strings.TrimSpace(t)))
		if p != model.PlatformBluesky && p != model.PlatformYouTube {
			continue
		}
		if !hasTarget(out, p) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]model.Platform(nil), DefaultTargets...)
	}
	return out
}

func hasTarget(ts []model.Platform, p model.Platform) bool {
	for _, t := range ts {
		if t == p {
			return true
		}
	}
	return false
}

// Options carries the request context a plan is checked against.
type Options struct {
	Targets []model.Platform
	// CTATarget, when set, must appear verbatim in bluesky.text.
	CTATarget string
}

func (o Options) targets() []model.Platform {
	if len(o.Targets) == 0 {
		return DefaultTargets
	}
	return o.Targets
}

// Validate checks p against the schema and returns a normalized copy:
// whitespace trimmed, tags deduplicated case-insensitively, list caps
// applied and sections for untargeted platforms dropped.
func Validate(p *model.Plan, opts Options) (*model.Plan, error) {
	if p == nil {
		return nil, fieldErr("plan", "must be an object")
	}
	targets := opts.targets()
	out := &model.Plan{
		Meta:             p.Meta,
		SelectedMediaIDs: append([]int64(nil), p.SelectedMediaIDs...),
	}
	out.Meta.Targets = append([]model.Platform(nil), targets...)

	seen := make(map[int64]struct{}, len(out.SelectedMediaIDs))
	for _, id := range out.SelectedMediaIDs {
		if _, dup := seen[id]; dup {
			return nil, fieldErr("selected_media_ids", "duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}

	if hasTarget(targets, model.PlatformBluesky) {
		b, err := validateBluesky(p.Bluesky, len(out.SelectedMediaIDs), opts.CTATarget)
		if err != nil {
			return nil, err
		}
		out.Bluesky = b
	}
	if hasTarget(targets, model.PlatformYouTube) {
		y, err := validateYouTube(p.YouTube)
		if err != nil {
			return nil, err
		}
		out.YouTube = y
	}
	return out, nil
}

func validateBluesky(in *model.BlueskySection, mediaCount int, ctaTarget string) (*model.BlueskySection, error) {
	if in == nil {
		return nil, fieldErr("bluesky", "required for the bluesky target")
	}
	b := &model.BlueskySection{Text: strings.TrimSpace(in.Text)}
	if b.Text == "" {
		return nil, fieldErr("bluesky.text", "must be non-empty")
	}
	if n := graphemes.Count(b.Text); n > graphemes.MaxPost {
		return nil, fieldErr("bluesky.text", "is %d graphemes, limit %d", n, graphemes.MaxPost)
	}
	if n := len(b.Text); n > graphemes.MaxPostBytes {
		return nil, fieldErr("bluesky.text", "is %d bytes, limit %d", n, graphemes.MaxPostBytes)
	}
	if ctaTarget = strings.TrimSpace(ctaTarget); ctaTarget != "" && !strings.Contains(b.Text, ctaTarget) {
		return nil, fieldErr("bluesky.text", "does not contain the call-to-action target")
	}

	if in.Hashtags != nil {
		b.Hashtags = hashtag.Dedupe(in.Hashtags)
		if len(b.Hashtags) > MaxHashtags {
			b.Hashtags = b.Hashtags[:MaxHashtags]
		}
	}
	if in.AltText != nil {
		if len(in.AltText) != mediaCount {
			return nil, fieldErr("bluesky.alt_text", "has %d entries for %d selected media", len(in.AltText), mediaCount)
		}
		b.AltText = make([]string, len(in.AltText))
		for i, a := range in.AltText {
			b.AltText[i] = strings.TrimSpace(a)
		}
	}
	return b, nil
}

func validateYouTube(in *model.YouTubeSection) (*model.YouTubeSection, error) {
	if in == nil {
		return nil, fieldErr("youtube", "required for the youtube target")
	}
	y := &model.YouTubeSection{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
	}
	if y.Title == "" {
		return nil, fieldErr("youtube.title", "must be non-empty")
	}
	if n := graphemes.Count(y.Title); n > MaxYouTubeTitle {
		return nil, fieldErr("youtube.title", "is %d graphemes, limit %d", n, MaxYouTubeTitle)
	}
	if y.Description == "" {
		return nil, fieldErr("youtube.description", "must be non-empty")
	}
	if in.Tags == nil {
		return nil, fieldErr("youtube.tags", "must be a list of strings")
	}
	y.Tags = dedupeFold(in.Tags)
	if len(y.Tags) > MaxYouTubeTags {
		y.Tags = y.Tags[:MaxYouTubeTags]
	}
	return y, nil
}

// dedupeFold trims entries and drops empties and case-insensitive repeats.
// Unlike hashtag.Dedupe it keeps inner spaces, which video tags allow.
func dedupeFold(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "#"))
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ValidateIntent checks a creator intent and returns it trimmed, with tags
// normalized and deduplicated case-insensitively.
func ValidateIntent(in model.Intent) (model.Intent, error) {
	out := model.Intent{
		Focus:      strings.TrimSpace(in.Focus),
		Audience:   strings.TrimSpace(in.Audience),
		Tone:       strings.TrimSpace(in.Tone),
		AddEmojis:  in.AddEmojis,
		IncludeCTA: in.IncludeCTA,
		CTATarget:  strings.TrimSpace(in.CTATarget),
	}
	if out.Focus == "" {
		return model.Intent{}, fieldErr("focus", "is required")
	}
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"focus", out.Focus, MaxFocusLen},
		{"audience", out.Audience, MaxAudienceLen},
		{"tone", out.Tone, MaxToneLen},
		{"cta_target", out.CTATarget, MaxCTATargetLen},
	} {
		if n := graphemes.Count(f.value); n > f.max {
			return model.Intent{}, fieldErr(f.name, "is %d characters, limit %d", n, f.max)
		}
	}

	out.Tags = hashtag.Dedupe(in.Tags)
	if len(out.Tags) > MaxIntentTags {
		return model.Intent{}, fieldErr("tags", "has %d tags, limit %d", len(out.Tags), MaxIntentTags)
	}
	for _, t := range out.Tags {
		if graphemes.Count(t) > MaxTagLen {
			return model.Intent{}, fieldErr("tags", "tag %q is longer than %d characters", t, MaxTagLen)
		}
	}

	switch {
	case out.IncludeCTA && out.CTATarget == "":
		return model.Intent{}, fieldErr("cta_target", "is required when include_cta is set")
	case !out.IncludeCTA && out.CTATarget != "":
		return model.Intent{}, fieldErr("cta_target", "is set but include_cta is false")
	case out.CTATarget != "" && !richtext.IsHandle(out.CTATarget) && !richtext.IsURL(out.CTATarget):
		return model.Intent{}, fieldErr("cta_target", "must be an @handle or an absolute http(s) URL")
	}
	return out, nil
}
