package plan

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

func validPlan() *model.Plan {
	return &model.Plan{
		Bluesky: &model.BlueskySection{
			Text:     "  Launch day for my app.\n\n#launch #app  ",
			Hashtags: []string{"launch", "#Launch", "app"},
			AltText:  []string{"Image: a.png", "Image: b.png"},
		},
		YouTube: &model.YouTubeSection{
			Title:       "Launch day",
			Description: "In this update: launch day.",
			Tags:        []string{"launch", "Launch", " behind the scenes "},
			Category:    "People & Blogs",
		},
		Meta:             model.Meta{IsTemplate: true},
		SelectedMediaIDs: []int64{1, 2},
	}
}

func requireSchemaError(t *testing.T, err error, field string) {
	t.Helper()
	var se *SchemaError
	require.True(t, errors.As(err, &se), "want *SchemaError, got %v", err)
	assert.Equal(t, field, se.Field)
}

func TestValidate_NormalizesValidPlan(t *testing.T) {
	got, err := Validate(validPlan(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "Launch day for my app.\n\n#launch #app", got.Bluesky.Text)
	assert.Equal(t, []string{"launch", "app"}, got.Bluesky.Hashtags)
	assert.Equal(t, []string{"launch", "behind the scenes"}, got.YouTube.Tags)
	assert.Equal(t, DefaultTargets, got.Meta.Targets)
	assert.True(t, got.Meta.IsTemplate)
}

func TestValidate_DropsUntargetedSections(t *testing.T) {
	got, err := Validate(validPlan(), Options{Targets: []model.Platform{model.PlatformBluesky}})
	require.NoError(t, err)
	assert.NotNil(t, got.Bluesky)
	assert.Nil(t, got.YouTube)
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	in := validPlan()
	_, err := Validate(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"launch", "#Launch", "app"}, in.Bluesky.Hashtags)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *model.Plan)
		opts   Options
		field  string
	}{
		{"missing bluesky", func(p *model.Plan) { p.Bluesky = nil }, Options{}, "bluesky"},
		{"empty text", func(p *model.Plan) { p.Bluesky.Text = "   " }, Options{}, "bluesky.text"},
		{"text too long", func(p *model.Plan) { p.Bluesky.Text = strings.Repeat("x", 301) }, Options{}, "bluesky.text"},
		{"text too many bytes", func(p *model.Plan) { p.Bluesky.Text = strings.Repeat("👨‍👩‍👧‍👦", 200) }, Options{}, "bluesky.text"},
		{"alt text misaligned", func(p *model.Plan) { p.Bluesky.AltText = []string{"only one"} }, Options{}, "bluesky.alt_text"},
		{"cta missing", func(p *model.Plan) {}, Options{CTATarget: "@me.bsky.social"}, "bluesky.text"},
		{"duplicate media", func(p *model.Plan) { p.SelectedMediaIDs = []int64{1, 1} }, Options{}, "selected_media_ids"},
		{"missing youtube", func(p *model.Plan) { p.YouTube = nil }, Options{}, "youtube"},
		{"empty title", func(p *model.Plan) { p.YouTube.Title = "" }, Options{}, "youtube.title"},
		{"long title", func(p *model.Plan) { p.YouTube.Title = strings.Repeat("t", 101) }, Options{}, "youtube.title"},
		{"empty description", func(p *model.Plan) { p.YouTube.Description = "" }, Options{}, "youtube.description"},
		{"no tags", func(p *model.Plan) { p.YouTube.Tags = nil }, Options{}, "youtube.tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(p)
			_, err := Validate(p, tt.opts)
			requireSchemaError(t, err, tt.field)
		})
	}
}

func TestValidate_ExactlyAtLimit(t *testing.T) {
	p := validPlan()
	p.Bluesky.Text = strings.Repeat("🙂", 300)
	_, err := Validate(p, Options{})
	assert.NoError(t, err)
}

func TestValidate_AltTextOptional(t *testing.T) {
	p := validPlan()
	p.Bluesky.AltText = nil
	got, err := Validate(p, Options{})
	require.NoError(t, err)
	assert.Nil(t, got.Bluesky.AltText)
}

func TestValidate_CapsLists(t *testing.T) {
	p := validPlan()
	p.Bluesky.Hashtags = []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	for i := 0; i < 30; i++ {
		p.YouTube.Tags = append(p.YouTube.Tags, strings.Repeat("t", i+1))
	}
	got, err := Validate(p, Options{})
	require.NoError(t, err)
	assert.Len(t, got.Bluesky.Hashtags, MaxHashtags)
	assert.Len(t, got.YouTube.Tags, MaxYouTubeTags)
}

func TestValidate_Nil(t *testing.T) {
	_, err := Validate(nil, Options{})
	requireSchemaError(t, err, "plan")
}

func TestNormalizeTargets(t *testing.T) {
	assert.Equal(t, DefaultTargets, NormalizeTargets(nil))
	assert.Equal(t, DefaultTargets, NormalizeTargets([]string{"tiktok"}))
	assert.Equal(t,
		[]model.Platform{model.PlatformYouTube, model.PlatformBluesky},
		NormalizeTargets([]string{" YouTube", "bluesky", "youtube"}))
}

func TestValidateIntent(t *testing.T) {
	got, err := ValidateIntent(model.Intent{
		Focus: "  Launch day for my app ",
		Tags:  []string{"#Launch", "launch", "my app"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Launch day for my app", got.Focus)
	assert.Equal(t, []string{"Launch", "myapp"}, got.Tags)
}

func TestValidateIntent_CTA(t *testing.T) {
	tests := []struct {
		name    string
		include bool
		target  string
		ok      bool
	}{
		{"no cta", false, "", true},
		{"handle", true, "@me.bsky.social", true},
		{"url", true, "https://example.com/x", true},
		{"include without target", true, "", false},
		{"target without include", false, "@me.bsky.social", false},
		{"bare word", true, "me", false},
		{"ftp", true, "ftp://example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateIntent(model.Intent{Focus: "x", IncludeCTA: tt.include, CTATarget: tt.target})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			requireSchemaError(t, err, "cta_target")
		})
	}
}

func TestValidateIntent_Bounds(t *testing.T) {
	_, err := ValidateIntent(model.Intent{})
	requireSchemaError(t, err, "focus")

	_, err = ValidateIntent(model.Intent{Focus: "x", Audience: strings.Repeat("a", MaxAudienceLen+1)})
	requireSchemaError(t, err, "audience")

	tags := make([]string, MaxIntentTags+1)
	for i := range tags {
		tags[i] = strings.Repeat("t", i+1)
	}
	_, err = ValidateIntent(model.Intent{Focus: "x", Tags: tags})
	requireSchemaError(t, err, "tags")

	_, err = ValidateIntent(model.Intent{Focus: "x", Tags: []string{strings.Repeat("t", MaxTagLen+1)}})
	requireSchemaError(t, err, "tags")
}
