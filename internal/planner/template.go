// Package planner builds post plans, either deterministically from a
// template or through a generative backend that falls back to the template.
package planner

import (
	"fmt"
	"strings"

	"github.com/zebadrabbit/HelpMePost/internal/graphemes"
	"github.com/zebadrabbit/HelpMePost/internal/hashtag"
	"github.com/zebadrabbit/HelpMePost/internal/model"
	"github.com/zebadrabbit/HelpMePost/internal/plan"
)

const (
	// TemplateModel is the meta.model label of template plans.
	TemplateModel = "template"

	shrinkTags       = 3
	youTubeMinTags   = 8
	youTubeCategory  = "People & Blogs"
	maxMediaNames    = 5
	focusEmoji       = "✨ "
	ctaEmoji         = " 🔗"
	titleEmoji       = " 🎬"
	defaultCTAPrompt = "Link in post"
)

var toneConnectors = map[string]string{
	"cozy":        "Made slowly, with care.",
	"excited":     "I can't wait to share it!",
	"informative": "Here's what it does.",
	"funny":       "No overthinking was harmed in the making.",
	"serious":     "Built to do one job well.",
}

var fallbackVideoTags = []string{"update", "project", "tutorial", "demo", "behind the scenes", "tips", "how to", "short"}

// Options are the per-request knobs shared by both planners.
type Options struct {
	Targets []model.Platform
	// StrictTags locks the hashtag set to what the caller and backend
	// supplied; no suggestions are added.
	StrictTags bool
}

// BuildTemplate composes a plan from in and media without any network call.
// Identical input yields byte-identical output. tags may be nil, in which
// case no hashtag suggestions are added.
func BuildTemplate(tags *hashtag.Engine, in model.Intent, media []model.MediaRef, opts Options) (*model.Plan, error) {
	targets := opts.Targets
	if len(targets) == 0 {
		targets = plan.DefaultTargets
	}
	p := &model.Plan{
		Meta:             model.Meta{IsTemplate: true, Model: TemplateModel},
		SelectedMediaIDs: mediaIDs(media),
	}
	for _, t := range targets {
		switch t {
		case model.PlatformBluesky:
			p.Bluesky = templateBluesky(tags, in, media, opts.StrictTags)
		case model.PlatformYouTube:
			p.YouTube = templateYouTube(tags, in, media)
		}
	}
	out, err := plan.Validate(p, plan.Options{Targets: targets, CTATarget: ctaTarget(in)})
	if err != nil {
		return nil, fmt.Errorf("planner: template plan: %w", err)
	}
	return out, nil
}

// postParts holds the pieces of a template post so each shrink step can
// drop or cut one of them and recompose.
type postParts struct {
	emoji    string
	focus    string
	audience string
	tone     string
	tags     []string
	cta      string
}

func (pp postParts) compose() string {
	var b strings.Builder
	b.WriteString(pp.emoji)
	b.WriteString(pp.focus)
	for _, s := range []string{pp.audience, pp.tone} {
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	var tail []string
	if line := hashtag.Line(pp.tags); line != "" {
		tail = append(tail, line)
	}
	if pp.cta != "" {
		tail = append(tail, pp.cta)
	}
	if len(tail) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Join(tail, "\n"))
	}
	return b.String()
}

func templateBluesky(engine *hashtag.Engine, in model.Intent, media []model.MediaRef, strict bool) *model.BlueskySection {
	focus := strings.TrimSpace(in.Focus)
	pp := postParts{focus: sentence(focus)}
	if in.AddEmojis {
		pp.emoji = focusEmoji
	}
	if a := strings.TrimSpace(in.Audience); a != "" {
		pp.audience = sentence("For " + a)
	}
	pp.tone = toneConnector(in.Tone)

	pp.tags = hashtag.Dedupe(in.Tags)
	if !strict && engine != nil {
		pp.tags = append(pp.tags, engine.Suggest(focus, pp.tags)...)
	}
	if len(pp.tags) > plan.MaxHashtags {
		pp.tags = pp.tags[:plan.MaxHashtags]
	}
	if in.IncludeCTA {
		pp.cta = ctaLine(in.CTATarget)
		if in.AddEmojis {
			pp.cta += ctaEmoji
		}
	}

	text := pp.compose()
	if !graphemes.Fits(text) && len(pp.tags) > shrinkTags {
		pp.tags = pp.tags[:shrinkTags]
		text = pp.compose()
	}
	if !graphemes.Fits(text) && pp.tone != "" {
		pp.tone = ""
		text = pp.compose()
	}
	if !graphemes.Fits(text) {
		pp.focus = shrinkPart(pp.focus, func(s string) string { q := pp; q.focus = s; return q.compose() })
		text = pp.compose()
	}
	if !graphemes.Fits(text) && pp.audience != "" {
		pp.audience = shrinkPart(pp.audience, func(s string) string { q := pp; q.audience = s; return q.compose() })
		text = pp.compose()
	}
	if !graphemes.Fits(text) && len(pp.tags) > 0 {
		pp.tags = nil
		text = pp.compose()
	}
	text = clamp(text)

	return &model.BlueskySection{
		Text:     text,
		Hashtags: pp.tags,
		AltText:  altText(media),
	}
}

// shrinkPart returns the longest truncation of part for which
// compose(part) fits both the grapheme and the byte budget, or "" when
// none does. compose must grow with part.
func shrinkPart(part string, compose func(string) string) string {
	fits := func(n int) bool { return graphemes.Fits(compose(graphemes.Truncate(part, n))) }
	lo, hi := 0, graphemes.Count(part)
	if fits(hi) {
		return part
	}
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return graphemes.Truncate(part, lo)
}

// clamp is the last guard on both the grapheme and the byte budget.
func clamp(s string) string {
	if graphemes.Fits(s) {
		return s
	}
	for n := min(graphemes.Count(s), graphemes.MaxPost); n > 0; n-- {
		if t := graphemes.Truncate(s, n); graphemes.Fits(t) {
			return t
		}
	}
	return ""
}

func templateYouTube(engine *hashtag.Engine, in model.Intent, media []model.MediaRef) *model.YouTubeSection {
	focus := strings.TrimSpace(in.Focus)
	title := graphemes.Truncate(focus, plan.MaxYouTubeTitle)
	if in.AddEmojis {
		title = graphemes.Truncate(focus, plan.MaxYouTubeTitle-graphemes.Count(titleEmoji)) + titleEmoji
	}

	para1 := "In this update: " + sentence(focus)
	if tone := strings.TrimSpace(in.Tone); tone != "" {
		para1 += " Tone: " + sentence(tone)
	}
	if a := strings.TrimSpace(in.Audience); a != "" {
		para1 += " Made for " + sentence(a)
	}
	para2 := "Included media: (none)"
	if len(media) > 0 {
		names := make([]string, 0, maxMediaNames)
		for i, m := range media[:min(len(media), maxMediaNames)] {
			names = append(names, displayName(m, i))
		}
		para2 = "Included media: " + strings.Join(names, ", ") + "."
		if extra := len(media) - maxMediaNames; extra > 0 {
			para2 += fmt.Sprintf(" (+%d more)", extra)
		}
	}
	desc := para1 + "\n\n" + para2
	if in.IncludeCTA {
		desc += "\n\n" + ctaLine(in.CTATarget)
	}

	var tags []string
	seen := map[string]struct{}{}
	add := func(t string) {
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok || t == "" || len(tags) >= plan.MaxYouTubeTags {
			return
		}
		seen[k] = struct{}{}
		tags = append(tags, t)
	}
	for _, t := range hashtag.Dedupe(in.Tags) {
		add(t)
	}
	if engine != nil {
		for _, t := range engine.Keywords(strings.Join([]string{focus, in.Audience, in.Tone}, " ")) {
			add(t)
		}
	}
	for _, t := range fallbackVideoTags {
		if len(tags) >= youTubeMinTags {
			break
		}
		add(t)
	}

	return &model.YouTubeSection{
		Title:       title,
		Description: desc,
		Tags:        tags,
		Category:    youTubeCategory,
	}
}

// ctaLine words the call to action after what the target is.
func ctaLine(target string) string {
	t := strings.TrimSpace(target)
	lower := strings.ToLower(t)
	switch {
	case t == "":
		return defaultCTAPrompt
	case strings.HasPrefix(t, "@"):
		return "Follow: " + t
	case strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be"):
		return "Watch here: " + t
	}
	return "Link: " + t
}

func ctaTarget(in model.Intent) string {
	if !in.IncludeCTA {
		return ""
	}
	return strings.TrimSpace(in.CTATarget)
}

func toneConnector(tone string) string {
	t := strings.ToLower(strings.TrimSpace(tone))
	if t == "" {
		return ""
	}
	if c, ok := toneConnectors[t]; ok {
		return c
	}
	return "Vibe: " + sentence(strings.TrimSpace(tone))
}

// sentence terminates s with a period unless it already ends a sentence.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s[len(s)-1:], ".!?") || strings.HasSuffix(s, graphemes.Ellipsis) {
		return s
	}
	return s + "."
}

func altText(media []model.MediaRef) []string {
	if len(media) == 0 {
		return nil
	}
	out := make([]string, len(media))
	for i, m := range media {
		if name := strings.TrimSpace(m.Filename); name != "" {
			out[i] = mediaKind(m.ContentType) + ": " + name
			continue
		}
		out[i] = displayName(m, i)
	}
	return out
}

func mediaKind(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "Image"
	case strings.HasPrefix(ct, "video/"):
		return "Video"
	}
	return "File"
}

func displayName(m model.MediaRef, i int) string {
	if name := strings.TrimSpace(m.Filename); name != "" {
		return name
	}
	return fmt.Sprintf("%s %d", mediaKind(m.ContentType), i+1)
}

func mediaIDs(media []model.MediaRef) []int64 {
	ids := make([]int64, len(media))
	for i, m := range media {
		ids[i] = m.ID
	}
	return ids
}
