package planner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zebadrabbit/HelpMePost/internal/graphemes"
	"github.com/zebadrabbit/HelpMePost/internal/hashtag"
	"github.com/zebadrabbit/HelpMePost/internal/model"
	"github.com/zebadrabbit/HelpMePost/internal/plan"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-2.5-flash"

// Models is the allow-list of backend model identifiers.
var Models = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash",
}

var (
	ErrInvalidModel      = errors.New("planner: model is not in the allow-list")
	ErrMissingCredential = errors.New("planner: generative backend has no credential")
)

// ValidModel reports whether name is in Models.
func ValidModel(name string) bool {
	return slices.Contains(Models, name)
}

// Path says which planner produced a plan.
type Path string

const (
	PathTemplate   Path = "template"
	PathGenerative Path = "generative"
)

// Failure kinds recorded on ExternalCallError.
const (
	KindMissingCredential = "missing_credential"
	KindTimeout           = "timeout"
	KindTransport         = "transport"
	KindMalformed         = "malformed_response"
	KindSchemaInvalid     = "schema_invalid"
)

// ExternalCallError describes why the generative path was abandoned. It is
// reported on Result and logged, never returned.
type ExternalCallError struct {
	Kind string
	Err  error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("planner: generative call failed (%s): %v", e.Kind, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// Result is the tagged outcome of Generate.
type Result struct {
	Plan     *model.Plan
	Path     Path
	Fallback *ExternalCallError // set when the generative path was tried and abandoned
}

// Request is one generation call.
type Request struct {
	Intent       model.Intent
	Media        []model.MediaRef
	Options      Options
	Model        string
	TemplateMode bool
}

// Prompt is what a Backend sends to the model.
type Prompt struct {
	System string
	User   string
}

// Backend returns the raw text of one model response.
type Backend interface {
	Generate(ctx context.Context, model string, p Prompt) (string, error)
}

// Generator runs the single guarded generative attempt. It holds only
// immutable state and is safe for concurrent use.
type Generator struct {
	backend      Backend
	tags         *hashtag.Engine
	timeout      time.Duration
	defaultModel string
	log          *zap.Logger
}

type Option func(*Generator)

func WithTimeout(d time.Duration) Option { return func(g *Generator) { g.timeout = d } }
func WithLogger(l *zap.Logger) Option    { return func(g *Generator) { g.log = l } }
func WithDefaultModel(m string) Option   { return func(g *Generator) { g.defaultModel = m } }

// NewGenerator returns a Generator. backend may be nil, which sends every
// non-template request down the fallback path.
func NewGenerator(backend Backend, tags *hashtag.Engine, opts ...Option) *Generator {
	g := &Generator{
		backend:      backend,
		tags:         tags,
		timeout:      60 * time.Second,
		defaultModel: DefaultModel,
		log:          zap.NewNop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns a validated plan. The only errors are ErrInvalidModel,
// returned before any backend call, and a template plan that fails
// validation. Every backend failure falls back to BuildTemplate.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	name := strings.TrimSpace(req.Model)
	if name == "" {
		name = g.defaultModel
	}
	if !ValidModel(name) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidModel, name)
	}

	if req.TemplateMode {
		p, err := BuildTemplate(g.tags, req.Intent, req.Media, req.Options)
		if err != nil {
			return Result{}, err
		}
		return Result{Plan: p, Path: PathTemplate}, nil
	}

	p, callErr := g.attempt(ctx, name, req)
	if callErr == nil {
		return Result{Plan: p, Path: PathGenerative}, nil
	}
	g.log.Warn("generative plan failed, using template",
		zap.String("model", name),
		zap.String("kind", callErr.Kind),
		zap.Error(callErr.Err))

	p, err := BuildTemplate(g.tags, req.Intent, req.Media, req.Options)
	if err != nil {
		return Result{}, err
	}
	return Result{Plan: p, Path: PathTemplate, Fallback: callErr}, nil
}

func (g *Generator) attempt(ctx context.Context, name string, req Request) (*model.Plan, *ExternalCallError) {
	if g.backend == nil {
		return nil, &ExternalCallError{Kind: KindMissingCredential, Err: ErrMissingCredential}
	}
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, &ExternalCallError{Kind: KindMalformed, Err: err}
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	raw, err := g.backend.Generate(cctx, name, prompt)
	if err != nil {
		kind := KindTransport
		switch {
		case errors.Is(err, ErrMissingCredential):
			kind = KindMissingCredential
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded):
			kind = KindTimeout
		}
		return nil, &ExternalCallError{Kind: kind, Err: err}
	}

	candidate, err := plan.Parse(raw)
	if err != nil {
		return nil, &ExternalCallError{Kind: KindMalformed, Err: err}
	}
	g.postProcess(candidate, name, req)

	out, err := plan.Validate(candidate, plan.Options{Targets: req.Options.Targets, CTATarget: ctaTarget(req.Intent)})
	if err != nil {
		return nil, &ExternalCallError{Kind: KindSchemaInvalid, Err: err}
	}
	return out, nil
}

// postProcess pins the fields the backend does not own (ids, meta), merges
// hashtags, puts the call to action back if it went missing and re-renders
// the hashtag line from the merged list.
func (g *Generator) postProcess(p *model.Plan, name string, req Request) {
	in := req.Intent
	p.SelectedMediaIDs = mediaIDs(req.Media)
	p.Meta = model.Meta{IsTemplate: false, Model: name}
	target := ctaTarget(in)

	if b := p.Bluesky; b != nil {
		tags := hashtag.Dedupe(slices.Concat(in.Tags, b.Hashtags, inlineTags(b.Text)))
		if !req.Options.StrictTags && g.tags != nil {
			tags = append(tags, g.tags.Suggest(in.Focus, tags)...)
		}
		if len(tags) > plan.MaxHashtags {
			tags = tags[:plan.MaxHashtags]
		}
		b.Hashtags = tags

		cta := ""
		if target != "" && !strings.Contains(b.Text, target) {
			cta = ctaLine(target)
		}
		b.Text = RenderHashtags(b.Text, cta, tags)
		if b.AltText == nil && len(req.Media) > 0 {
			b.AltText = altText(req.Media)
		}
	}
	if y := p.YouTube; y != nil && target != "" && !strings.Contains(y.Description, target) {
		y.Description = strings.TrimSpace(y.Description) + "\n\n" + ctaLine(target)
	}
}

var (
	reInlineTag = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_]+)`)
	reSpaceRun  = regexp.MustCompile(`[ \t]{2,}`)
	reTrailing  = regexp.MustCompile(`[ \t]+\n`)
	reNewlines  = regexp.MustCompile(`\n{3,}`)
)

func inlineTags(text string) []string {
	var out []string
	for _, m := range reInlineTag.FindAllStringSubmatch(text, -1) {
		out = append(out, m[2])
	}
	return out
}

// RenderHashtags strips inline hashtags from text and appends tags as the
// final line, with cta (if any) on the line before it. The body is cut
// with an ellipsis so the result stays within the post budget.
func RenderHashtags(text, cta string, tags []string) string {
	body := reInlineTag.ReplaceAllString(text, "$1")
	body = reSpaceRun.ReplaceAllString(body, " ")
	body = reTrailing.ReplaceAllString(body, "\n")
	body = strings.TrimSpace(reNewlines.ReplaceAllString(body, "\n\n"))

	var suffix string
	if cta != "" {
		suffix = "\n" + cta
	}
	if line := hashtag.Line(tags); line != "" {
		suffix += "\n\n" + line
	}
	if body == "" {
		return clamp(strings.TrimSpace(suffix))
	}
	composed := body + suffix
	if graphemes.Fits(composed) {
		return composed
	}
	room := graphemes.MaxPost - graphemes.Count(suffix)
	return clamp(graphemes.Truncate(body, room) + suffix)
}
