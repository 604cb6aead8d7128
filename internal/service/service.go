// Package service wires the planners, the publish client and the media
// store into the two request flows the CLI and HTTP API expose.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zebadrabbit/HelpMePost/internal/bsky"
	"github.com/zebadrabbit/HelpMePost/internal/gate"
	"github.com/zebadrabbit/HelpMePost/internal/model"
	"github.com/zebadrabbit/HelpMePost/internal/plan"
	"github.com/zebadrabbit/HelpMePost/internal/planner"
	"github.com/zebadrabbit/HelpMePost/internal/xpost"
)

// MediaStore owns media bytes. Lookup returns refs in the order of ids.
type MediaStore interface {
	Lookup(ctx context.Context, ids []int64) ([]model.MediaRef, error)
	Fetch(ctx context.Context, id int64) ([]byte, string, error)
}

// History keeps generated plans and published posts.
type History interface {
	InsertPlan(ctx context.Context, p *model.Plan) (int64, error)
	RecordPost(ctx context.Context, planID int64, platform model.Platform, uri, cid string) (int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, cred bsky.Credentials, text string, images []bsky.Image) (*model.PublishResult, error)
	Preview(text string, images []bsky.Image) (*bsky.Draft, error)
}

// Mirror reposts a published post to a second network.
type Mirror interface {
	Post(ctx context.Context, text string, images []xpost.Image) (string, error)
}

type Service struct {
	media     MediaStore
	generator *planner.Generator
	publisher Publisher
	history   History
	mirror    Mirror
	log       *zap.Logger
	newID     func() string
}

type Option func(*Service)

// WithHistory stores every generated plan and published post.
func WithHistory(h History) Option { return func(s *Service) { s.history = h } }

func WithMirror(m Mirror) Option { return func(s *Service) { s.mirror = m } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func New(media MediaStore, gen *planner.Generator, pub Publisher, opts ...Option) *Service {
	s := &Service{
		media:     media,
		generator: gen,
		publisher: pub,
		log:       zap.NewNop(),
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateRequest is the body of a generate call.
type GenerateRequest struct {
	model.Intent
	SelectedMediaIDs []int64  `json:"selected_media_ids"`
	TemplateMode     bool     `json:"template_mode,omitempty"`
	Model            string   `json:"model,omitempty"`
	Targets          []string `json:"generate_targets,omitempty"`
	StrictTags       bool     `json:"strict_tags,omitempty"`
}

type GenerateResponse struct {
	OK     bool         `json:"ok"`
	Plan   *model.Plan  `json:"plan,omitempty"`
	Path   planner.Path `json:"path,omitempty"`
	PlanID int64        `json:"plan_id,omitempty"`
	Error  *ErrorBody   `json:"error,omitempty"`
}

// Generate validates the intent, gates the selection for Bluesky when it
// is targeted and returns a plan. Backend failures never reach the caller;
// they surface only as a template plan.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	resp, err := s.generate(ctx, req)
	if err != nil {
		s.log.Warn("generate failed", zap.Error(err))
		return &GenerateResponse{Error: Describe(err)}, err
	}
	return resp, nil
}

func (s *Service) generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	in := req.Intent
	if in.CTATarget != "" {
		in.IncludeCTA = true
	}
	in, err := plan.ValidateIntent(in)
	if err != nil {
		return nil, err
	}
	if m := req.Model; m != "" && !planner.ValidModel(m) {
		return nil, fmt.Errorf("%w: %q", planner.ErrInvalidModel, m)
	}

	media, err := s.media.Lookup(ctx, req.SelectedMediaIDs)
	if err != nil {
		return nil, err
	}
	targets := plan.NormalizeTargets(req.Targets)
	for _, t := range targets {
		if t == model.PlatformBluesky {
			if err := gate.CanPublishBluesky(media); err != nil {
				return nil, err
			}
		}
	}

	res, err := s.generator.Generate(ctx, planner.Request{
		Intent:       in,
		Media:        media,
		Options:      planner.Options{Targets: targets, StrictTags: req.StrictTags},
		Model:        req.Model,
		TemplateMode: req.TemplateMode,
	})
	if err != nil {
		return nil, err
	}

	out := &GenerateResponse{OK: true, Plan: res.Plan, Path: res.Path}
	if s.history != nil {
		id, err := s.history.InsertPlan(ctx, res.Plan)
		if err != nil {
			s.log.Warn("storing plan failed", zap.Error(err))
		} else {
			out.PlanID = id
		}
	}
	s.log.Info("plan generated",
		zap.String("path", string(res.Path)),
		zap.String("model", res.Plan.Meta.Model),
		zap.Int64("plan_id", out.PlanID),
		zap.Int("media", len(media)))
	return out, nil
}

// PublishRequest is the body of a publish call. The app password is used
// for one session exchange and never stored or logged.
type PublishRequest struct {
	Identifier       string   `json:"identifier"`
	AppPassword      string   `json:"app_password"`
	Text             string   `json:"text"`
	SelectedMediaIDs []int64  `json:"selected_media_ids"`
	AltText          []string `json:"alt_text,omitempty"`
	PlanID           int64    `json:"plan_id,omitempty"`
	MirrorX          bool     `json:"mirror_x,omitempty"`
}

type Optimization struct {
	CompressedImages int                 `json:"compressed_images"`
	Details          []model.ImageReport `json:"details,omitempty"`
}

type MirrorResult struct {
	OK    bool       `json:"ok"`
	ID    string     `json:"id,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type PublishResponse struct {
	OK           bool          `json:"ok"`
	RequestID    string        `json:"request_id"`
	URI          string        `json:"uri,omitempty"`
	CID          string        `json:"cid,omitempty"`
	Optimization *Optimization `json:"optimization,omitempty"`
	Error        *ErrorBody    `json:"error,omitempty"`
	Mirror       *MirrorResult `json:"mirror,omitempty"`
}

// Publish posts req to Bluesky and, when asked, mirrors it to X. The
// response is always non-nil; on failure it carries the error body and
// the error is returned too.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (*PublishResponse, error) {
	resp := &PublishResponse{RequestID: s.newID()}
	log := s.log.With(zap.String("request_id", resp.RequestID), zap.String("identifier", req.Identifier))

	images, err := s.loadImages(ctx, req)
	if err != nil {
		log.Warn("publish rejected", zap.String("kind", string(Describe(err).Kind)), zap.Error(err))
		resp.Error = Describe(err)
		return resp, err
	}

	res, err := s.publisher.Publish(ctx, bsky.Credentials{Identifier: req.Identifier, AppPassword: req.AppPassword}, req.Text, images)
	if err != nil {
		log.Warn("publish failed", zap.String("kind", string(Describe(err).Kind)), zap.Error(err))
		resp.Error = Describe(err)
		return resp, err
	}
	resp.OK, resp.URI, resp.CID = true, res.URI, res.CID
	resp.Optimization = &Optimization{CompressedImages: res.CompressedCount, Details: res.Images}
	s.record(ctx, log, req.PlanID, model.PlatformBluesky, res.URI, res.CID)

	if req.MirrorX {
		resp.Mirror = s.mirrorX(ctx, log, req, images)
	}
	return resp, nil
}

// Preview runs the publish checks and image optimization without any
// network call.
func (s *Service) Preview(ctx context.Context, req PublishRequest) (*bsky.Draft, error) {
	images, err := s.loadImages(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.publisher.Preview(req.Text, images)
}

// loadImages gates the selection before reading any bytes.
func (s *Service) loadImages(ctx context.Context, req PublishRequest) ([]bsky.Image, error) {
	if len(req.SelectedMediaIDs) > 0 && req.AltText != nil && len(req.AltText) != len(req.SelectedMediaIDs) {
		return nil, &RequestError{Field: "alt_text", Reason: fmt.Sprintf("has %d entries for %d selected media", len(req.AltText), len(req.SelectedMediaIDs))}
	}
	seen := make(map[int64]bool, len(req.SelectedMediaIDs))
	for _, id := range req.SelectedMediaIDs {
		if seen[id] {
			return nil, &RequestError{Field: "selected_media_ids", Reason: fmt.Sprintf("duplicate id %d", id)}
		}
		seen[id] = true
	}
	refs, err := s.media.Lookup(ctx, req.SelectedMediaIDs)
	if err != nil {
		return nil, err
	}
	if err := gate.CanPublishBluesky(refs); err != nil {
		return nil, err
	}
	images := make([]bsky.Image, len(refs))
	for i, ref := range refs {
		data, ct, err := s.media.Fetch(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		images[i] = bsky.Image{Data: data, ContentType: ct}
		if i < len(req.AltText) {
			images[i].Alt = req.AltText[i]
		}
	}
	return images, nil
}

func (s *Service) mirrorX(ctx context.Context, log *zap.Logger, req PublishRequest, images []bsky.Image) *MirrorResult {
	if s.mirror == nil {
		return &MirrorResult{Error: &ErrorBody{Kind: KindValidation, Field: "mirror_x", HumanMessage: "X credentials are not configured."}}
	}
	xi := make([]xpost.Image, len(images))
	for i, img := range images {
		xi[i] = xpost.Image{Data: img.Data, ContentType: img.ContentType}
	}
	id, err := s.mirror.Post(ctx, req.Text, xi)
	if err != nil {
		log.Warn("x mirror failed", zap.Error(err))
		return &MirrorResult{Error: describeMirror(err)}
	}
	s.record(ctx, log, req.PlanID, model.PlatformX, id, "")
	return &MirrorResult{OK: true, ID: id}
}

func describeMirror(err error) *ErrorBody {
	b := Describe(err)
	if b.Kind == KindInternal {
		return &ErrorBody{Kind: KindTransport, HumanMessage: "Posting to X failed: " + err.Error()}
	}
	return b
}

// record logs a successful post; a history failure never undoes a post.
func (s *Service) record(ctx context.Context, log *zap.Logger, planID int64, p model.Platform, uri, cid string) {
	if s.history == nil {
		return
	}
	if _, err := s.history.RecordPost(ctx, planID, p, uri, cid); err != nil {
		log.Warn("recording post failed", zap.String("platform", string(p)), zap.Error(err))
	}
}
