// Package bsky publishes image posts to a Bluesky PDS over XRPC.
package bsky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zebadrabbit/HelpMePost/internal/gate"
	"github.com/zebadrabbit/HelpMePost/internal/graphemes"
	"github.com/zebadrabbit/HelpMePost/internal/imageopt"
	"github.com/zebadrabbit/HelpMePost/internal/model"
	"github.com/zebadrabbit/HelpMePost/internal/richtext"
)

const (
	DefaultBaseURL = "https://bsky.social"

	nsidCreateSession = "com.atproto.server.createSession"
	nsidUploadBlob    = "com.atproto.repo.uploadBlob"
	nsidResolveHandle = "com.atproto.identity.resolveHandle"
	nsidCreateRecord  = "com.atproto.repo.createRecord"

	postCollection = "app.bsky.feed.post"
	imagesEmbed    = "app.bsky.embed.images"
	featureLink    = "app.bsky.richtext.facet#link"
	featureMention = "app.bsky.richtext.facet#mention"

	createdAtLayout = "2006-01-02T15:04:05.000Z"
)

// Credentials are an account identifier (handle, DID or email) and an app
// password. They are used for one session exchange and not kept.
type Credentials struct {
	Identifier  string
	AppPassword string
}

// String keeps the app password out of %v output.
func (c Credentials) String() string {
	return c.Identifier + " (app password redacted)"
}

// Image is one post image in display order.
type Image struct {
	Data        []byte
	ContentType string
	Alt         string
}

// Client talks to one PDS. It holds no per-post state and is safe for
// concurrent use.
type Client struct {
	baseURL     string
	http        *http.Client
	log         *zap.Logger
	callTimeout time.Duration
	retryDelay  time.Duration
	optimizer   imageopt.Optimizer
	now         func() time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithCallTimeout bounds each network call separately.
func WithCallTimeout(d time.Duration) Option { return func(c *Client) { c.callTimeout = d } }

func WithRetryDelay(d time.Duration) Option { return func(c *Client) { c.retryDelay = d } }

func WithOptimizer(o imageopt.Optimizer) Option { return func(c *Client) { c.optimizer = o } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		http:        http.DefaultClient,
		log:         zap.NewNop(),
		callTimeout: 30 * time.Second,
		retryDelay:  time.Second,
		optimizer:   imageopt.Default(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type session struct {
	token string
	did   string
}

// Publish posts text with images in order. The gate and text checks run
// before any network call. Steps run strictly in sequence: session
// exchange, optimize and upload each image, build facets, create the
// record. ctx is checked between steps; blobs already uploaded when a
// later step fails are left for the server to collect.
func (c *Client) Publish(ctx context.Context, cred Credentials, text string, images []Image) (*model.PublishResult, error) {
	if err := checkInput(cred, text, images); err != nil {
		return nil, err
	}

	sess, err := c.createSession(ctx, cred)
	if err != nil {
		return nil, err
	}

	result := &model.PublishResult{}
	embed := &model.ImagesEmbed{Type: imagesEmbed}
	for i, img := range images {
		if err := stepCheck(ctx, "upload"); err != nil {
			return nil, err
		}
		opt, err := c.optimizer.Optimize(img.Data)
		if err != nil {
			return nil, fmt.Errorf("bsky: image %d: %w", i, err)
		}
		contentType := img.ContentType
		if opt.Compressed {
			contentType = opt.ContentType
		}
		blob, err := c.uploadBlob(ctx, sess, opt.Data, contentType)
		if err != nil {
			return nil, err
		}

		ei := model.EmbedImage{Alt: img.Alt, Image: blob}
		if opt.Width > 0 && opt.Height > 0 {
			ei.AspectRatio = &model.AspectRatio{Width: opt.Width, Height: opt.Height}
		}
		embed.Images = append(embed.Images, ei)
		result.Images = append(result.Images, report(i, opt))
		if opt.Compressed {
			result.CompressedCount++
		}
	}

	if err := stepCheck(ctx, "facets"); err != nil {
		return nil, err
	}
	facets := c.recordFacets(ctx, sess, richtext.BuildFacets(text))

	if err := stepCheck(ctx, "create record"); err != nil {
		return nil, err
	}
	rec := model.PostRecord{
		Type:      postCollection,
		Text:      text,
		CreatedAt: c.now().UTC().Format(createdAtLayout),
		Facets:    facets,
	}
	if len(embed.Images) > 0 {
		rec.Embed = embed
	}
	out, err := c.createRecord(ctx, sess, rec)
	if err != nil {
		return nil, err
	}
	result.URI, result.CID = out.URI, out.CID

	c.log.Info("bluesky post created",
		zap.String("uri", result.URI),
		zap.Int("images", len(images)),
		zap.Int("compressed", result.CompressedCount))
	return result, nil
}

// Draft is what Publish would send, computed without any network call.
type Draft struct {
	Record model.PostRecord
	Facets []model.Facet
	Images []model.ImageReport
}

// Preview runs the local half of Publish: input checks, optimization and
// facet detection. Mentions stay unresolved and images carry no blob.
func (c *Client) Preview(text string, images []Image) (*Draft, error) {
	if err := checkInput(Credentials{Identifier: "-", AppPassword: "-"}, text, images); err != nil {
		return nil, err
	}
	d := &Draft{
		Record: model.PostRecord{Type: postCollection, Text: text, CreatedAt: c.now().UTC().Format(createdAtLayout)},
		Facets: richtext.BuildFacets(text),
	}
	embed := &model.ImagesEmbed{Type: imagesEmbed}
	for i, img := range images {
		opt, err := c.optimizer.Optimize(img.Data)
		if err != nil {
			return nil, fmt.Errorf("bsky: image %d: %w", i, err)
		}
		ei := model.EmbedImage{Alt: img.Alt}
		if opt.Width > 0 && opt.Height > 0 {
			ei.AspectRatio = &model.AspectRatio{Width: opt.Width, Height: opt.Height}
		}
		embed.Images = append(embed.Images, ei)
		d.Images = append(d.Images, report(i, opt))
	}
	if len(embed.Images) > 0 {
		d.Record.Embed = embed
	}
	for _, f := range d.Facets {
		if f.Kind == model.FacetLink {
			d.Record.Facets = append(d.Record.Facets, linkFacet(f))
		}
	}
	return d, nil
}

func checkInput(cred Credentials, text string, images []Image) error {
	refs := make([]model.MediaRef, len(images))
	for i, img := range images {
		refs[i] = model.MediaRef{ContentType: img.ContentType, Size: int64(len(img.Data))}
	}
	if err := gate.CanPublishBluesky(refs); err != nil {
		return err
	}
	if strings.TrimSpace(cred.Identifier) == "" {
		return &ValidationError{Field: "identifier", Message: "is required"}
	}
	if cred.AppPassword == "" {
		return &ValidationError{Field: "app_password", Message: "is required"}
	}
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "is required"}
	}
	if n := graphemes.Count(text); n > graphemes.MaxPost {
		return &ValidationError{Field: "text", Message: fmt.Sprintf("is %d graphemes, limit %d", n, graphemes.MaxPost)}
	}
	if n := len(text); n > graphemes.MaxPostBytes {
		return &ValidationError{Field: "text", Message: fmt.Sprintf("is %d bytes, limit %d", n, graphemes.MaxPostBytes)}
	}
	return nil
}

func stepCheck(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: step, Err: err}
	}
	return nil
}

func report(i int, r *imageopt.Result) model.ImageReport {
	return model.ImageReport{
		Index:         i,
		OriginalSize:  r.OriginalSize,
		OptimizedSize: len(r.Data),
		Width:         r.Width,
		Height:        r.Height,
		Quality:       r.Quality,
		Compressed:    r.Compressed,
	}
}

func (c *Client) createSession(ctx context.Context, cred Credentials) (session, error) {
	body, err := json.Marshal(model.SessionReq{Identifier: strings.TrimSpace(cred.Identifier), Password: cred.AppPassword})
	if err != nil {
		return session{}, fmt.Errorf("bsky: encode session request: %w", err)
	}
	var out model.SessionResp
	err = c.retryOnce(ctx, "create session", func() error {
		return c.do(ctx, xrpcCall{
			op:                "create session",
			method:            http.MethodPost,
			nsid:              nsidCreateSession,
			contentType:       "application/json",
			body:              body,
			authOnClientError: true,
		}, &out)
	})
	if err != nil {
		return session{}, err
	}
	if out.AccessJwt == "" || out.DID == "" {
		return session{}, &AuthError{Status: http.StatusOK, Message: "session response missing token or did"}
	}
	c.log.Debug("bluesky session created", zap.String("handle", out.Handle), zap.String("did", out.DID))
	return session{token: out.AccessJwt, did: out.DID}, nil
}

func (c *Client) uploadBlob(ctx context.Context, s session, data []byte, contentType string) (json.RawMessage, error) {
	var out model.UploadBlobResp
	err := c.retryOnce(ctx, "upload blob", func() error {
		return c.do(ctx, xrpcCall{
			op:          "upload blob",
			method:      http.MethodPost,
			nsid:        nsidUploadBlob,
			token:       s.token,
			contentType: contentType,
			body:        data,
		}, &out)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Blob) == 0 {
		return nil, &TransportError{Op: "upload blob", Err: fmt.Errorf("response has no blob")}
	}
	return out.Blob, nil
}

func (c *Client) resolveHandle(ctx context.Context, s session, handle string) (string, error) {
	var out model.ResolveHandleResp
	err := c.do(ctx, xrpcCall{
		op:     "resolve handle",
		method: http.MethodGet,
		nsid:   nsidResolveHandle,
		query:  url.Values{"handle": {handle}},
		token:  s.token,
	}, &out)
	if err != nil {
		return "", unwrapPermanent(err)
	}
	if out.DID == "" {
		return "", fmt.Errorf("bsky: handle %s resolved to no did", handle)
	}
	return out.DID, nil
}

// recordFacets converts facets to record form. A mention that does not
// resolve is dropped and stays plain text.
func (c *Client) recordFacets(ctx context.Context, s session, facets []model.Facet) []model.RecordFacet {
	var out []model.RecordFacet
	dids := map[string]string{}
	for _, f := range facets {
		switch f.Kind {
		case model.FacetLink:
			out = append(out, linkFacet(f))
		case model.FacetMention:
			did, ok := dids[f.Target]
			if !ok {
				var err error
				if did, err = c.resolveHandle(ctx, s, f.Target); err != nil {
					c.log.Info("mention left unlinked", zap.String("handle", f.Target), zap.Error(err))
				}
				dids[f.Target] = did
			}
			if did == "" {
				continue
			}
			out = append(out, model.RecordFacet{
				Index:    model.ByteSlice{ByteStart: f.ByteStart, ByteEnd: f.ByteEnd},
				Features: []model.FacetFeature{{Type: featureMention, DID: did}},
			})
		}
	}
	return out
}

func linkFacet(f model.Facet) model.RecordFacet {
	return model.RecordFacet{
		Index:    model.ByteSlice{ByteStart: f.ByteStart, ByteEnd: f.ByteEnd},
		Features: []model.FacetFeature{{Type: featureLink, URI: f.Target}},
	}
}

// createRecord runs exactly once; the write is not idempotent.
func (c *Client) createRecord(ctx context.Context, s session, rec model.PostRecord) (model.CreateRecordResp, error) {
	body, err := json.Marshal(model.CreateRecordReq{Repo: s.did, Collection: postCollection, Record: rec})
	if err != nil {
		return model.CreateRecordResp{}, fmt.Errorf("bsky: encode record: %w", err)
	}
	var out model.CreateRecordResp
	err = c.do(ctx, xrpcCall{
		op:          "create record",
		method:      http.MethodPost,
		nsid:        nsidCreateRecord,
		token:       s.token,
		contentType: "application/json",
		body:        body,
	}, &out)
	if err != nil {
		return model.CreateRecordResp{}, unwrapPermanent(err)
	}
	return out, nil
}
