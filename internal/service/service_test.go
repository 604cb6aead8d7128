package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zebadrabbit/HelpMePost/internal/bsky"
	"github.com/zebadrabbit/HelpMePost/internal/gate"
	"github.com/zebadrabbit/HelpMePost/internal/hashtag"
	"github.com/zebadrabbit/HelpMePost/internal/imageopt"
	"github.com/zebadrabbit/HelpMePost/internal/model"
	"github.com/zebadrabbit/HelpMePost/internal/plan"
	"github.com/zebadrabbit/HelpMePost/internal/planner"
	"github.com/zebadrabbit/HelpMePost/internal/store"
	"github.com/zebadrabbit/HelpMePost/internal/xpost"
)

type memMedia struct {
	refs    map[int64]model.MediaRef
	fetches int
}

func newMemMedia(refs ...model.MediaRef) *memMedia {
	m := &memMedia{refs: map[int64]model.MediaRef{}}
	for _, r := range refs {
		m.refs[r.ID] = r
	}
	return m
}

func (m *memMedia) Lookup(_ context.Context, ids []int64) ([]model.MediaRef, error) {
	out := make([]model.MediaRef, 0, len(ids))
	for _, id := range ids {
		r, ok := m.refs[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", store.ErrMediaNotFound, id)
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memMedia) Fetch(_ context.Context, id int64) ([]byte, string, error) {
	m.fetches++
	r, ok := m.refs[id]
	if !ok {
		return nil, "", store.ErrMediaNotFound
	}
	return []byte(fmt.Sprintf("bytes-%d", id)), r.ContentType, nil
}

type fakePublisher struct {
	result *model.PublishResult
	err    error
	calls  int
	cred   bsky.Credentials
	text   string
	images []bsky.Image
}

func (f *fakePublisher) Publish(_ context.Context, cred bsky.Credentials, text string, images []bsky.Image) (*model.PublishResult, error) {
	f.calls++
	f.cred, f.text, f.images = cred, text, images
	return f.result, f.err
}

func (f *fakePublisher) Preview(text string, images []bsky.Image) (*bsky.Draft, error) {
	f.text, f.images = text, images
	return &bsky.Draft{Record: model.PostRecord{Text: text}}, nil
}

type fakeMirror struct {
	id     string
	err    error
	text   string
	images []xpost.Image
}

func (f *fakeMirror) Post(_ context.Context, text string, images []xpost.Image) (string, error) {
	f.text, f.images = text, images
	return f.id, f.err
}

type postCall struct {
	planID   int64
	platform model.Platform
	uri, cid string
}

type memHistory struct {
	plans []*model.Plan
	posts []postCall
}

func (h *memHistory) InsertPlan(_ context.Context, p *model.Plan) (int64, error) {
	h.plans = append(h.plans, p)
	return int64(len(h.plans)), nil
}

func (h *memHistory) RecordPost(_ context.Context, planID int64, p model.Platform, uri, cid string) (int64, error) {
	h.posts = append(h.posts, postCall{planID, p, uri, cid})
	return int64(len(h.posts)), nil
}

type countingBackend struct {
	calls int
	block bool
}

func (b *countingBackend) Generate(ctx context.Context, _ string, _ planner.Prompt) (string, error) {
	b.calls++
	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", errors.New("unreachable")
}

func mediaSet(n int, ct string) (*memMedia, []int64) {
	var refs []model.MediaRef
	var ids []int64
	for i := 1; i <= n; i++ {
		refs = append(refs, model.MediaRef{ID: int64(i), Filename: fmt.Sprintf("img%d.png", i), ContentType: ct, Size: 100})
		ids = append(ids, int64(i))
	}
	return newMemMedia(refs...), ids
}

func newService(t *testing.T, media MediaStore, backend planner.Backend, pub Publisher, opts ...Option) *Service {
	t.Helper()
	gen := planner.NewGenerator(backend, hashtag.MustLoadDefault(), planner.WithTimeout(20*time.Millisecond))
	if pub == nil {
		pub = &fakePublisher{}
	}
	return New(media, gen, pub, opts...)
}

func TestGenerate_TemplateMode(t *testing.T) {
	media, ids := mediaSet(1, "image/png")
	hist := &memHistory{}
	s := newService(t, media, nil, nil, WithHistory(hist))

	resp, err := s.Generate(context.Background(), GenerateRequest{
		Intent:           model.Intent{Focus: "Launch day for my app", Tags: []string{"launch"}},
		SelectedMediaIDs: ids,
		TemplateMode:     true,
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, planner.PathTemplate, resp.Path)
	assert.True(t, resp.Plan.Meta.IsTemplate)
	assert.True(t, strings.HasPrefix(resp.Plan.Bluesky.Text, "Launch day for my app"))
	assert.Contains(t, resp.Plan.Bluesky.Text, "#launch")
	assert.NotNil(t, resp.Plan.YouTube)
	assert.EqualValues(t, 1, resp.PlanID)
	require.Len(t, hist.plans, 1)
}

func TestGenerate_GateRunsBeforeBackend(t *testing.T) {
	media, ids := mediaSet(5, "image/png")
	backend := &countingBackend{}
	s := newService(t, media, backend, nil)

	resp, err := s.Generate(context.Background(), GenerateRequest{
		Intent:           model.Intent{Focus: "Five photos"},
		SelectedMediaIDs: ids,
	})
	var ge *gate.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gate.TooManyItems, ge.Reason)
	assert.Zero(t, backend.calls)
	assert.False(t, resp.OK)
	assert.Equal(t, KindPlatformGate, resp.Error.Kind)
}

func TestGenerate_YouTubeOnlySkipsGate(t *testing.T) {
	s := newService(t, newMemMedia(), nil, nil)

	resp, err := s.Generate(context.Background(), GenerateRequest{
		Intent:       model.Intent{Focus: "Behind the scenes"},
		Targets:      []string{" YouTube "},
		TemplateMode: true,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Plan.Bluesky)
	require.NotNil(t, resp.Plan.YouTube)
	assert.Equal(t, "Behind the scenes", resp.Plan.YouTube.Title)
}

func TestGenerate_BackendTimeoutIsInvisible(t *testing.T) {
	media, ids := mediaSet(1, "image/jpeg")
	backend := &countingBackend{block: true}
	s := newService(t, media, backend, nil)

	resp, err := s.Generate(context.Background(), GenerateRequest{
		Intent:           model.Intent{Focus: "Launch day for my app"},
		SelectedMediaIDs: ids,
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Nil(t, resp.Error)
	assert.True(t, resp.Plan.Meta.IsTemplate)
	assert.Equal(t, 1, backend.calls)
}

func TestGenerate_CTATargetImpliesIncludeCTA(t *testing.T) {
	media, ids := mediaSet(1, "image/png")
	s := newService(t, media, nil, nil)

	resp, err := s.Generate(context.Background(), GenerateRequest{
		Intent:           model.Intent{Focus: "New print shop", CTATarget: "@me.bsky.social"},
		SelectedMediaIDs: ids,
		TemplateMode:     true,
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Plan.Bluesky.Text, "Follow: @me.bsky.social")
}

func TestGenerate_RequestErrors(t *testing.T) {
	media, ids := mediaSet(1, "image/png")
	tests := []struct {
		name  string
		req   GenerateRequest
		kind  Kind
		field string
	}{
		{"empty focus", GenerateRequest{Intent: model.Intent{Focus: "  "}, SelectedMediaIDs: ids}, KindValidation, "focus"},
		{"bad cta", GenerateRequest{Intent: model.Intent{Focus: "x", CTATarget: "ftp://nope"}, SelectedMediaIDs: ids}, KindValidation, "cta_target"},
		{"unknown model", GenerateRequest{Intent: model.Intent{Focus: "x"}, SelectedMediaIDs: ids, Model: "gpt-4o"}, KindInvalidModel, "model"},
		{"unknown media", GenerateRequest{Intent: model.Intent{Focus: "x"}, SelectedMediaIDs: []int64{42}}, KindValidation, "selected_media_ids"},
		{"gif", GenerateRequest{Intent: model.Intent{Focus: "x"}, SelectedMediaIDs: []int64{1, 2}}, KindPlatformGate, "selected_media_ids"},
	}
	media.refs[2] = model.MediaRef{ID: 2, ContentType: "image/gif"}
	s := newService(t, media, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Generate(context.Background(), tt.req)
			require.Error(t, err)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Error.Kind)
			assert.Equal(t, tt.field, resp.Error.Field)
			assert.NotEmpty(t, resp.Error.HumanMessage)
		})
	}
}

func TestPublish_Success(t *testing.T) {
	media, ids := mediaSet(2, "image/png")
	pub := &fakePublisher{result: &model.PublishResult{
		URI: "at://did:plc:me/app.bsky.feed.post/1", CID: "bafy", CompressedCount: 1,
		Images: []model.ImageReport{{Index: 0, Compressed: true}, {Index: 1}},
	}}
	hist := &memHistory{}
	s := newService(t, media, nil, pub, WithHistory(hist))

	resp, err := s.Publish(context.Background(), PublishRequest{
		Identifier: "me.bsky.social", AppPassword: "secret-pass",
		Text: "hello", SelectedMediaIDs: ids, AltText: []string{"first", "second"}, PlanID: 9,
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "bafy", resp.CID)
	assert.Equal(t, 1, resp.Optimization.CompressedImages)
	assert.Len(t, resp.Optimization.Details, 2)
	assert.Nil(t, resp.Mirror)

	require.Len(t, pub.images, 2)
	assert.Equal(t, "first", pub.images[0].Alt)
	assert.Equal(t, []byte("bytes-2"), pub.images[1].Data)
	assert.Equal(t, "me.bsky.social", pub.cred.Identifier)
	assert.Equal(t, []postCall{{9, model.PlatformBluesky, "at://did:plc:me/app.bsky.feed.post/1", "bafy"}}, hist.posts)
}

func TestPublish_GateBeforeFetch(t *testing.T) {
	media, ids := mediaSet(5, "image/png")
	pub := &fakePublisher{}
	s := newService(t, media, nil, pub)

	resp, err := s.Publish(context.Background(), PublishRequest{Identifier: "me", AppPassword: "pw", Text: "hi", SelectedMediaIDs: ids})
	var ge *gate.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, gate.TooManyItems, ge.Reason)
	assert.False(t, resp.OK)
	assert.Equal(t, KindPlatformGate, resp.Error.Kind)
	assert.Zero(t, media.fetches)
	assert.Zero(t, pub.calls)
}

func TestPublish_AltTextMisaligned(t *testing.T) {
	media, ids := mediaSet(2, "image/png")
	pub := &fakePublisher{}
	s := newService(t, media, nil, pub)

	resp, err := s.Publish(context.Background(), PublishRequest{Identifier: "me", AppPassword: "pw", Text: "hi", SelectedMediaIDs: ids, AltText: []string{"one"}})
	require.Error(t, err)
	assert.Equal(t, KindValidation, resp.Error.Kind)
	assert.Equal(t, "alt_text", resp.Error.Field)
	assert.Zero(t, pub.calls)
}

func TestPublish_DuplicateMediaIDs(t *testing.T) {
	media, ids := mediaSet(2, "image/png")
	pub := &fakePublisher{}
	s := newService(t, media, nil, pub)

	dup := []int64{ids[0], ids[1], ids[0]}
	resp, err := s.Publish(context.Background(), PublishRequest{Identifier: "me", AppPassword: "pw", Text: "hi", SelectedMediaIDs: dup})
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindValidation, resp.Error.Kind)
	assert.Equal(t, "selected_media_ids", resp.Error.Field)
	assert.Contains(t, re.Reason, fmt.Sprint(ids[0]))
	assert.Zero(t, media.fetches)
	assert.Zero(t, pub.calls)
}

func TestPublish_ErrorsAreDescribed(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  Kind
		retry int
	}{
		{"auth", &bsky.AuthError{Status: 401, Message: "Invalid identifier or password"}, KindAuth, 0},
		{"rate limited", &bsky.RateLimitedError{RetryAfter: 30 * time.Second}, KindRateLimited, 30},
		{"transport", &bsky.TransportError{Op: "createSession", Err: context.DeadlineExceeded}, KindTransport, 0},
		{"server validation", &bsky.ValidationError{Field: "createRecord", Status: 400, Message: "bad record"}, KindValidation, 0},
		{"size", fmt.Errorf("bsky: image 0: %w", imageopt.ErrSizeLimitExceeded), KindSizeLimitExceeded, 0},
		{"format", fmt.Errorf("bsky: image 0: %w", imageopt.ErrUnsupportedFormat), KindUnsupportedFormat, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media, ids := mediaSet(1, "image/png")
			hist := &memHistory{}
			s := newService(t, media, nil, &fakePublisher{err: tt.err}, WithHistory(hist))

			resp, err := s.Publish(context.Background(), PublishRequest{Identifier: "me", AppPassword: "hunter2-secret", Text: "hi", SelectedMediaIDs: ids})
			require.ErrorIs(t, err, tt.err)
			assert.False(t, resp.OK)
			assert.Equal(t, tt.kind, resp.Error.Kind)
			assert.Equal(t, tt.retry, resp.Error.RetryAfterSeconds)
			assert.NotContains(t, resp.Error.HumanMessage, "hunter2-secret")
			assert.Empty(t, hist.posts)
		})
	}
}

func TestPublish_Mirror(t *testing.T) {
	ok := &model.PublishResult{URI: "at://x/1", CID: "c"}

	t.Run("posted", func(t *testing.T) {
		media, ids := mediaSet(1, "image/png")
		m := &fakeMirror{id: "1789"}
		hist := &memHistory{}
		s := newService(t, media, nil, &fakePublisher{result: ok}, WithMirror(m), WithHistory(hist))

		resp, err := s.Publish(context.Background(), PublishRequest{Identifier: "me", AppPassword: "pw", Text: "hi #go", SelectedMediaIDs: ids, MirrorX: true})
		require.NoError(t, err)
		require.NotNil(t, resp.Mirror)
		assert.True(t, resp.Mirror.OK)
		assert.Equal(t, "1789", resp.Mirror.ID)
		assert.Equal(t, "hi #go", m.text)
		require.Len(t, m.images, 1)
		assert.Equal(t, "image/png", m.images[0].ContentType)
		require.Len(t, hist.posts, 2)
		assert.Equal(t, model.PlatformX, hist.posts[1].platform)
	})

	t.Run("failure keeps bluesky success", func(t *testing.T) {
		media, ids := mediaSet(1, "image/png")
		m := &fakeMirror{err: &xpost.APIError{Status: 403, Message: "forbidden"}}
		s := newService(t, media, nil, &fakePublisher{result: ok}, WithMirror(m))

		resp, err := s.Publish(context.Background(), PublishRequest{Identifier: "me", AppPassword: "pw", Text: "hi", SelectedMediaIDs: ids, MirrorX: true})
		require.NoError(t, err)
		assert.True(t, resp.OK)
		assert.Equal(t, "at://x/1", resp.URI)
		assert.False(t, resp.Mirror.OK)
		assert.Equal(t, KindTransport, resp.Mirror.Error.Kind)
	})

	t.Run("not configured", func(t *testing.T) {
		media, ids := mediaSet(1, "image/png")
		s := newService(t, media, nil, &fakePublisher{result: ok})

		resp, err := s.Publish(context.Background(), PublishRequest{Identifier: "me", AppPassword: "pw", Text: "hi", SelectedMediaIDs: ids, MirrorX: true})
		require.NoError(t, err)
		assert.True(t, resp.OK)
		assert.False(t, resp.Mirror.OK)
		assert.Equal(t, "mirror_x", resp.Mirror.Error.Field)
	})
}

func TestPreview(t *testing.T) {
	media, ids := mediaSet(1, "image/png")
	pub := &fakePublisher{}
	s := newService(t, media, nil, pub)

	d, err := s.Preview(context.Background(), PublishRequest{Text: "draft", SelectedMediaIDs: ids, AltText: []string{"alt"}})
	require.NoError(t, err)
	assert.Equal(t, "draft", d.Record.Text)
	assert.Equal(t, "alt", pub.images[0].Alt)
	assert.Zero(t, pub.calls)
}

func TestDescribe(t *testing.T) {
	assert.Nil(t, Describe(nil))
	assert.Equal(t, KindInternal, Describe(errors.New("boom")).Kind)

	b := Describe(&plan.SchemaError{Field: "bluesky.text", Reason: "is empty"})
	assert.Equal(t, KindValidation, b.Kind)
	assert.Equal(t, "bluesky.text is empty.", b.HumanMessage)

	b = Describe(&gate.Error{Platform: model.PlatformBluesky, Reason: gate.UnsupportedType, Index: 1, ContentType: "image/gif"})
	assert.Equal(t, "Item 2 is a GIF; GIFs cannot be posted.", b.HumanMessage)

	b = Describe(&bsky.RateLimitedError{RetryAfter: 1500 * time.Millisecond})
	assert.Equal(t, 2, b.RetryAfterSeconds)
}
