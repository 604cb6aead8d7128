package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.sqlite")
	s1, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestLookup_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.AddMedia(ctx, "a.png", "image/png", 10, "/tmp/a.png")
	require.NoError(t, err)
	b, err := s.AddMedia(ctx, "b.jpg", "image/jpeg", 20, "/tmp/b.jpg")
	require.NoError(t, err)

	got, err := s.Lookup(ctx, []int64{b.ID, a.ID})
	require.NoError(t, err)
	if diff := cmp.Diff([]model.MediaRef{b, a}, got); diff != "" {
		t.Errorf("Lookup mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup_UnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Lookup(context.Background(), []int64{404})
	assert.ErrorIs(t, err, ErrMediaNotFound)

	got, err := s.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestImportFileAndFetch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src := filepath.Join(t.TempDir(), "Photo.PNG")
	data := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	require.NoError(t, os.WriteFile(src, data, 0o644))
	uploads := filepath.Join(t.TempDir(), "uploads")

	ref, err := s.ImportFile(ctx, src, uploads)
	require.NoError(t, err)
	assert.Equal(t, "Photo.PNG", ref.Filename)
	assert.Equal(t, "image/png", ref.ContentType)
	assert.EqualValues(t, len(data), ref.Size)

	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".png", filepath.Ext(entries[0].Name()))

	got, ct, err := s.Fetch(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/png", ct)

	_, _, err = s.Fetch(ctx, ref.ID+1)
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

func TestPlans(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := &model.Plan{
		Bluesky:          &model.BlueskySection{Text: "hello", Hashtags: []string{"hi"}, AltText: []string{"Image: a.png"}},
		Meta:             model.Meta{IsTemplate: true, Model: "template"},
		SelectedMediaIDs: []int64{1},
	}
	second := &model.Plan{
		YouTube:          &model.YouTubeSection{Title: "t", Description: "d", Tags: []string{"x"}},
		Meta:             model.Meta{Model: "gemini-2.5-flash"},
		SelectedMediaIDs: []int64{},
	}
	id1, err := s.InsertPlan(ctx, first)
	require.NoError(t, err)
	id2, err := s.InsertPlan(ctx, second)
	require.NoError(t, err)

	recs, err := s.ListPlans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, id2, recs[0].ID, "newest first")
	assert.Equal(t, "gemini-2.5-flash", recs[0].Model)
	assert.Equal(t, "template", recs[1].Model)
	assert.False(t, recs[1].CreatedAt.IsZero())

	got, err := s.GetPlan(ctx, id1)
	require.NoError(t, err)
	if diff := cmp.Diff(first, got.Plan); diff != "" {
		t.Errorf("plan round trip (-want +got):\n%s", diff)
	}

	_, err = s.GetPlan(ctx, 999)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestRecordPost(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	planID, err := s.InsertPlan(ctx, &model.Plan{Meta: model.Meta{Model: "template"}})
	require.NoError(t, err)
	_, err = s.RecordPost(ctx, planID, model.PlatformBluesky, "at://did:plc:me/app.bsky.feed.post/1", "bafy")
	require.NoError(t, err)
	_, err = s.RecordPost(ctx, 0, model.PlatformX, "1234", "")
	require.NoError(t, err)

	posts, err := s.ListPosts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, model.PlatformX, posts[0].Platform)
	assert.Zero(t, posts[0].PlanID)
	assert.Empty(t, posts[0].CID)
	assert.Equal(t, planID, posts[1].PlanID)
	assert.Equal(t, "bafy", posts[1].CID)
	assert.False(t, posts[1].PostedAt.IsZero())

	_, err = s.RecordPost(ctx, 999, model.PlatformBluesky, "at://x", "")
	assert.Error(t, err, "unknown plan id violates the foreign key")
}
