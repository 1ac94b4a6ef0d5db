package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(ctx, db, migrationsDir, DialectSQLite))

	s := NewSQLiteStore(db)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func sampleSections() []SectionText {
	return []SectionText{
		{SectionID: "sec_a", Position: 0, Title: "Price", Variant: "DYNAMIC", BodyText: "Price: [AssetPrice]", Tokens: []string{"AssetPrice"}},
		{SectionID: "sec_b", Position: 1, Title: "Delivery", Variant: "FIXED", BodyText: "Delivered by truck"},
	}
}

func TestCreateAndGetTemplate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	created, err := s.CreateTemplate(ctx, TemplateRecord{
		ID: "tpl_1", Name: "Sale agreement", Tree: []byte(`{"sections":[]}`), Fingerprint: "f1", UpdatedBy: "ana",
	}, sampleSections())
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Revision)

	got, err := s.GetTemplate(ctx, "tpl_1")
	require.NoError(t, err)
	assert.Equal(t, "Sale agreement", got.Name)
	assert.JSONEq(t, `{"sections":[]}`, string(got.Tree))
	assert.Equal(t, created.CreatedAt, got.CreatedAt)

	_, err = s.GetTemplate(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	sections, err := s.ListSections(ctx)
	require.NoError(t, err)
	require.Len(t, sections["tpl_1"], 2)
	assert.Equal(t, []string{"AssetPrice"}, sections["tpl_1"][0].Tokens)
	assert.Empty(t, sections["tpl_1"][1].Tokens)
}

func TestSaveTemplateOptimisticRevision(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	_, err := s.CreateTemplate(ctx, TemplateRecord{ID: "tpl_1", Name: "v1", Tree: []byte(`{}`), Fingerprint: "f1"}, sampleSections())
	require.NoError(t, err)

	saved, err := s.SaveTemplate(ctx, TemplateRecord{ID: "tpl_1", Name: "v2", Tree: []byte(`{"x":1}`), Fingerprint: "f2", UpdatedBy: "bo"}, 1, sampleSections()[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Revision)
	assert.Equal(t, "v2", saved.Name)
	assert.True(t, saved.UpdatedAt.After(saved.CreatedAt))

	_, err = s.SaveTemplate(ctx, TemplateRecord{ID: "tpl_1", Name: "stale", Tree: []byte(`{}`)}, 1, nil)
	assert.True(t, errors.Is(err, ErrRevisionConflict))

	_, err = s.SaveTemplate(ctx, TemplateRecord{ID: "nope", Tree: []byte(`{}`)}, 1, nil)
	assert.True(t, errors.Is(err, ErrNotFound))

	sections, err := s.ListSections(ctx)
	require.NoError(t, err)
	assert.Len(t, sections["tpl_1"], 1)
}

func TestListTemplatesNewestFirst(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	for _, id := range []string{"tpl_a", "tpl_b"} {
		_, err := s.CreateTemplate(ctx, TemplateRecord{ID: id, Name: id, Tree: []byte(`{}`)}, nil)
		require.NoError(t, err)
	}
	items, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "tpl_b", items[0].ID)
}

func TestReleasesAndDelete(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	_, err := s.CreateTemplate(ctx, TemplateRecord{ID: "tpl_1", Name: "v1", Tree: []byte(`{}`)}, sampleSections())
	require.NoError(t, err)

	require.NoError(t, s.InsertRelease(ctx, Release{TemplateID: "tpl_1", Name: "v1.0", CommitHash: "abc", Revision: 1, CreatedBy: "ana"}))
	require.NoError(t, s.InsertRelease(ctx, Release{TemplateID: "tpl_1", Name: "v1.1", CommitHash: "def", Revision: 1}))
	assert.Error(t, s.InsertRelease(ctx, Release{TemplateID: "tpl_1", Name: "v1.0", CommitHash: "zzz"}))

	releases, err := s.ListReleases(ctx, "tpl_1")
	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.Equal(t, "v1.1", releases[0].Name)

	require.NoError(t, s.DeleteTemplate(ctx, "tpl_1"))
	assert.True(t, errors.Is(s.DeleteTemplate(ctx, "tpl_1"), ErrNotFound))
	releases, err = s.ListReleases(ctx, "tpl_1")
	require.NoError(t, err)
	assert.Empty(t, releases)
	require.NoError(t, s.Ping(ctx))
}
