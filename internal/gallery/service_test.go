package gallery

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	"gallery/internal/cache"
	"gallery/internal/config"
	"gallery/internal/events"
	"gallery/internal/generation"
	"gallery/internal/models"
	"gallery/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	svc   *Service
	repo  *testutil.ImageRepoStub
	blobs *testutil.MemoryBlobStore
	bus   *recorder
	redis *miniredis.Miniredis
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	f := &fixture{
		repo:  testutil.NewImageRepoStub(),
		blobs: testutil.NewMemoryBlobStore(),
		bus:   &recorder{},
		redis: mr,
	}
	f.svc = NewService(f.repo, f.blobs, f.bus, cfg)
	return f
}

func TestUpload_StoresBlobAndRow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.redis.Set(cache.FeedRecentKey(DefaultFeedLimit), "[]"))
	require.NoError(t, f.redis.Set(cache.FeedUserKey("u1"), "[]"))

	img, err := f.svc.Upload(ctx, UploadInput{
		UserID:      "u1",
		Title:       "  Sunset ",
		Description: " warm ",
		Tags:        ParseTags("sky, sun,sky"),
		ContentType: "image/png",
		Content:     testutil.TinyPNG(t, 4, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, "Sunset", img.Title)
	require.NotNil(t, img.Description)
	assert.Equal(t, "warm", *img.Description)
	assert.Equal(t, []string{"sky", "sun"}, img.Tags)
	assert.False(t, img.IsAIGenerated)

	require.Equal(t, 1, f.blobs.Len())
	for path, blob := range f.blobs.Objects {
		assert.Regexp(t, regexp.MustCompile(`^uploads/u1/\d+-[0-9a-f-]{36}\.png$`), path)
		assert.Equal(t, "image/png", blob.ContentType)
		assert.Equal(t, "http://blobs.test/"+path, img.ImageURL)
	}

	assert.False(t, f.redis.Exists(cache.FeedRecentKey(DefaultFeedLimit)))
	assert.False(t, f.redis.Exists(cache.FeedUserKey("u1")))

	require.Len(t, f.bus.events, 1)
	assert.Equal(t, events.TypeImageCreated, f.bus.events[0].Type)
	assert.Equal(t, img.ID, f.bus.events[0].ImageID)
}

func TestUpload_Rejects(t *testing.T) {
	png := testutil.TinyPNG(t, 2, 2)
	tests := []struct {
		name string
		in   UploadInput
	}{
		{"no user", UploadInput{Title: "t", Content: png}},
		{"no title", UploadInput{UserID: "u1", Title: " ", Content: png}},
		{"empty file", UploadInput{UserID: "u1", Title: "t"}},
		{"not an image", UploadInput{UserID: "u1", Title: "t", Content: []byte("hello, world")}},
		{"truncated image", UploadInput{UserID: "u1", Title: "t", Content: png[:12]}},
		{"type mismatch", UploadInput{UserID: "u1", Title: "t", Content: png, ContentType: "image/jpeg"}},
		{"too large", UploadInput{UserID: "u1", Title: "t", Content: append(append([]byte(nil), png...), make([]byte, 1<<20)...)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &config.Config{ImageMaxUploadSizeMB: 1})
			_, err := f.svc.Upload(context.Background(), tt.in)
			assert.True(t, models.IsCode(err, models.CodeValidation), "got %v", err)
			assert.Zero(t, f.blobs.Len())
			assert.Empty(t, f.bus.events)
		})
	}
}

func TestUpload_InsertFailureRemovesBlob(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.CreateErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u1", Title: "t", Content: testutil.TinyPNG(t, 2, 2)})
	assert.True(t, models.IsCode(err, models.CodeInternal))
	assert.Zero(t, f.blobs.Len())
	assert.Empty(t, f.bus.events)
}

func TestUpload_BlobFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.blobs.PutErr = errors.New("bucket unreachable")

	_, err := f.svc.Upload(context.Background(), UploadInput{UserID: "u1", Title: "t", Content: testutil.TinyPNG(t, 2, 2)})
	assert.True(t, models.IsCode(err, models.CodeInternal))
	all, _ := f.repo.ListAll(context.Background())
	assert.Empty(t, all)
}

func TestSaveGenerated(t *testing.T) {
	f := newFixture(t, nil)
	prompt := strings.Repeat("a castle in the clouds ", 5)

	img, err := f.svc.SaveGenerated(context.Background(), SaveGeneratedInput{
		UserID: "u1",
		Prompt: prompt,
		Asset:  &generation.Asset{Data: testutil.TinyPNG(t, 8, 8), MediaType: "image/png", ProviderID: "pollinations-flux"},
	})
	require.NoError(t, err)

	assert.True(t, img.IsAIGenerated)
	assert.Equal(t, strings.TrimSpace(prompt), *img.AIPrompt)
	assert.Equal(t, "pollinations-flux", *img.AIModel)
	assert.Equal(t, DefaultTitle(prompt), img.Title)
	assert.LessOrEqual(t, len([]rune(img.Title)), 50)
	assert.Contains(t, img.ImageURL, "/generated/u1/")
	assert.True(t, strings.HasSuffix(img.ImageURL, ".png"))
}

func TestSaveGenerated_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	asset := &generation.Asset{Data: testutil.TinyPNG(t, 2, 2), MediaType: "image/png", ProviderID: "p"}

	_, err := f.svc.SaveGenerated(ctx, SaveGeneratedInput{UserID: "u1", Prompt: "x"})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = f.svc.SaveGenerated(ctx, SaveGeneratedInput{UserID: "u1", Prompt: "  ", Asset: asset})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	_, err = f.svc.SaveGenerated(ctx, SaveGeneratedInput{UserID: "u1", Prompt: "x",
		Asset: &generation.Asset{Data: []byte("<html>"), MediaType: "text/html", ProviderID: "p"}})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestListRecent_CacheAside(t *testing.T) {
	f := newFixture(t, &config.Config{FeedLimit: 2})
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		_, err := f.svc.Upload(ctx, UploadInput{UserID: "u1", Title: title, Content: testutil.TinyPNG(t, 2, 2)})
		require.NoError(t, err)
	}

	first, err := f.svc.ListRecent(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "three", first[0].Title)
	lists := f.repo.Lists

	second, err := f.svc.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, lists, f.repo.Lists, "warm cache must not hit the repository")
	assert.Equal(t, first[0].ID, second[0].ID)

	_, err = f.svc.Upload(ctx, UploadInput{UserID: "u2", Title: "four", Content: testutil.TinyPNG(t, 2, 2)})
	require.NoError(t, err)

	third, err := f.svc.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "four", third[0].Title)
	assert.Greater(t, f.repo.Lists, lists)
}

func TestListByUserAndAll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u1"} {
		_, err := f.svc.Upload(ctx, UploadInput{UserID: u, Title: "t", Content: testutil.TinyPNG(t, 2, 2)})
		require.NoError(t, err)
	}

	mine, err := f.svc.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseTags(" b, a,,b "))
	assert.Empty(t, ParseTags(""))
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "short", DefaultTitle("  short "))
	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50), DefaultTitle(long))
}
