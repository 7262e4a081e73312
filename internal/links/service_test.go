package links

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/linksaver/linksaver/internal/apperror"
	"github.com/linksaver/linksaver/internal/metadata"
	"github.com/linksaver/linksaver/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Link{}))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{Name: "Tester", Email: "tester@example.com"}
	require.NoError(t, db.Create(user).Error)
	return user
}

// stubResolver returns canned metadata and counts calls.
type stubResolver struct {
	meta           metadata.Metadata
	thumbnail      string
	resolveCalls   int
	thumbnailCalls int
	lastDeadline   time.Time
}

func (s *stubResolver) Resolve(ctx context.Context, url string) metadata.Metadata {
	s.resolveCalls++
	s.lastDeadline, _ = ctx.Deadline()
	return s.meta
}

func (s *stubResolver) ResolveThumbnail(ctx context.Context, url string) string {
	s.thumbnailCalls++
	s.lastDeadline, _ = ctx.Deadline()
	return s.thumbnail
}

type recordingHub struct {
	events []string
	users  []string
}

func (h *recordingHub) BroadcastToUser(userID, messageType string, payload any) {
	h.events = append(h.events, messageType)
	h.users = append(h.users, userID)
}

func TestInferSource(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.instagram.com/reel/abc/", models.SourceInstagram},
		{"https://instagr.am/p/abc/", models.SourceInstagram},
		{"https://www.facebook.com/watch?v=1", models.SourceFacebook},
		{"https://fb.watch/xyz/", models.SourceFacebook},
		{"https://twitter.com/user/status/1", models.SourceTwitter},
		{"https://x.com/user/status/1", models.SourceTwitter},
		{"https://www.tiktok.com/@user/video/1", models.SourceTikTok},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", models.SourceYouTube},
		{"https://youtu.be/dQw4w9WgXcQ", models.SourceYouTube},
		{"https://www.linkedin.com/posts/someone", models.SourceLinkedIn},
		{"https://WWW.INSTAGRAM.COM/reel/abc/", models.SourceInstagram},
		{"https://example.com/article", models.SourceOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferSource(tt.url), "url %s", tt.url)
	}
}

func TestCreateResolvesMetadata(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	resolver := &stubResolver{meta: metadata.Metadata{
		Title:        "Tasty Pasta",
		ThumbnailURL: "https://cdn.example.com/pasta.jpg",
	}}
	hub := &recordingHub{}
	svc := NewService(db, resolver, hub)

	link, err := svc.Create(context.Background(), user.ID, CreateInput{
		URL: "https://www.instagram.com/reel/pasta/",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceInstagram, link.Source)
	require.NotNil(t, link.Title)
	assert.Equal(t, "Tasty Pasta", *link.Title)
	require.NotNil(t, link.ThumbnailURL)
	assert.Equal(t, "https://cdn.example.com/pasta.jpg", *link.ThumbnailURL)
	assert.Equal(t, []string{"link_created"}, hub.events)
	assert.Equal(t, []string{user.ID}, hub.users)
}

func TestCreateCallerValuesWin(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	resolver := &stubResolver{meta: metadata.Metadata{
		Title:        "Resolved Title",
		ThumbnailURL: "https://cdn.example.com/resolved.jpg",
	}}
	svc := NewService(db, resolver, nil)

	title := "My Own Title"
	thumb := "https://cdn.example.com/mine.jpg"
	category := "Food"
	link, err := svc.Create(context.Background(), user.ID, CreateInput{
		URL:          "https://example.com/recipe",
		Title:        &title,
		Category:     &category,
		ThumbnailURL: &thumb,
	})
	require.NoError(t, err)

	assert.Equal(t, "My Own Title", *link.Title)
	assert.Equal(t, "https://cdn.example.com/mine.jpg", *link.ThumbnailURL)
	assert.Equal(t, "food", *link.Category)
	assert.Zero(t, resolver.resolveCalls)
}

func TestCreateSurvivesResolverComingBackEmpty(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewService(db, &stubResolver{}, nil)

	link, err := svc.Create(context.Background(), user.ID, CreateInput{
		URL: "https://example.com/unreachable",
	})
	require.NoError(t, err)

	assert.Nil(t, link.Title)
	assert.Nil(t, link.ThumbnailURL)
	assert.Equal(t, models.SourceOther, link.Source)
}

func TestCreateValidation(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewService(db, &stubResolver{}, nil)
	ctx := context.Background()

	t.Run("empty url", func(t *testing.T) {
		_, err := svc.Create(ctx, user.ID, CreateInput{URL: "   "})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("bad scheme", func(t *testing.T) {
		_, err := svc.Create(ctx, user.ID, CreateInput{URL: "ftp://example.com/file"})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("no host", func(t *testing.T) {
		_, err := svc.Create(ctx, user.ID, CreateInput{URL: "https:///path-only"})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("unknown category", func(t *testing.T) {
		category := "memes"
		_, err := svc.Create(ctx, user.ID, CreateInput{
			URL:      "https://example.com",
			Category: &category,
		})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("unknown source", func(t *testing.T) {
		source := "myspace"
		_, err := svc.Create(ctx, user.ID, CreateInput{
			URL:    "https://example.com",
			Source: &source,
		})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})
}

func TestCreateTruncatesTitleOnRuneBoundary(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewService(db, &stubResolver{}, nil)

	title := strings.Repeat("日", 600)
	link, err := svc.Create(context.Background(), user.ID, CreateInput{
		URL:   "https://example.com/long-title",
		Title: &title,
	})
	require.NoError(t, err)

	require.NotNil(t, link.Title)
	assert.True(t, utf8.ValidString(*link.Title))
	assert.Equal(t, maxTitleLen, utf8.RuneCountInString(*link.Title))
}

func TestCreateCallerSourceWins(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	svc := NewService(db, &stubResolver{}, nil)

	source := "Instagram"
	link, err := svc.Create(context.Background(), user.ID, CreateInput{
		URL:    "https://example.com/reel-mirror",
		Source: &source,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceInstagram, link.Source)
}

func TestListFiltersAndOrders(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	other := &models.User{Name: "Other", Email: "other@example.com"}
	require.NoError(t, db.Create(other).Error)
	svc := NewService(db, &stubResolver{}, nil)
	ctx := context.Background()

	seed := func(owner, rawURL, title, category string, age time.Duration) {
		thumb := rawURL + "/thumb.jpg"
		link := &models.Link{
			UserID:       owner,
			URL:          rawURL,
			Source:       InferSource(rawURL),
			Title:        &title,
			Category:     &category,
			ThumbnailURL: &thumb,
		}
		require.NoError(t, db.Create(link).Error)
		require.NoError(t, db.Model(link).Update("created_at", time.Now().Add(-age)).Error)
	}

	seed(user.ID, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "Guitar Lesson", "music", time.Hour)
	seed(user.ID, "https://www.instagram.com/reel/pasta/", "Pasta Night", "food", 2*time.Hour)
	seed(user.ID, "https://www.instagram.com/reel/hike/", "Mountain Hike", "nature", 3*time.Hour)
	seed(other.ID, "https://www.instagram.com/reel/secret/", "Not Yours", "food", time.Minute)

	t.Run("scoped to user, newest first", func(t *testing.T) {
		list, err := svc.List(ctx, user.ID, ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", list[0].URL)
	})

	t.Run("by source", func(t *testing.T) {
		list, err := svc.List(ctx, user.ID, ListOptions{Source: models.SourceInstagram})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("by category", func(t *testing.T) {
		list, err := svc.List(ctx, user.ID, ListOptions{Category: "food"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Pasta Night", *list[0].Title)
	})

	t.Run("search is case-insensitive over url and title", func(t *testing.T) {
		list, err := svc.List(ctx, user.ID, ListOptions{Search: "PASTA"})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = svc.List(ctx, user.ID, ListOptions{Search: "youtube"})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("combined filters", func(t *testing.T) {
		list, err := svc.List(ctx, user.ID, ListOptions{Source: models.SourceInstagram, Search: "hike"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Mountain Hike", *list[0].Title)
	})
}

func TestCreateBoundsResolverWork(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	resolver := &stubResolver{}
	svc := NewService(db, resolver, nil)

	before := time.Now()
	_, err := svc.Create(context.Background(), user.ID, CreateInput{
		URL: "https://example.com/slow-host",
	})
	require.NoError(t, err)

	require.False(t, resolver.lastDeadline.IsZero(), "resolver ran without a deadline")
	assert.LessOrEqual(t, resolver.lastDeadline.Sub(before), resolveBudget)
}

func TestListBackfillIsBounded(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	resolver := &stubResolver{}
	svc := NewService(db, resolver, nil)

	for i := 0; i < maxListBackfill+3; i++ {
		require.NoError(t, db.Create(&models.Link{
			UserID: user.ID,
			URL:    fmt.Sprintf("https://example.com/no-image-%d", i),
			Source: models.SourceOther,
		}).Error)
	}

	list, err := svc.List(context.Background(), user.ID, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, maxListBackfill+3)

	assert.Equal(t, maxListBackfill, resolver.thumbnailCalls)
	assert.False(t, resolver.lastDeadline.IsZero(), "backfill ran without a deadline")
}

func TestListBackfillsMissingThumbnailOnce(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	resolver := &stubResolver{thumbnail: "https://img.youtube.com/vi/dQw4w9WgXcQ/hqdefault.jpg"}
	hub := &recordingHub{}
	svc := NewService(db, resolver, hub)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Link{
		UserID: user.ID,
		URL:    "https://youtu.be/dQw4w9WgXcQ",
		Source: models.SourceYouTube,
	}).Error)

	list, err := svc.List(ctx, user.ID, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ThumbnailURL)
	assert.Equal(t, "https://img.youtube.com/vi/dQw4w9WgXcQ/hqdefault.jpg", *list[0].ThumbnailURL)
	assert.Equal(t, 1, resolver.thumbnailCalls)
	assert.Contains(t, hub.events, "link_updated")

	// the backfill was persisted, so a second listing resolves nothing
	_, err = svc.List(ctx, user.ID, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.thumbnailCalls)
}

func TestListKeepsMissingThumbnailWhenResolutionFails(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	resolver := &stubResolver{}
	svc := NewService(db, resolver, nil)

	require.NoError(t, db.Create(&models.Link{
		UserID: user.ID,
		URL:    "https://example.com/no-image",
		Source: models.SourceOther,
	}).Error)

	list, err := svc.List(context.Background(), user.ID, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].ThumbnailURL)

	// still retried on the next listing
	_, err = svc.List(context.Background(), user.ID, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.thumbnailCalls)
}

func TestBackfillMissingThumbnails(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	resolver := &stubResolver{thumbnail: "https://cdn.example.com/late.jpg"}
	svc := NewService(db, resolver, nil)

	thumb := "https://cdn.example.com/already.jpg"
	require.NoError(t, db.Create(&models.Link{
		UserID: user.ID, URL: "https://example.com/a", Source: models.SourceOther,
		ThumbnailURL: &thumb,
	}).Error)
	require.NoError(t, db.Create(&models.Link{
		UserID: user.ID, URL: "https://example.com/b", Source: models.SourceOther,
	}).Error)

	filled, err := svc.BackfillMissingThumbnails(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, filled)
	assert.Equal(t, 1, resolver.thumbnailCalls)

	var pending int64
	require.NoError(t, db.Model(&models.Link{}).Where("thumbnail_url IS NULL").Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestGetAndDeleteAreOwnerScoped(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db)
	other := &models.User{Name: "Other", Email: "other@example.com"}
	require.NoError(t, db.Create(other).Error)
	svc := NewService(db, &stubResolver{}, nil)
	ctx := context.Background()

	link, err := svc.Create(ctx, user.ID, CreateInput{URL: "https://example.com/mine"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, user.ID, link.ID)
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)

	_, err = svc.Get(ctx, other.ID, link.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = svc.Delete(ctx, other.ID, link.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	require.NoError(t, svc.Delete(ctx, user.ID, link.ID))
	_, err = svc.Get(ctx, user.ID, link.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
