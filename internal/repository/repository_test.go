package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"gallery/internal/models"
	"gallery/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

type fixture struct {
	db       *gorm.DB
	images   ImageRepository
	likes    LikeRepository
	comments CommentRepository
	profiles UserProfileRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	return &fixture{
		db:       db,
		images:   NewImageRepository(db),
		likes:    NewLikeRepository(db),
		comments: NewCommentRepository(db),
		profiles: NewUserProfileRepository(db),
	}
}

func (f *fixture) profile(t *testing.T, username string) *models.UserProfile {
	t.Helper()
	p := &models.UserProfile{Email: username + "@example.com", Username: strPtr(username)}
	require.NoError(t, f.profiles.Create(context.Background(), p))
	return p
}

func (f *fixture) image(t *testing.T, owner, title string) *models.Image {
	t.Helper()
	img := &models.Image{Title: title, ImageURL: "http://blob/" + title + ".png", UserID: owner, Tags: []string{"b", "a", "b"}}
	require.NoError(t, f.images.Create(context.Background(), img))
	return img
}

func (f *fixture) reload(t *testing.T, id string) *models.Image {
	t.Helper()
	img, err := f.images.GetByID(context.Background(), id)
	require.NoError(t, err)
	return img
}

func TestImageRepository_CreateAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.profile(t, "alice")
	bob := f.profile(t, "bob")

	first := f.image(t, alice.ID, "first")
	time.Sleep(5 * time.Millisecond)
	second := f.image(t, bob.ID, "second")
	time.Sleep(5 * time.Millisecond)
	third := f.image(t, alice.ID, "third")

	assert.NotEmpty(t, first.ID)
	assert.Equal(t, []string{"a", "b"}, f.reload(t, first.ID).Tags)

	recent, err := f.images.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, third.ID, recent[0].ID)
	assert.Equal(t, second.ID, recent[1].ID)

	all, err := f.images.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := f.images.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID)

	_, err = f.images.ListRecent(ctx, 0)
	assert.Error(t, err)

	_, err = f.images.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestImageRepository_CreateRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	err := f.images.Create(context.Background(), &models.Image{
		Title: "x", ImageURL: "http://x", UserID: "u", IsAIGenerated: true,
	})
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestLikeRepository_CounterFollowsRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.profile(t, "owner")
	img := f.image(t, owner.ID, "pic")

	_, err := f.likes.Find(ctx, img.ID, "u1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	l1 := &models.Like{ImageID: img.ID, UserID: "u1"}
	count, err := f.likes.Create(ctx, l1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = f.likes.Create(ctx, &models.Like{ImageID: img.ID, UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, count, f.reload(t, img.ID).LikeCount)

	_, err = f.likes.Create(ctx, &models.Like{ImageID: img.ID, UserID: "u1"})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, 2, f.reload(t, img.ID).LikeCount, "a rejected insert must not move the counter")

	count, err = f.likes.LikeCount(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	found, err := f.likes.Find(ctx, img.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, l1.ID, found.ID)

	count, err = f.likes.Delete(ctx, l1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, count, f.reload(t, img.ID).LikeCount)
	_, err = f.likes.Delete(ctx, l1.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = f.likes.LikeCount(ctx, "ghost")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	likes, err := f.likes.ListByImage(ctx, img.ID)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, "u2", likes[0].UserID)
}

func TestLikeRepository_CreateOnMissingImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.likes.Create(ctx, &models.Like{ImageID: "ghost", UserID: "u1"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	likes, err := f.likes.ListByImage(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, likes, "the like insert must roll back with the counter update")
}

func TestCommentRepository_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.profile(t, "owner")
	carol := f.profile(t, "carol")
	img := f.image(t, owner.ID, "pic")

	c1 := &models.Comment{ImageID: img.ID, UserID: carol.ID, Content: "lovely"}
	require.NoError(t, f.comments.Create(ctx, c1))
	assert.Equal(t, "carol", c1.AuthorName())

	time.Sleep(5 * time.Millisecond)
	c2 := &models.Comment{ImageID: img.ID, UserID: owner.ID, Content: "thanks"}
	require.NoError(t, f.comments.Create(ctx, c2))
	assert.Equal(t, 2, f.reload(t, img.ID).CommentCount)

	list, err := f.comments.ListByImage(ctx, img.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c1.ID, list[0].ID)
	assert.Equal(t, "owner", list[1].AuthorName())

	err = f.comments.Delete(ctx, c1.ID, owner.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, 2, f.reload(t, img.ID).CommentCount)

	require.NoError(t, f.comments.Delete(ctx, c1.ID, carol.ID))
	assert.Equal(t, 1, f.reload(t, img.ID).CommentCount)

	_, err = f.comments.GetByID(ctx, c1.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.ErrorIs(t, f.comments.Delete(ctx, c1.ID, carol.ID), gorm.ErrRecordNotFound)
}

func TestCommentRepository_ListKeepsInsertionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.profile(t, "owner")
	img := f.image(t, owner.ID, "pic")

	// Back-to-back inserts land within one clock tick; random ids must not
	// decide their order.
	var want []string
	for i := 0; i < 25; i++ {
		c := &models.Comment{ImageID: img.ID, UserID: owner.ID, Content: fmt.Sprintf("reply %d", i)}
		require.NoError(t, f.comments.Create(ctx, c))
		want = append(want, c.ID)
	}

	list, err := f.comments.ListByImage(ctx, img.ID)
	require.NoError(t, err)
	got := make([]string, 0, len(list))
	for _, c := range list {
		got = append(got, c.ID)
	}
	assert.Equal(t, want, got)
}

func TestCommentRepository_CreateWithoutProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.profile(t, "owner")
	img := f.image(t, owner.ID, "pic")

	c := &models.Comment{ImageID: img.ID, UserID: "no-profile", Content: "hi"}
	require.NoError(t, f.comments.Create(ctx, c))
	assert.Empty(t, c.AuthorName())
}

func TestUserProfileRepository_UniqueEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.profile(t, "dora")

	err := f.profiles.Create(ctx, &models.UserProfile{Email: p.Email})
	assert.ErrorIs(t, err, models.ErrConflict)

	got, err := f.profiles.GetByIDs(ctx, []string{p.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dora", got[0].DisplayName())
}

func TestLikeRepository_CreateBeginFails(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	repo := NewLikeRepository(db)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := repo.Create(context.Background(), &models.Like{ImageID: "img", UserID: "u"})
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepository_ListByImageQueryFails(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	repo := NewCommentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "comments" WHERE image_id = $1`)).
		WithArgs("img").
		WillReturnError(errors.New("disk full"))

	_, err := repo.ListByImage(context.Background(), "img")
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
