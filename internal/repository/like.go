package repository

import (
	"context"

	"gallery/internal/models"
	"gallery/internal/observability"

	"gorm.io/gorm"
)

// LikeRepository persists likes. Create and Delete keep images.like_count in
// step with the rows in the same transaction.
type LikeRepository interface {
	// Find returns gorm.ErrRecordNotFound when the user has not liked the image.
	Find(ctx context.Context, imageID, userID string) (*models.Like, error)
	// Create returns the image's like_count as committed. It returns
	// models.ErrConflict when the pair already exists and
	// gorm.ErrRecordNotFound when the image does not.
	Create(ctx context.Context, like *models.Like) (int, error)
	// Delete returns the image's like_count as committed.
	Delete(ctx context.Context, id string) (int, error)
	// LikeCount reads the image's current like_count.
	LikeCount(ctx context.Context, imageID string) (int, error)
	ListByImage(ctx context.Context, imageID string) ([]*models.Like, error)
}

type likeRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewLikeRepository creates a new LikeRepository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db, log: observability.NewRepoLogger("likes")}
}

func (r *likeRepository) Find(ctx context.Context, imageID, userID string) (*models.Like, error) {
	var like models.Like
	err := r.db.WithContext(ctx).
		Where("image_id = ? AND user_id = ?", imageID, userID).
		First(&like).Error
	if err != nil {
		return nil, err
	}
	return &like, nil
}

func (r *likeRepository) Create(ctx context.Context, like *models.Like) (int, error) {
	defer observability.TrackQuery("create", "likes")()

	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(like).Error; err != nil {
			return translateError(err)
		}
		if err := adjustCounter(tx, like.ImageID, "like_count", 1); err != nil {
			return err
		}
		var err error
		count, err = readCounter(tx, like.ImageID, "like_count")
		return err
	})
	if err != nil {
		r.log.Failed(ctx, "create", err)
		return 0, err
	}
	r.log.Created(ctx, observability.Fields{"image_id": like.ImageID, "user_id": like.UserID, "like_count": count})
	return count, nil
}

func (r *likeRepository) Delete(ctx context.Context, id string) (int, error) {
	defer observability.TrackQuery("delete", "likes")()

	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var like models.Like
		if err := tx.First(&like, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Like{}, "id = ?", id).Error; err != nil {
			return err
		}
		if err := adjustCounter(tx, like.ImageID, "like_count", -1); err != nil {
			return err
		}
		var err error
		count, err = readCounter(tx, like.ImageID, "like_count")
		return err
	})
	if err != nil {
		r.log.Failed(ctx, "delete", err)
		return 0, err
	}
	r.log.Deleted(ctx, observability.Fields{"like_id": id, "like_count": count})
	return count, nil
}

func (r *likeRepository) LikeCount(ctx context.Context, imageID string) (int, error) {
	return readCounter(r.db.WithContext(ctx), imageID, "like_count")
}

func (r *likeRepository) ListByImage(ctx context.Context, imageID string) ([]*models.Like, error) {
	var likes []*models.Like
	err := r.db.WithContext(ctx).
		Where("image_id = ?", imageID).
		Order("created_at asc").
		Find(&likes).Error
	return likes, err
}

// readCounter returns one denormalized image counter. A missing image row is
// reported as gorm.ErrRecordNotFound.
func readCounter(db *gorm.DB, imageID, column string) (int, error) {
	var counts []int
	if err := db.Model(&models.Image{}).Where("id = ?", imageID).Pluck(column, &counts).Error; err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return counts[0], nil
}

// adjustCounter moves a denormalized image counter by delta, never below zero.
// A missing image row is reported as gorm.ErrRecordNotFound.
func adjustCounter(tx *gorm.DB, imageID, column string, delta int) error {
	expr := gorm.Expr(column+" + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END", delta, delta)
	}
	res := tx.Model(&models.Image{}).Where("id = ?", imageID).UpdateColumn(column, expr)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
