package repository

import (
	"context"
	"errors"

	"gallery/internal/models"
	"gallery/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommentRepository defines interface for comment operations. Create and
// Delete keep images.comment_count in step with the rows.
type CommentRepository interface {
	// Create inserts the comment and populates its Author.
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	// ListByImage returns the image's comments in insertion order, authors
	// joined. Ties on created_at only occur across processes and fall back to id.
	ListByImage(ctx context.Context, imageID string) ([]*models.Comment, error)
	// Delete removes a comment owned by requesterID. Someone else's comment
	// yields models.ErrForbidden; an unknown id yields gorm.ErrRecordNotFound.
	Delete(ctx context.Context, id, requesterID string) error
}

type commentRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db, log: observability.NewRepoLogger("comments")}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	defer observability.TrackQuery("create", "comments")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(comment).Error; err != nil {
			return translateError(err)
		}
		return adjustCounter(tx, comment.ImageID, "comment_count", 1)
	})
	if err != nil {
		r.log.Failed(ctx, "create", err)
		return err
	}
	r.log.Created(ctx, observability.Fields{"comment_id": comment.ID, "image_id": comment.ImageID})

	// A missing profile leaves the author blank rather than failing a committed write.
	var author models.UserProfile
	if err := r.db.WithContext(ctx).First(&author, "id = ?", comment.UserID).Error; err == nil {
		comment.Author = author
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.Failed(ctx, "load_author", err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("Author").First(&comment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) ListByImage(ctx context.Context, imageID string) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("image_id = ?", imageID).
		Order("created_at asc, id asc").
		Find(&comments).Error
	return comments, err
}

func (r *commentRepository) Delete(ctx context.Context, id, requesterID string) error {
	defer observability.TrackQuery("delete", "comments")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.First(&comment, "id = ?", id).Error; err != nil {
			return err
		}
		if comment.UserID != requesterID {
			return models.ErrForbidden
		}
		if err := tx.Delete(&models.Comment{}, "id = ?", id).Error; err != nil {
			return err
		}
		return adjustCounter(tx, comment.ImageID, "comment_count", -1)
	})
	if err != nil {
		r.log.Failed(ctx, "delete", err)
		return err
	}
	r.log.Deleted(ctx, observability.Fields{"comment_id": id})
	return nil
}
