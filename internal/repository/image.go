// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"fmt"

	"gallery/internal/database"
	"gallery/internal/models"
	"gallery/internal/observability"

	"gorm.io/gorm"
)

// ImageRepository defines storage operations for gallery images.
type ImageRepository interface {
	Create(ctx context.Context, image *models.Image) error
	GetByID(ctx context.Context, id string) (*models.Image, error)
	// ListRecent returns at most limit images, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.Image, error)
	ListAll(ctx context.Context) ([]*models.Image, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Image, error)
}

type imageRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewImageRepository returns a repository implementation for image metadata.
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db, log: observability.NewRepoLogger("images")}
}

func (r *imageRepository) Create(ctx context.Context, image *models.Image) error {
	if err := image.Validate(); err != nil {
		return err
	}
	defer observability.TrackQuery("create", "images")()

	if err := r.db.WithContext(ctx).Create(image).Error; err != nil {
		r.log.Failed(ctx, "create", err)
		return translateError(err)
	}
	r.log.Created(ctx, observability.Fields{"image_id": image.ID, "user_id": image.UserID, "ai": image.IsAIGenerated})
	return nil
}

func (r *imageRepository) GetByID(ctx context.Context, id string) (*models.Image, error) {
	var image models.Image
	if err := r.db.WithContext(ctx).First(&image, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *imageRepository) ListRecent(ctx context.Context, limit int) ([]*models.Image, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	defer observability.TrackQuery("list_recent", "images")()

	var images []*models.Image
	err := r.db.WithContext(ctx).Order("created_at desc, id desc").Limit(limit).Find(&images).Error
	return images, err
}

func (r *imageRepository) ListAll(ctx context.Context) ([]*models.Image, error) {
	defer observability.TrackQuery("list_all", "images")()

	var images []*models.Image
	err := r.db.WithContext(ctx).Order("created_at desc, id desc").Find(&images).Error
	return images, err
}

func (r *imageRepository) ListByUser(ctx context.Context, userID string) ([]*models.Image, error) {
	var images []*models.Image
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Find(&images).Error
	return images, err
}

// translateError maps driver-level constraint errors onto the model sentinels.
func translateError(err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", models.ErrConflict, err)
	}
	return err
}
