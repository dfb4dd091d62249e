package repository

import (
	"context"

	"gallery/internal/models"

	"gorm.io/gorm"
)

// UserProfileRepository defines data operations for member profiles.
type UserProfileRepository interface {
	Create(ctx context.Context, profile *models.UserProfile) error
	GetByID(ctx context.Context, id string) (*models.UserProfile, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.UserProfile, error)
}

type userProfileRepository struct {
	db *gorm.DB
}

// NewUserProfileRepository creates a new UserProfileRepository
func NewUserProfileRepository(db *gorm.DB) UserProfileRepository {
	return &userProfileRepository{db: db}
}

func (r *userProfileRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	return translateError(r.db.WithContext(ctx).Create(profile).Error)
}

func (r *userProfileRepository) GetByID(ctx context.Context, id string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *userProfileRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.UserProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []*models.UserProfile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error
	return profiles, err
}
