package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Like represents a user's like on an image.
// The combination of ImageID and UserID must be unique.
type Like struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ImageID   string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_like_image_user" json:"image_id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_like_image_user" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (l *Like) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
