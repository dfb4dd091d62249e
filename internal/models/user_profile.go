package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProfile holds the public fields of a gallery member. Authentication
// itself happens elsewhere; the profile ID is the subject of the bearer token.
type UserProfile struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email     string    `gorm:"not null;uniqueIndex" json:"email"`
	FullName  *string   `json:"full_name"`
	Username  *string   `gorm:"uniqueIndex" json:"username"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (p *UserProfile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// DisplayName picks username, then full name, then email.
func (p UserProfile) DisplayName() string {
	if p.Username != nil && strings.TrimSpace(*p.Username) != "" {
		return *p.Username
	}
	if p.FullName != nil && strings.TrimSpace(*p.FullName) != "" {
		return *p.FullName
	}
	return p.Email
}
