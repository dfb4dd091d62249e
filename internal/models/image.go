// Package models contains data structures for the application's domain models.
package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Image represents an uploaded or AI-generated picture in the shared gallery.
type Image struct {
	ID          string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title       string   `gorm:"not null" json:"title"`
	Description *string  `gorm:"type:text" json:"description,omitempty"`
	Tags        []string `gorm:"serializer:json;type:text" json:"tags"`
	ImageURL    string   `gorm:"not null" json:"image_url"`
	UserID      string   `gorm:"type:varchar(36);not null;index" json:"user_id"`
	// IsAIGenerated is the provenance flag; AIPrompt and AIModel are set iff it is true.
	IsAIGenerated bool    `gorm:"not null;default:false" json:"is_ai_generated"`
	AIPrompt      *string `gorm:"type:text" json:"ai_prompt,omitempty"`
	AIModel       *string `json:"ai_model,omitempty"`
	// LikeCount and CommentCount are maintained by the repository layer in the
	// same transaction that inserts or deletes the underlying rows.
	LikeCount    int       `gorm:"not null;default:0" json:"like_count"`
	CommentCount int       `gorm:"not null;default:0" json:"comment_count"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (i *Image) BeforeCreate(_ *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	i.Tags = NormalizeTags(i.Tags)
	return nil
}

// Validate checks the row-level invariants of an image before it is persisted.
func (i *Image) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return NewValidationError("Title is required")
	}
	if strings.TrimSpace(i.ImageURL) == "" {
		return NewValidationError("Image URL is required")
	}
	if strings.TrimSpace(i.UserID) == "" {
		return NewValidationError("Owner is required")
	}
	hasAIFields := i.AIPrompt != nil && strings.TrimSpace(*i.AIPrompt) != "" &&
		i.AIModel != nil && strings.TrimSpace(*i.AIModel) != ""
	if i.IsAIGenerated && !hasAIFields {
		return NewValidationError("AI-generated images require a prompt and a model")
	}
	if !i.IsAIGenerated && (i.AIPrompt != nil || i.AIModel != nil) {
		return NewValidationError("AI prompt and model are only allowed on AI-generated images")
	}
	return nil
}

// NormalizeTags trims, drops empties and de-duplicates tags. Tag order carries
// no meaning, so the result is sorted.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
