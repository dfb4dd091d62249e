package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment represents a comment on an image. Comments are never edited in place.
type Comment struct {
	ID        string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ImageID   string      `gorm:"type:varchar(36);not null;index" json:"image_id"`
	UserID    string      `gorm:"type:varchar(36);not null" json:"user_id"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	Author    UserProfile `gorm:"foreignKey:UserID" json:"author"`
	CreatedAt time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not supply one, and a
// creation time strictly after any comment created earlier by this process,
// so created_at alone orders a thread.
func (c *Comment) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = commentClock.next(time.Now())
		c.UpdatedAt = c.CreatedAt
	}
	return nil
}

var commentClock = &monotonicClock{}

// monotonicClock hands out UTC instants at Postgres' microsecond precision,
// each later than the last.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (m *monotonicClock) next(now time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := now.UTC().Truncate(time.Microsecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

// AuthorName is the display name shown next to the comment.
func (c *Comment) AuthorName() string {
	return c.Author.DisplayName()
}
