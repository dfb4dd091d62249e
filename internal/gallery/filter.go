package gallery

import (
	"strings"

	"gallery/internal/models"
)

// Kind narrows the feed by provenance.
type Kind string

const (
	KindAll     Kind = "all"
	KindAI      Kind = "ai"
	KindUploads Kind = "uploads"
)

// ParseKind accepts "", "all", "ai" and "uploads", case-insensitively.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "", KindAll:
		return KindAll, nil
	case KindAI, KindUploads:
		return k, nil
	default:
		return "", models.NewValidationError("kind must be all, ai or uploads")
	}
}

// Filter selects feed images by a search term and provenance. The zero value
// keeps everything.
type Filter struct {
	// Query matches case-insensitively against title, description and tags.
	Query string
	Kind  Kind
}

// Apply returns the images that pass f, preserving order. images is not
// modified.
func (f Filter) Apply(images []*models.Image) []*models.Image {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	if query == "" && (f.Kind == "" || f.Kind == KindAll) {
		return images
	}
	out := make([]*models.Image, 0, len(images))
	for _, img := range images {
		if f.keepsKind(img) && matches(img, query) {
			out = append(out, img)
		}
	}
	return out
}

func (f Filter) keepsKind(img *models.Image) bool {
	switch f.Kind {
	case KindAI:
		return img.IsAIGenerated
	case KindUploads:
		return !img.IsAIGenerated
	default:
		return true
	}
}

func matches(img *models.Image, query string) bool {
	if query == "" || strings.Contains(strings.ToLower(img.Title), query) {
		return true
	}
	if img.Description != nil && strings.Contains(strings.ToLower(*img.Description), query) {
		return true
	}
	for _, tag := range img.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
