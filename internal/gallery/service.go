// Package gallery lists the shared feed and turns uploads and generated assets
// into stored images.
package gallery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"gallery/internal/cache"
	"gallery/internal/config"
	"gallery/internal/events"
	"gallery/internal/generation"
	"gallery/internal/middleware"
	"gallery/internal/models"
	"gallery/internal/observability"
	"gallery/internal/repository"
	"gallery/internal/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultFeedLimit            = 50
	DefaultImageMaxUploadSizeMB = 10
	// generatedTitleRunes is how much of the prompt becomes a default title.
	generatedTitleRunes = 50
)

var formatMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

var formatExt = map[string]string{
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
	"webp": "webp",
}

// UploadInput is a member's file upload.
type UploadInput struct {
	UserID      string
	Title       string
	Description string
	Tags        []string
	Filename    string
	ContentType string
	Content     []byte
}

// SaveGeneratedInput persists a generated asset under the member's name.
type SaveGeneratedInput struct {
	UserID      string
	Title       string
	Description string
	Tags        []string
	Prompt      string
	Asset       *generation.Asset
}

// Service serves the feed and writes new images.
type Service struct {
	images             repository.ImageRepository
	blobs              storage.BlobStore
	publisher          events.Publisher
	feedLimit          int
	maxUploadSizeBytes int64
	log                *observability.ServiceLogger
}

// NewService wires the gallery service. publisher may be nil.
func NewService(images repository.ImageRepository, blobs storage.BlobStore, publisher events.Publisher, cfg *config.Config) *Service {
	feedLimit := DefaultFeedLimit
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	if cfg != nil {
		if cfg.FeedLimit > 0 {
			feedLimit = cfg.FeedLimit
		}
		if cfg.ImageMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
		}
	}
	return &Service{
		images:             images,
		blobs:              blobs,
		publisher:          publisher,
		feedLimit:          feedLimit,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		log:                observability.NewServiceLogger("gallery", middleware.Logger),
	}
}

// FeedLimit is how many images ListRecent returns.
func (s *Service) FeedLimit() int {
	return s.feedLimit
}

// ListRecent returns the newest images, served from Redis when warm.
func (s *Service) ListRecent(ctx context.Context) ([]*models.Image, error) {
	var images []*models.Image
	err := cache.Aside(ctx, cache.FeedRecentKey(s.feedLimit), &images, cache.FeedTTL, func() error {
		var err error
		images, err = s.images.ListRecent(ctx, s.feedLimit)
		return err
	})
	return images, err
}

// ListAll returns every image, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*models.Image, error) {
	var images []*models.Image
	err := cache.Aside(ctx, cache.FeedAllKey, &images, cache.FeedTTL, func() error {
		var err error
		images, err = s.images.ListAll(ctx)
		return err
	})
	return images, err
}

// ListByUser returns one member's images, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.Image, error) {
	var images []*models.Image
	err := cache.Aside(ctx, cache.FeedUserKey(userID), &images, cache.FeedTTL, func() error {
		var err error
		images, err = s.images.ListByUser(ctx, userID)
		return err
	})
	return images, err
}

// GetByID reads one image straight from the database.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Image, error) {
	return s.images.GetByID(ctx, id)
}

// Upload validates an image file, stores it and records it in the feed.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Image, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, models.NewValidationError("Invalid user")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !strings.HasPrefix(detectedType, "image/") {
		return nil, models.NewValidationError("Invalid image type")
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	mimeType, ok := formatMIME[format]
	if !ok {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, mimeType) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	record := &models.Image{
		Title:       strings.TrimSpace(in.Title),
		Description: optional(in.Description),
		Tags:        in.Tags,
		UserID:      in.UserID,
	}
	if err := s.store(ctx, record, "uploads", formatExt[format], in.Content, mimeType); err != nil {
		return nil, err
	}
	return record, nil
}

// SaveGenerated stores a generated asset as an AI-provenance image. An empty
// title falls back to the start of the prompt.
func (s *Service) SaveGenerated(ctx context.Context, in SaveGeneratedInput) (*models.Image, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, models.NewValidationError("Invalid user")
	}
	if in.Asset == nil || len(in.Asset.Data) == 0 {
		return nil, models.NewValidationError("No generated image to save")
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, models.NewValidationError("Prompt is required")
	}
	if int64(len(in.Asset.Data)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	mediaType := normalizeContentType(in.Asset.MediaType)
	ext := "img"
	if _, format, err := image.DecodeConfig(bytes.NewReader(in.Asset.Data)); err == nil {
		if m, ok := formatMIME[format]; ok {
			mediaType, ext = m, formatExt[format]
		}
	} else if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		ext = strings.TrimPrefix(exts[0], ".")
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, models.NewValidationError("Invalid image type")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = DefaultTitle(prompt)
	}
	model := in.Asset.ProviderID
	record := &models.Image{
		Title:         title,
		Description:   optional(in.Description),
		Tags:          in.Tags,
		UserID:        in.UserID,
		IsAIGenerated: true,
		AIPrompt:      &prompt,
		AIModel:       &model,
	}
	if err := s.store(ctx, record, "generated", ext, in.Asset.Data, mediaType); err != nil {
		return nil, err
	}
	return record, nil
}

// store writes the blob, inserts the row and removes the blob again if the
// insert fails.
func (s *Service) store(ctx context.Context, record *models.Image, prefix, ext string, data []byte, contentType string) (err error) {
	path := fmt.Sprintf("%s/%s/%d-%s.%s", prefix, record.UserID, time.Now().UnixNano(), uuid.NewString(), ext)
	ctx, span := observability.StartSpan(ctx, "gallery.store",
		attribute.String("blob.path", path),
		attribute.Int("blob.bytes", len(data)),
		attribute.Bool("image.ai_generated", record.IsAIGenerated),
	)
	defer func() { span.Finish(err) }()

	url, err := s.blobs.Put(ctx, path, data, contentType)
	if err != nil {
		s.log.Failed(ctx, "store", err, observability.Fields{"path": path})
		return models.NewInternalError(err)
	}
	record.ImageURL = url

	if err := s.images.Create(ctx, record); err != nil {
		if delErr := s.blobs.Delete(ctx, path); delErr != nil {
			s.log.Failed(ctx, "cleanup_blob", delErr, observability.Fields{"path": path})
		}
		if models.IsCode(err, models.CodeValidation) {
			return err
		}
		return models.NewInternalError(err)
	}

	cache.InvalidateFeeds(ctx, s.feedLimit, record.UserID)
	events.Emit(ctx, s.publisher, events.Event{
		Type: events.TypeImageCreated, ImageID: record.ID, UserID: record.UserID, OccurredAt: time.Now().UTC(),
	})
	s.log.Done(ctx, "store", observability.Fields{
		"image_id":        record.ID,
		"is_ai_generated": record.IsAIGenerated,
		"bytes":           len(data),
		"path":            path,
	})
	return nil
}

// DefaultTitle is the first runes of the prompt, used when a generated image
// is saved without a title.
func DefaultTitle(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if utf8.RuneCountInString(prompt) <= generatedTitleRunes {
		return prompt
	}
	return strings.TrimSpace(string([]rune(prompt)[:generatedTitleRunes]))
}

// ParseTags splits a comma-separated tag field into a normalized set.
func ParseTags(raw string) []string {
	return models.NormalizeTags(strings.Split(raw, ","))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeContentType(v string) string {
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return strings.ToLower(mediaType)
}

func isMatchingContentType(provided, actual string) bool {
	if provided == actual {
		return true
	}
	return provided == "image/jpg" && actual == "image/jpeg"
}
