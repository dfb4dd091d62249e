// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sort"
	"sync"
	"time"

	"gallery/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImageRepoStub is an in-memory image repository implementation for tests.
type ImageRepoStub struct {
	mu    sync.Mutex
	items map[string]*models.Image
	// CreateErr, when set, is returned by Create after validation.
	CreateErr error
	// Lists counts List* calls so cache tests can tell hits from misses.
	Lists int
}

// NewImageRepoStub creates an in-memory image repository stub for tests.
func NewImageRepoStub() *ImageRepoStub {
	return &ImageRepoStub{items: make(map[string]*models.Image)}
}

// Create validates and stores image metadata in-memory.
func (s *ImageRepoStub) Create(_ context.Context, img *models.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	img.Tags = models.NormalizeTags(img.Tags)
	now := time.Now().UTC()
	img.CreatedAt = now
	img.UpdatedAt = now
	s.items[img.ID] = img
	return nil
}

// GetByID fetches an image by id.
func (s *ImageRepoStub) GetByID(_ context.Context, id string) (*models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return item, nil
}

// ListRecent returns at most limit images, newest first.
func (s *ImageRepoStub) ListRecent(ctx context.Context, limit int) ([]*models.Image, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	all, _ := s.ListAll(ctx)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListAll returns every image, newest first.
func (s *ImageRepoStub) ListAll(_ context.Context) ([]*models.Image, error) {
	return s.filter(func(*models.Image) bool { return true }), nil
}

// ListByUser returns the user's images, newest first.
func (s *ImageRepoStub) ListByUser(_ context.Context, userID string) ([]*models.Image, error) {
	return s.filter(func(img *models.Image) bool { return img.UserID == userID }), nil
}

func (s *ImageRepoStub) filter(keep func(*models.Image) bool) []*models.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lists++
	out := make([]*models.Image, 0, len(s.items))
	for _, img := range s.items {
		if keep(img) {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Blob is one object held by MemoryBlobStore.
type Blob struct {
	Data        []byte
	ContentType string
}

// MemoryBlobStore is an in-memory storage.BlobStore.
type MemoryBlobStore struct {
	mu      sync.Mutex
	Objects map[string]Blob
	// PutErr, when set, fails every Put.
	PutErr error
}

// NewMemoryBlobStore returns an empty blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{Objects: make(map[string]Blob)}
}

// Put stores a copy of data and returns a fake public URL.
func (m *MemoryBlobStore) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[path] = Blob{Data: append([]byte(nil), data...), ContentType: contentType}
	return "http://blobs.test/" + path, nil
}

// Delete removes path; a missing object is not an error.
func (m *MemoryBlobStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, path)
	return nil
}

// Len reports how many objects are stored.
func (m *MemoryBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
