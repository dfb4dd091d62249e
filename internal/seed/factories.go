// Package seed provides helpers to create demo data for the gallery
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"strings"
	"time"

	"gallery/internal/generation"
	"gallery/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds domain entities without persisting them.
type Factory struct {
	fake *gofakeit.Faker
	opts Options
}

// NewFactory creates a Factory. A zero opts.Seed picks a time-based seed.
func NewFactory(opts Options) *Factory {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{fake: gofakeit.New(seed), opts: opts}
}

// Profile builds a member profile with a unique-looking username and email.
func (f *Factory) Profile(n int) *models.UserProfile {
	username := fmt.Sprintf("%s%d", strings.ToLower(f.fake.Username()), n)
	fullName := f.fake.Name()
	avatar := fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username)
	return &models.UserProfile{
		Email:     username + "@example.com",
		Username:  &username,
		FullName:  &fullName,
		AvatarURL: &avatar,
	}
}

// Image builds an image row for owner. imageURL is where its bytes live.
// Some images carry AI provenance, per opts.AIShare.
func (f *Factory) Image(owner *models.UserProfile, imageURL string) *models.Image {
	img := &models.Image{
		Title:     strings.TrimSuffix(f.fake.Sentence(f.fake.IntRange(2, 5)), "."),
		ImageURL:  imageURL,
		UserID:    owner.ID,
		Tags:      f.tags(),
		CreatedAt: f.createdAt(),
	}
	if f.fake.Bool() {
		desc := f.fake.Paragraph(1, 2, 12, " ")
		img.Description = &desc
	}
	if f.fake.Float64Range(0, 1) < f.opts.AIShare {
		providers := generation.Catalog()
		model := providers[f.fake.IntRange(0, len(providers)-1)].ID
		prompt := f.fake.HipsterSentence(8)
		img.IsAIGenerated = true
		img.AIModel = &model
		img.AIPrompt = &prompt
	}
	return img
}

// Comment builds a comment by author on imageID.
func (f *Factory) Comment(imageID, authorID string) *models.Comment {
	return &models.Comment{
		ImageID: imageID,
		UserID:  authorID,
		Content: f.fake.Sentence(f.fake.IntRange(3, 14)),
	}
}

// PNG returns small random image bytes for the blob store.
func (f *Factory) PNG() []byte {
	return f.fake.ImagePng(64, 64)
}

// Pick returns up to n distinct profiles, in random order.
func (f *Factory) Pick(profiles []*models.UserProfile, n int) []*models.UserProfile {
	if n > len(profiles) {
		n = len(profiles)
	}
	shuffled := append([]*models.UserProfile(nil), profiles...)
	f.fake.ShuffleAnySlice(shuffled)
	return shuffled[:n]
}

// Intn returns a value in [0, n].
func (f *Factory) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.fake.IntRange(0, n)
}

var tagPool = []string{
	"landscape", "portrait", "fantasy", "abstract", "nature", "city",
	"night", "anime", "sci-fi", "minimal", "ocean", "retro",
}

func (f *Factory) tags() []string {
	n := f.fake.IntRange(0, 3)
	tags := make([]string, 0, n)
	for i := 0; i < n; i++ {
		tags = append(tags, f.fake.RandomString(tagPool))
	}
	return tags
}

// createdAt spreads timestamps over the last opts.MaxDays days.
func (f *Factory) createdAt() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.fake.IntRange(0, maxDays*24*60)) * time.Minute
	return time.Now().Add(-back)
}
