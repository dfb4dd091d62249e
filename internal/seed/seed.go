package seed

import (
	"context"
	"fmt"
	"log/slog"

	"gallery/internal/middleware"
	"gallery/internal/models"
	"gallery/internal/repository"
	"gallery/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumProfiles         int
	NumImages           int
	MaxLikesPerImage    int
	MaxCommentsPerImage int
	// AIShare is the fraction of images marked as AI generated.
	AIShare float64
	MaxDays int
	// Seed makes runs reproducible; zero means random.
	Seed int64
}

// DefaultOptions is a small demo gallery.
func DefaultOptions() Options {
	return Options{
		NumProfiles:         12,
		NumImages:           40,
		MaxLikesPerImage:    8,
		MaxCommentsPerImage: 4,
		AIShare:             0.4,
		MaxDays:             60,
	}
}

// Summary counts what a run created.
type Summary struct {
	Profiles int
	Images   int
	Likes    int
	Comments int
}

// Run populates db with fake members, images, likes and comments. Likes and
// comments go through the repositories so the image counters match the rows.
// With a nil blobs, images point at placeholder URLs instead of stored bytes.
func Run(ctx context.Context, db *gorm.DB, blobs storage.BlobStore, opts Options) (*Summary, error) {
	if opts.NumProfiles <= 0 {
		return nil, fmt.Errorf("seed needs at least one profile")
	}
	middleware.Logger.Info("Starting database seeding",
		slog.Int("profiles", opts.NumProfiles),
		slog.Int("images", opts.NumImages),
	)

	f := NewFactory(opts)
	profilesRepo := repository.NewUserProfileRepository(db)
	imagesRepo := repository.NewImageRepository(db)
	likesRepo := repository.NewLikeRepository(db)
	commentsRepo := repository.NewCommentRepository(db)
	sum := &Summary{}

	profiles := make([]*models.UserProfile, 0, opts.NumProfiles)
	for i := 0; i < opts.NumProfiles; i++ {
		p := f.Profile(i)
		if err := profilesRepo.Create(ctx, p); err != nil {
			return sum, fmt.Errorf("failed to create profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	sum.Profiles = len(profiles)

	for i := 0; i < opts.NumImages; i++ {
		owner := profiles[f.Intn(len(profiles)-1)]
		url, err := imageURL(ctx, f, blobs, owner.ID)
		if err != nil {
			return sum, fmt.Errorf("failed to store image bytes: %w", err)
		}
		img := f.Image(owner, url)
		if err := imagesRepo.Create(ctx, img); err != nil {
			return sum, fmt.Errorf("failed to create image: %w", err)
		}
		sum.Images++

		for _, liker := range f.Pick(profiles, f.Intn(opts.MaxLikesPerImage)) {
			if _, err := likesRepo.Create(ctx, &models.Like{ImageID: img.ID, UserID: liker.ID}); err != nil {
				return sum, fmt.Errorf("failed to create like: %w", err)
			}
			sum.Likes++
		}
		for n := f.Intn(opts.MaxCommentsPerImage); n > 0; n-- {
			author := profiles[f.Intn(len(profiles)-1)]
			if err := commentsRepo.Create(ctx, f.Comment(img.ID, author.ID)); err != nil {
				return sum, fmt.Errorf("failed to create comment: %w", err)
			}
			sum.Comments++
		}
	}

	middleware.Logger.Info("Database seeding completed",
		slog.Int("profiles", sum.Profiles),
		slog.Int("images", sum.Images),
		slog.Int("likes", sum.Likes),
		slog.Int("comments", sum.Comments),
	)
	return sum, nil
}

func imageURL(ctx context.Context, f *Factory, blobs storage.BlobStore, ownerID string) (string, error) {
	name := uuid.NewString()
	if blobs == nil {
		return fmt.Sprintf("https://picsum.photos/seed/%s/800/800", name), nil
	}
	return blobs.Put(ctx, fmt.Sprintf("seed/%s/%s.png", ownerID, name), f.PNG(), "image/png")
}

// ClearAll removes every gallery row, children first.
func ClearAll(ctx context.Context, db *gorm.DB) error {
	middleware.Logger.Info("Clearing existing data")
	for _, table := range []string{"comments", "likes", "images", "user_profiles"} {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
