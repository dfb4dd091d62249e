// Command main runs the database seeder for the gallery.
package main

import (
	"context"
	"flag"
	"log"

	"gallery/internal/bootstrap"
	"gallery/internal/config"
	"gallery/internal/database"
	"gallery/internal/seed"
	"gallery/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	defaults := seed.DefaultOptions()
	numProfiles := flag.Int("profiles", defaults.NumProfiles, "Number of member profiles to create")
	numImages := flag.Int("images", defaults.NumImages, "Number of images to create")
	maxLikes := flag.Int("max-likes", defaults.MaxLikesPerImage, "Upper bound of likes per image")
	maxComments := flag.Int("max-comments", defaults.MaxCommentsPerImage, "Upper bound of comments per image")
	aiShare := flag.Float64("ai-share", defaults.AIShare, "Fraction of images marked as AI generated")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	withBlobs := flag.Bool("blobs", true, "Store generated image bytes in object storage")
	randSeed := flag.Int64("seed", 0, "Random seed, 0 for a random run")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	var blobs storage.BlobStore
	if *withBlobs {
		if blobs, err = storage.NewMinioStore(ctx, bootstrap.MinioConfig(cfg)); err != nil {
			log.Fatalf("Failed to connect to object storage: %v", err)
		}
	}

	if *shouldClean {
		if err := seed.ClearAll(ctx, db); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	sum, err := seed.Run(ctx, db, blobs, seed.Options{
		NumProfiles:         *numProfiles,
		NumImages:           *numImages,
		MaxLikesPerImage:    *maxLikes,
		MaxCommentsPerImage: *maxComments,
		AIShare:             *aiShare,
		MaxDays:             defaults.MaxDays,
		Seed:                *randSeed,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d profiles, %d images, %d likes, %d comments", sum.Profiles, sum.Images, sum.Likes, sum.Comments)
}
