// Package bootstrap connects the external systems a gallery process needs.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"gallery/internal/cache"
	"gallery/internal/config"
	"gallery/internal/database"
	"gallery/internal/events"
	"gallery/internal/middleware"
	"gallery/internal/seed"
	"gallery/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty database with fake members and images.
	SeedDemo bool
}

// Runtime is the set of live connections handed to the server.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Blobs storage.BlobStore
	Bus   events.Bus
}

// InitRuntime connects to the database, Redis, the blob store and the event
// bus. Redis may come back nil when unreachable; everything else is required.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	r := cache.Connect(ctx, cfg.RedisURL)

	blobs, err := storage.NewMinioStore(ctx, MinioConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("blob store connection failed: %w", err)
	}

	bus, err := events.FromConfig(cfg.EventBus, cfg.NATSURL, r)
	if err != nil {
		return nil, fmt.Errorf("event bus connection failed: %w", err)
	}

	if opts.SeedDemo {
		if err := seedIfEmpty(ctx, db, blobs); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return &Runtime{DB: db, Redis: r, Blobs: blobs, Bus: bus}, nil
}

// MinioConfig maps the MINIO_* settings onto the blob store config.
func MinioConfig(cfg *config.Config) storage.MinioConfig {
	return storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MinioPublicURL,
	}
}

func seedIfEmpty(ctx context.Context, db *gorm.DB, blobs storage.BlobStore) error {
	var count int64
	if err := db.WithContext(ctx).Table("images").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		middleware.Logger.Info("Skipping demo seed, images already present", slog.Int64("images", count))
		return nil
	}
	_, err := seed.Run(ctx, db, blobs, seed.DefaultOptions())
	return err
}
