package database

import "gallery/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models,
// parents before children.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.UserProfile{},
		&models.Image{},
		&models.Like{},
		&models.Comment{},
	}
}
