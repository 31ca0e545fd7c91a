package main

import (
	"gorm.io/gorm"

	"github.com/aetherflow/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Credential{},
		&models.OptimizationRecord{},
		&models.ActivityLog{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	return db.AutoMigrate(registerModels()...)
}
