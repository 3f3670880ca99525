package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/calorily/backend/internal/models"
)

// RunMigrations creates or updates the meal tables
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Meal{},
		&models.MealAnalysis{},
		&models.MealFeedback{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
