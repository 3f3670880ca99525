package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calorily/backend/internal/models"
)

// ErrMealNotFound is returned when a meal id has no row.
var ErrMealNotFound = errors.New("meal not found")

// MealStore is the typed persistence adapter for meals, analysis versions and
// feedback. It carries no business logic; ownership and lifecycle rules live
// in the service layer.
type MealStore struct {
	db *gorm.DB
}

// NewMealStore creates a new MealStore instance
func NewMealStore(db *gorm.DB) *MealStore {
	return &MealStore{db: db}
}

// CreateMeal inserts a new meal row. The caller is responsible for checking
// duplicates beforehand; a primary-key conflict still surfaces as an error.
func (s *MealStore) CreateMeal(ctx context.Context, meal *models.Meal) error {
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(meal).Error; err != nil {
		return fmt.Errorf("failed to create meal: %w", err)
	}
	return nil
}

// GetMeal retrieves a meal by id.
func (s *MealStore) GetMeal(ctx context.Context, mealID string) (*models.Meal, error) {
	var meal models.Meal
	if err := s.db.WithContext(ctx).First(&meal, "id = ?", mealID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, fmt.Errorf("failed to get meal: %w", err)
	}
	return &meal, nil
}

// DeleteMeal removes a meal and cascades to its analyses and feedback.
func (s *MealStore) DeleteMeal(ctx context.Context, mealID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meal_id = ?", mealID).Delete(&models.MealAnalysis{}).Error; err != nil {
			return fmt.Errorf("failed to delete analyses: %w", err)
		}
		if err := tx.Where("meal_id = ?", mealID).Delete(&models.MealFeedback{}).Error; err != nil {
			return fmt.Errorf("failed to delete feedback: %w", err)
		}
		result := tx.Delete(&models.Meal{}, "id = ?", mealID)
		if result.Error != nil {
			return fmt.Errorf("failed to delete meal: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrMealNotFound
		}
		return nil
	})
}

// AppendAnalysis persists a new analysis version for a meal, assigning the
// next version index. Analyses are append-only and never updated in place.
func (s *MealStore) AppendAnalysis(ctx context.Context, analysis *models.MealAnalysis) error {
	if analysis.ID == uuid.Nil {
		analysis.ID = uuid.New()
	}
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxIndex int
		row := tx.Model(&models.MealAnalysis{}).
			Where("meal_id = ?", analysis.MealID).
			Select("COALESCE(MAX(version_index), 0)")
		if err := row.Scan(&maxIndex).Error; err != nil {
			return fmt.Errorf("failed to read version index: %w", err)
		}
		analysis.VersionIndex = maxIndex + 1
		if err := tx.Create(analysis).Error; err != nil {
			return fmt.Errorf("failed to append analysis: %w", err)
		}
		return nil
	})
}

// LatestAnalysis returns the newest analysis version for a meal, or nil when
// the meal has no versions yet.
func (s *MealStore) LatestAnalysis(ctx context.Context, mealID string) (*models.MealAnalysis, error) {
	var analysis models.MealAnalysis
	err := s.db.WithContext(ctx).
		Where("meal_id = ?", mealID).
		Order("version_index DESC").
		First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest analysis: %w", err)
	}
	return &analysis, nil
}

// LatestAnalysesSince returns, for every meal owned by userID, the single
// newest analysis whose timestamp is strictly after since. Intermediate
// versions produced in the window are not included.
func (s *MealStore) LatestAnalysesSince(ctx context.Context, userID string, since time.Time) ([]models.MealAnalysis, error) {
	sub := s.db.Model(&models.MealAnalysis{}).
		Select("meal_id, MAX(version_index) AS max_version").
		Group("meal_id")

	var analyses []models.MealAnalysis
	err := s.db.WithContext(ctx).Model(&models.MealAnalysis{}).
		Joins("JOIN (?) AS latest ON meal_analyses.meal_id = latest.meal_id AND meal_analyses.version_index = latest.max_version", sub).
		Joins("JOIN meals ON meals.id = meal_analyses.meal_id").
		Where("meals.user_id = ? AND meal_analyses.timestamp > ?", userID, since).
		Order("meal_analyses.timestamp ASC").
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}

// AppendFeedback persists a feedback entry for a meal.
func (s *MealStore) AppendFeedback(ctx context.Context, feedback *models.MealFeedback) error {
	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	if feedback.Timestamp.IsZero() {
		feedback.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(feedback).Error; err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// ListFeedback returns all feedback for a meal, newest first.
func (s *MealStore) ListFeedback(ctx context.Context, mealID string) ([]models.MealFeedback, error) {
	var entries []models.MealFeedback
	err := s.db.WithContext(ctx).
		Where("meal_id = ?", mealID).
		Order("timestamp DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return entries, nil
}
