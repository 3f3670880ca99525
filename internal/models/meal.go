package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Analysis status values.
const (
	AnalysisCompleted = "completed"
	AnalysisFailed    = "failed"
)

// Ingredient is a single ingredient estimate from the vision engine.
// Amount and the macros are grams.
type Ingredient struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Carbs    float64 `json:"carbs"`
	Proteins float64 `json:"proteins"`
	Fats     float64 `json:"fats"`
}

// IngredientList is a custom type for storing ingredients in a JSONB column
type IngredientList []Ingredient

// Value implements the driver.Valuer interface
func (l IngredientList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface
func (l *IngredientList) Scan(value interface{}) error {
	if value == nil {
		*l = IngredientList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// Calories returns the caloric total derived from the macros (4/4/9 rule).
func (l IngredientList) Calories() float64 {
	var total float64
	for _, ing := range l {
		total += ing.Carbs*4 + ing.Proteins*4 + ing.Fats*9
	}
	return total
}

// Meal is a single logged food entry. The ID is an opaque token the client
// may supply itself; it is immutable once created.
type Meal struct {
	ID        string    `gorm:"primaryKey;size:64" json:"meal_id"`
	UserID    string    `gorm:"size:255;not null;index" json:"user_id"`
	ImageKey  string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for the Meal model
func (Meal) TableName() string {
	return "meals"
}

// MealAnalysis is one immutable analysis result for a meal. Rows are
// append-only; the row with the highest VersionIndex is the current analysis.
type MealAnalysis struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"-"`
	MealID       string         `gorm:"size:64;not null;index;uniqueIndex:idx_meal_version,priority:1" json:"meal_id"`
	VersionIndex int            `gorm:"not null;uniqueIndex:idx_meal_version,priority:2" json:"version_index"`
	Status       string         `gorm:"size:16;not null" json:"status"`
	MealName     string         `gorm:"size:255" json:"meal_name,omitempty"`
	Ingredients  IngredientList `gorm:"type:jsonb;not null;default:'[]'" json:"ingredients"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Timestamp    time.Time      `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for the MealAnalysis model
func (MealAnalysis) TableName() string {
	return "meal_analyses"
}

// Completed reports whether this analysis carries a usable breakdown.
func (a *MealAnalysis) Completed() bool {
	return a.Status == AnalysisCompleted
}

// MealFeedback is one user remark about an analysis. Append-only; each row
// corresponds to exactly one re-analysis attempt.
type MealFeedback struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	MealID    string    `gorm:"size:64;not null;index" json:"meal_id"`
	Feedback  string    `gorm:"type:text;not null" json:"feedback"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// TableName returns the table name for the MealFeedback model
func (MealFeedback) TableName() string {
	return "meal_feedback"
}
