package api

import (
	"github.com/calorily/backend/internal/models"
)

// SubmitMealRequest is the body of POST /meals
type SubmitMealRequest struct {
	MealID string `json:"meal_id"`
	B64Img string `json:"b64_img" binding:"required"`
}

// SubmitFeedbackRequest is the body of POST /meals/feedback
type SubmitFeedbackRequest struct {
	MealID   string `json:"meal_id" binding:"required"`
	Feedback string `json:"feedback" binding:"required"`
}

// DevSessionRequest is the body of POST /auth/dev
type DevSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// AppleSessionRequest is the body of POST /auth/apple
type AppleSessionRequest struct {
	IdentityToken string `json:"identity_token" binding:"required"`
}

// AnalysisResponse is one analysis version as rendered to clients
type AnalysisResponse struct {
	MealID       string                `json:"meal_id"`
	Status       string                `json:"status"`
	MealName     string                `json:"meal_name,omitempty"`
	Ingredients  models.IngredientList `json:"ingredients,omitempty"`
	Calories     float64               `json:"calories,omitempty"`
	Error        string                `json:"error,omitempty"`
	Timestamp    string                `json:"timestamp,omitempty"`
	VersionIndex int                   `json:"version_index,omitempty"`
}

const timestampFormat = "2006-01-02T15:04:05.000Z"

// NewAnalysisResponse renders a persisted analysis version
func NewAnalysisResponse(analysis *models.MealAnalysis) AnalysisResponse {
	resp := AnalysisResponse{
		MealID:       analysis.MealID,
		Status:       analysis.Status,
		Timestamp:    analysis.Timestamp.UTC().Format(timestampFormat),
		VersionIndex: analysis.VersionIndex,
	}
	if analysis.Completed() {
		resp.MealName = analysis.MealName
		resp.Ingredients = analysis.Ingredients
		resp.Calories = analysis.Ingredients.Calories()
	} else {
		resp.Error = analysis.ErrorMessage
	}
	return resp
}
