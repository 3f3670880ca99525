package service

import (
	"context"
	"time"

	"github.com/calorily/backend/internal/models"
	"github.com/calorily/backend/internal/realtime"
)

// VisionAnalyzer is the external image-understanding engine. Calls may take
// seconds and fail transiently; callers classify errors with
// IsTransientEngineError.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, imageBytes []byte, prior *models.MealAnalysis, feedback string) (*AnalysisResult, error)
}

// ImageStore resolves meal ids to stored image bytes.
type ImageStore interface {
	Put(ctx context.Context, mealID string, imageBytes []byte) error
	Get(ctx context.Context, mealID string) ([]byte, error)
}

// EventPublisher fans out push events to a user's live sessions.
type EventPublisher interface {
	Publish(userID string, event realtime.Event)
}

// JobSubmitter accepts analysis jobs for asynchronous execution.
type JobSubmitter interface {
	Submit(job AnalysisJob) error
	IsProcessing(mealID string) bool
}

// IMealService defines the meal lifecycle operations exposed to handlers
type IMealService interface {
	Register(ctx context.Context, userID, mealID string, imageBytes []byte) (string, error)
	SubmitFeedback(ctx context.Context, userID, mealID, feedbackText string) error
	GetMeal(ctx context.Context, mealID string) (*MealDetail, error)
	GetMealImage(ctx context.Context, mealID string) ([]byte, error)
	DeleteMeal(ctx context.Context, userID, mealID string) error
}

// ISyncService defines the catch-up query exposed to handlers
type ISyncService interface {
	AnalysesSince(ctx context.Context, userID string, since time.Time) ([]models.MealAnalysis, error)
}

// IAuthService defines session issuance and validation
type IAuthService interface {
	CreateDevSession(userID string) (string, error)
	CreateAppleSession(ctx context.Context, identityToken string) (string, string, error)
	ValidateToken(token string) (string, error)
}
