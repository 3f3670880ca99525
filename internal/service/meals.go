package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/calorily/backend/internal/models"
	"github.com/calorily/backend/internal/store"
)

var (
	// ErrMealExists means the meal id is already registered.
	ErrMealExists = errors.New("meal already exists")

	// ErrMealNotFound means there is no meal with the given id.
	ErrMealNotFound = errors.New("meal not found")

	// ErrNotMealOwner means the caller does not own the meal.
	ErrNotMealOwner = errors.New("meal belongs to another user")
)

// MealDetail is a meal together with its current analysis state.
type MealDetail struct {
	Meal     *models.Meal
	Analysis *models.MealAnalysis // nil while the first analysis is pending
}

// Status returns the user-facing state of the meal: "processing" until the
// first version lands, then the latest version's status.
func (d *MealDetail) Status() string {
	if d.Analysis == nil {
		return "processing"
	}
	return d.Analysis.Status
}

// MealService owns the meal lifecycle: it validates requests, persists meals
// and feedback, and hands analysis work to the dispatcher. It is the only
// component that submits jobs.
type MealService struct {
	store      *store.MealStore
	cache      *store.AnalysisCache
	images     ImageStore
	dispatcher JobSubmitter
}

// NewMealService creates a new MealService instance. The cache may be nil.
func NewMealService(mealStore *store.MealStore, cache *store.AnalysisCache, images ImageStore, dispatcher JobSubmitter) *MealService {
	return &MealService{
		store:      mealStore,
		cache:      cache,
		images:     images,
		dispatcher: dispatcher,
	}
}

// Register creates a meal from an uploaded image and queues its first
// analysis. It returns as soon as the job is enqueued; the result arrives via
// push or sync. A client-supplied meal id is honored when free.
func (s *MealService) Register(ctx context.Context, userID, mealID string, imageBytes []byte) (string, error) {
	if mealID == "" {
		mealID = uuid.New().String()
	}

	if _, err := s.store.GetMeal(ctx, mealID); err == nil {
		return "", ErrMealExists
	} else if !errors.Is(err, store.ErrMealNotFound) {
		return "", err
	}

	if err := s.images.Put(ctx, mealID, imageBytes); err != nil {
		return "", fmt.Errorf("failed to store meal image: %w", err)
	}

	meal := &models.Meal{
		ID:       mealID,
		UserID:   userID,
		ImageKey: mealID,
	}
	if err := s.store.CreateMeal(ctx, meal); err != nil {
		return "", err
	}

	err := s.dispatcher.Submit(AnalysisJob{
		MealID:  mealID,
		UserID:  userID,
		Trigger: TriggerInitial,
		Image:   imageBytes,
	})
	if err != nil && !errors.Is(err, ErrAlreadyProcessing) {
		return "", fmt.Errorf("failed to queue analysis: %w", err)
	}

	return mealID, nil
}

// SubmitFeedback records a remark about a meal's current analysis and queues
// exactly one re-analysis. Feedback on a meal that is still being analyzed is
// stored but does not race a second job; the caller sees "processing" either
// way.
func (s *MealService) SubmitFeedback(ctx context.Context, userID, mealID, feedbackText string) error {
	meal, err := s.store.GetMeal(ctx, mealID)
	if err != nil {
		if errors.Is(err, store.ErrMealNotFound) {
			return ErrMealNotFound
		}
		return err
	}
	if meal.UserID != userID {
		return ErrNotMealOwner
	}

	feedback := &models.MealFeedback{
		MealID:    mealID,
		Feedback:  feedbackText,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.AppendFeedback(ctx, feedback); err != nil {
		return err
	}

	prior, err := s.store.LatestAnalysis(ctx, mealID)
	if err != nil {
		return err
	}

	imageBytes, err := s.images.Get(ctx, meal.ImageKey)
	if err != nil {
		return fmt.Errorf("failed to load meal image: %w", err)
	}

	err = s.dispatcher.Submit(AnalysisJob{
		MealID:   mealID,
		UserID:   userID,
		Trigger:  TriggerFeedback,
		Image:    imageBytes,
		Prior:    prior,
		Feedback: feedbackText,
	})
	if errors.Is(err, ErrAlreadyProcessing) {
		// Retriggering mid-flight is meaningless; the feedback is stored
		// and the client already sees a processing state.
		log.Printf("[MealService] meal %s already processing, feedback recorded without new job", mealID)
		return nil
	}
	return err
}

// GetMeal returns a meal with its latest analysis. Meal detail is publicly
// readable; only the image endpoint and mutations check ownership.
func (s *MealService) GetMeal(ctx context.Context, mealID string) (*MealDetail, error) {
	meal, err := s.store.GetMeal(ctx, mealID)
	if err != nil {
		if errors.Is(err, store.ErrMealNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if cached, err := s.cache.GetLatest(ctx, mealID); err == nil && cached != nil {
			return &MealDetail{Meal: meal, Analysis: cached}, nil
		} else if err != nil {
			log.Printf("[MealService] analysis cache read failed for meal %s: %v", mealID, err)
		}
	}

	analysis, err := s.store.LatestAnalysis(ctx, mealID)
	if err != nil {
		return nil, err
	}
	return &MealDetail{Meal: meal, Analysis: analysis}, nil
}

// GetMealImage returns the stored image bytes for a meal.
func (s *MealService) GetMealImage(ctx context.Context, mealID string) ([]byte, error) {
	meal, err := s.store.GetMeal(ctx, mealID)
	if err != nil {
		if errors.Is(err, store.ErrMealNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, err
	}
	return s.images.Get(ctx, meal.ImageKey)
}

// DeleteMeal removes a meal and everything attached to it. An analysis job
// already in flight is not cancelled; the dispatcher discards its outcome
// when it finds the meal gone.
func (s *MealService) DeleteMeal(ctx context.Context, userID, mealID string) error {
	meal, err := s.store.GetMeal(ctx, mealID)
	if err != nil {
		if errors.Is(err, store.ErrMealNotFound) {
			return ErrMealNotFound
		}
		return err
	}
	if meal.UserID != userID {
		return ErrNotMealOwner
	}

	if err := s.store.DeleteMeal(ctx, mealID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, mealID); err != nil {
			log.Printf("[MealService] failed to drop cached analysis for meal %s: %v", mealID, err)
		}
	}
	return nil
}
