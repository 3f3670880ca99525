package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calorily/backend/internal/models"
	"github.com/calorily/backend/internal/realtime"
	"github.com/calorily/backend/internal/service"
	"github.com/calorily/backend/internal/store"
	"github.com/calorily/backend/internal/testhelpers"
	"github.com/calorily/backend/internal/testhelpers/mocks"
)

func fastConfig() service.DispatcherConfig {
	return service.DispatcherConfig{
		Workers:     2,
		QueueSize:   8,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}
}

func waitForEvent(t *testing.T, publisher *mocks.MockPublisher) mocks.PublishedEvent {
	t.Helper()
	select {
	case evt := <-publisher.Ch:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for push event")
		return mocks.PublishedEvent{}
	}
}

func TestDispatcherSuccessfulAnalysis(t *testing.T) {
	mealStore := store.NewMealStore(testhelpers.SetupTestDB(t))
	vision := &mocks.MockVisionService{}
	publisher := mocks.NewMockPublisher()

	d := service.NewDispatcher(mealStore, nil, vision, publisher, fastConfig())
	d.Start()
	defer d.Stop(context.Background())

	ctx := context.Background()
	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "m1", UserID: "alice", ImageKey: "m1"}))

	require.NoError(t, d.Submit(service.AnalysisJob{
		MealID: "m1", UserID: "alice", Trigger: service.TriggerInitial, Image: []byte("jpeg"),
	}))

	evt := waitForEvent(t, publisher)
	assert.Equal(t, "alice", evt.UserID)
	assert.Equal(t, realtime.EventAnalysisComplete, evt.Event.Event)
	require.NotNil(t, evt.Event.Data)
	assert.Equal(t, "Salad", evt.Event.Data.MealName)
	assert.Equal(t, 1, evt.Event.Data.VersionIndex)

	latest, err := mealStore.LatestAnalysis(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AnalysisCompleted, latest.Status)
	assert.Equal(t, 1, latest.VersionIndex)
}

func TestDispatcherSingleFlight(t *testing.T) {
	mealStore := store.NewMealStore(testhelpers.SetupTestDB(t))
	blocker := make(chan struct{})
	vision := &blockingVision{release: blocker}
	publisher := mocks.NewMockPublisher()

	d := service.NewDispatcher(mealStore, nil, vision, publisher, fastConfig())
	d.Start()
	defer d.Stop(context.Background())

	ctx := context.Background()
	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "m1", UserID: "alice", ImageKey: "m1"}))

	require.NoError(t, d.Submit(service.AnalysisJob{MealID: "m1", UserID: "alice", Image: []byte("jpeg")}))
	assert.True(t, d.IsProcessing("m1"))

	// A second submission while the first is queued or running must be
	// rejected, not raced.
	err := d.Submit(service.AnalysisJob{MealID: "m1", UserID: "alice", Image: []byte("jpeg")})
	assert.ErrorIs(t, err, service.ErrAlreadyProcessing)

	// Unrelated meals are not serialized behind it.
	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "m2", UserID: "alice", ImageKey: "m2"}))
	require.NoError(t, d.Submit(service.AnalysisJob{MealID: "m2", UserID: "alice", Image: []byte("jpeg")}))

	close(blocker)

	waitForEvent(t, publisher)
	waitForEvent(t, publisher)

	// Once the outcome lands the meal is idle again.
	require.Eventually(t, func() bool { return !d.IsProcessing("m1") }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Submit(service.AnalysisJob{MealID: "m1", UserID: "alice", Image: []byte("jpeg")}))
	waitForEvent(t, publisher)
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	mealStore := store.NewMealStore(testhelpers.SetupTestDB(t))
	vision := &mocks.MockVisionService{Results: []mocks.MockVisionCall{
		{Err: &service.EngineError{Message: "connection reset", Transient: true}},
		{Err: &service.EngineError{Message: "timeout", Transient: true}},
		{Result: &service.AnalysisResult{MealName: "Pizza", Ingredients: models.IngredientList{
			{Name: "Dough", Amount: 200, Carbs: 80, Proteins: 10, Fats: 5},
		}}},
	}}
	publisher := mocks.NewMockPublisher()

	d := service.NewDispatcher(mealStore, nil, vision, publisher, fastConfig())
	d.Start()
	defer d.Stop(context.Background())

	ctx := context.Background()
	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "m1", UserID: "alice", ImageKey: "m1"}))
	require.NoError(t, d.Submit(service.AnalysisJob{MealID: "m1", UserID: "alice", Image: []byte("jpeg")}))

	evt := waitForEvent(t, publisher)
	assert.Equal(t, realtime.EventAnalysisComplete, evt.Event.Event)
	assert.Equal(t, 3, vision.Calls())
}

func TestDispatcherPermanentFailure(t *testing.T) {
	mealStore := store.NewMealStore(testhelpers.SetupTestDB(t))
	vision := &mocks.MockVisionService{Results: []mocks.MockVisionCall{
		{Err: &service.EngineError{Message: "image does not contain food", Transient: false}},
	}}
	publisher := mocks.NewMockPublisher()

	d := service.NewDispatcher(mealStore, nil, vision, publisher, fastConfig())
	d.Start()
	defer d.Stop(context.Background())

	ctx := context.Background()
	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "m2", UserID: "bob", ImageKey: "m2"}))
	require.NoError(t, d.Submit(service.AnalysisJob{MealID: "m2", UserID: "bob", Image: []byte("jpeg")}))

	evt := waitForEvent(t, publisher)
	assert.Equal(t, realtime.EventAnalysisFailed, evt.Event.Event)
	assert.Equal(t, "image does not contain food", evt.Event.Error)

	// Permanent failures are not retried.
	assert.Equal(t, 1, vision.Calls())

	latest, err := mealStore.LatestAnalysis(ctx, "m2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AnalysisFailed, latest.Status)
	assert.NotEmpty(t, latest.ErrorMessage)
}

func TestDispatcherRetryExhaustion(t *testing.T) {
	mealStore := store.NewMealStore(testhelpers.SetupTestDB(t))
	vision := &mocks.MockVisionService{Results: []mocks.MockVisionCall{
		{Err: &service.EngineError{Message: "upstream unavailable", Transient: true}},
	}}
	publisher := mocks.NewMockPublisher()

	d := service.NewDispatcher(mealStore, nil, vision, publisher, fastConfig())
	d.Start()
	defer d.Stop(context.Background())

	ctx := context.Background()
	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "m1", UserID: "alice", ImageKey: "m1"}))
	require.NoError(t, d.Submit(service.AnalysisJob{MealID: "m1", UserID: "alice", Image: []byte("jpeg")}))

	evt := waitForEvent(t, publisher)
	assert.Equal(t, realtime.EventAnalysisFailed, evt.Event.Event)
	assert.Equal(t, 3, vision.Calls())
}

func TestDispatcherDiscardsOutcomeForDeletedMeal(t *testing.T) {
	mealStore := store.NewMealStore(testhelpers.SetupTestDB(t))
	blocker := make(chan struct{})
	vision := &blockingVision{release: blocker}
	publisher := mocks.NewMockPublisher()

	d := service.NewDispatcher(mealStore, nil, vision, publisher, fastConfig())
	d.Start()
	defer d.Stop(context.Background())

	ctx := context.Background()
	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "m1", UserID: "alice", ImageKey: "m1"}))
	require.NoError(t, d.Submit(service.AnalysisJob{MealID: "m1", UserID: "alice", Image: []byte("jpeg")}))

	// Delete the meal while the engine call is still running.
	require.NoError(t, mealStore.DeleteMeal(ctx, "m1"))
	close(blocker)

	require.Eventually(t, func() bool { return !d.IsProcessing("m1") }, time.Second, 5*time.Millisecond)

	// The late outcome was discarded: nothing persisted, nothing pushed.
	latest, err := mealStore.LatestAnalysis(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.Empty(t, publisher.Events())
}

// blockingVision holds every Analyze call until release is closed.
type blockingVision struct {
	release chan struct{}
}

func (v *blockingVision) Analyze(ctx context.Context, imageBytes []byte, prior *models.MealAnalysis, feedback string) (*service.AnalysisResult, error) {
	<-v.release
	return &service.AnalysisResult{MealName: "Salad", Ingredients: models.IngredientList{
		{Name: "Lettuce", Amount: 50, Carbs: 2, Proteins: 1, Fats: 0},
	}}, nil
}
