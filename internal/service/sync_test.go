package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calorily/backend/internal/models"
	"github.com/calorily/backend/internal/service"
	"github.com/calorily/backend/internal/store"
	"github.com/calorily/backend/internal/testhelpers"
)

func TestSyncAnalysesSince(t *testing.T) {
	mealStore := store.NewMealStore(testhelpers.SetupTestDB(t))
	svc := service.NewSyncService(mealStore)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "old", UserID: "alice", ImageKey: "old"}))
	require.NoError(t, mealStore.AppendAnalysis(ctx, &models.MealAnalysis{
		MealID: "old", Status: models.AnalysisCompleted, MealName: "Soup", Timestamp: base,
	}))

	require.NoError(t, mealStore.CreateMeal(ctx, &models.Meal{ID: "new", UserID: "alice", ImageKey: "new"}))
	require.NoError(t, mealStore.AppendAnalysis(ctx, &models.MealAnalysis{
		MealID: "new", Status: models.AnalysisCompleted, MealName: "Stew", Timestamp: base.Add(time.Hour),
	}))

	// A client fully caught up to base sees only the newer meal.
	analyses, err := svc.AnalysesSince(ctx, "alice", base)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, "new", analyses[0].MealID)

	// A fresh client with the zero timestamp gets everything.
	analyses, err = svc.AnalysesSince(ctx, "alice", time.Time{})
	require.NoError(t, err)
	assert.Len(t, analyses, 2)

	// Other users see nothing.
	analyses, err = svc.AnalysesSince(ctx, "bob", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, analyses)
}
