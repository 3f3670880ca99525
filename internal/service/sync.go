package service

import (
	"context"
	"time"

	"github.com/calorily/backend/internal/models"
	"github.com/calorily/backend/internal/store"
)

// SyncService answers "what changed since T" for offline catch-up. It is the
// durability backstop for push delivery: a client that missed events asks
// with the newest timestamp it has seen and receives the current state of
// every meal that moved past it.
type SyncService struct {
	store *store.MealStore
}

// NewSyncService creates a new SyncService instance
func NewSyncService(mealStore *store.MealStore) *SyncService {
	return &SyncService{store: mealStore}
}

// AnalysesSince returns the latest analysis of each meal owned by userID
// whose latest analysis is newer than since. At most one version per meal is
// returned; intermediate re-analyses in the window are skipped.
func (s *SyncService) AnalysesSince(ctx context.Context, userID string, since time.Time) ([]models.MealAnalysis, error) {
	return s.store.LatestAnalysesSince(ctx, userID, since)
}
