package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calorily/backend/internal/models"
)

const latestAnalysisTTL = 24 * time.Hour

// AnalysisCache is a Redis read cache for the latest analysis per meal. It is
// strictly an accelerator for meal detail reads; the database stays the
// source of truth and cache misses fall through silently.
type AnalysisCache struct {
	redis *redis.Client
}

// NewAnalysisCache creates a new AnalysisCache instance
func NewAnalysisCache(client *redis.Client) *AnalysisCache {
	return &AnalysisCache{redis: client}
}

func latestAnalysisKey(mealID string) string {
	return fmt.Sprintf("meal:latest:%s", mealID)
}

// SetLatest stores the latest analysis for a meal with a 24h TTL.
func (c *AnalysisCache) SetLatest(ctx context.Context, analysis *models.MealAnalysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	if err := c.redis.Set(ctx, latestAnalysisKey(analysis.MealID), data, latestAnalysisTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache analysis: %w", err)
	}
	return nil
}

// GetLatest returns the cached latest analysis for a meal, or nil on a miss.
func (c *AnalysisCache) GetLatest(ctx context.Context, mealID string) (*models.MealAnalysis, error) {
	data, err := c.redis.Get(ctx, latestAnalysisKey(mealID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached analysis: %w", err)
	}

	var analysis models.MealAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached analysis: %w", err)
	}
	return &analysis, nil
}

// Invalidate drops the cached analysis for a meal.
func (c *AnalysisCache) Invalidate(ctx context.Context, mealID string) error {
	if err := c.redis.Del(ctx, latestAnalysisKey(mealID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached analysis: %w", err)
	}
	return nil
}
