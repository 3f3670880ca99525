package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calorily/backend/internal/service"
)

// MealHandler serves the meal lifecycle and sync endpoints
type MealHandler struct {
	meals service.IMealService
	sync  service.ISyncService
}

// NewMealHandler creates a new MealHandler instance
func NewMealHandler(meals service.IMealService, syncService service.ISyncService) *MealHandler {
	return &MealHandler{meals: meals, sync: syncService}
}

// SubmitMeal registers a meal photo and queues its analysis. The response
// returns immediately; results arrive over the websocket or via sync.
func (h *MealHandler) SubmitMeal(c *gin.Context) {
	var req SubmitMealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "b64_img is required"})
		return
	}

	imageBytes, err := decodeImage(req.B64Img)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid b64_img"})
		return
	}

	userID := c.GetString("user_id")
	mealID, err := h.meals.Register(c.Request.Context(), userID, req.MealID, imageBytes)
	if err != nil {
		if errors.Is(err, service.ErrMealExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "meal already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"meal_id": mealID, "status": "processing"})
}

// SubmitFeedback records a remark and queues a re-analysis.
func (h *MealHandler) SubmitFeedback(c *gin.Context) {
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meal_id and feedback are required"})
		return
	}

	userID := c.GetString("user_id")
	err := h.meals.SubmitFeedback(c.Request.Context(), userID, req.MealID, req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMealNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "meal not found"})
		case errors.Is(err, service.ErrNotMealOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "meal belongs to another user"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error occurred"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"meal_id": req.MealID, "status": "processing"})
}

// GetMeal returns a meal's latest analysis. Publicly readable.
func (h *MealHandler) GetMeal(c *gin.Context) {
	mealID := c.Param("id")
	detail, err := h.meals.GetMeal(c.Request.Context(), mealID)
	if err != nil {
		if errors.Is(err, service.ErrMealNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "meal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error occurred"})
		return
	}

	if detail.Analysis == nil {
		c.JSON(http.StatusOK, AnalysisResponse{MealID: mealID, Status: detail.Status()})
		return
	}
	c.JSON(http.StatusOK, NewAnalysisResponse(detail.Analysis))
}

// GetMealImage serves the stored photo bytes. Publicly readable like the
// meal detail; there is nothing user-identifying in the object itself.
func (h *MealHandler) GetMealImage(c *gin.Context) {
	mealID := c.Param("id")
	data, err := h.meals.GetMealImage(c.Request.Context(), mealID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meal not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// DeleteMeal removes a meal and all of its versions and feedback.
func (h *MealHandler) DeleteMeal(c *gin.Context) {
	mealID := c.Param("id")
	userID := c.GetString("user_id")

	err := h.meals.DeleteMeal(c.Request.Context(), userID, mealID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMealNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "meal not found"})
		case errors.Is(err, service.ErrNotMealOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "meal belongs to another user"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error occurred"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "meal_id": mealID})
}

// SyncAnalyses returns the latest analysis of every owned meal that changed
// after the given timestamp.
func (h *MealHandler) SyncAnalyses(c *gin.Context) {
	sinceStr := c.Query("since")
	if sinceStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since parameter is required"})
		return
	}

	since, err := parseTimestamp(sinceStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp format, use ISO 8601"})
		return
	}

	userID := c.GetString("user_id")
	analyses, err := h.sync.AnalysesSince(c.Request.Context(), userID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error occurred"})
		return
	}

	results := make([]AnalysisResponse, 0, len(analyses))
	for i := range analyses {
		results = append(results, NewAnalysisResponse(&analyses[i]))
	}
	c.JSON(http.StatusOK, gin.H{"analyses": results})
}

// decodeImage accepts raw base64 or a full data URI.
func decodeImage(b64 string) ([]byte, error) {
	if idx := strings.Index(b64, "base64,"); idx >= 0 {
		b64 = b64[idx+len("base64,"):]
	}
	return base64.StdEncoding.DecodeString(b64)
}

func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", value)
}
