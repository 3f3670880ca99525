package realtime

import "github.com/calorily/backend/internal/models"

// Event kinds pushed to subscribed clients.
const (
	EventAnalysisComplete = "analysis_complete"
	EventAnalysisFailed   = "analysis_failed"
)

// AnalysisPayload is the body of an analysis_complete event.
type AnalysisPayload struct {
	MealID       string                `json:"meal_id"`
	MealName     string                `json:"meal_name"`
	Ingredients  models.IngredientList `json:"ingredients"`
	Calories     float64               `json:"calories"`
	Timestamp    string                `json:"timestamp"`
	VersionIndex int                   `json:"version_index"`
}

// Event is a single push message. Exactly one of Data and Error is set,
// depending on the event kind.
type Event struct {
	MealID string           `json:"meal_id"`
	Event  string           `json:"event"`
	Data   *AnalysisPayload `json:"data,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// AnalysisComplete builds a push event from a completed analysis version.
func AnalysisComplete(analysis *models.MealAnalysis) Event {
	return Event{
		MealID: analysis.MealID,
		Event:  EventAnalysisComplete,
		Data: &AnalysisPayload{
			MealID:       analysis.MealID,
			MealName:     analysis.MealName,
			Ingredients:  analysis.Ingredients,
			Calories:     analysis.Ingredients.Calories(),
			Timestamp:    analysis.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			VersionIndex: analysis.VersionIndex,
		},
	}
}

// AnalysisFailed builds a push event for a failed analysis version.
func AnalysisFailed(analysis *models.MealAnalysis) Event {
	return Event{
		MealID: analysis.MealID,
		Event:  EventAnalysisFailed,
		Error:  analysis.ErrorMessage,
	}
}
