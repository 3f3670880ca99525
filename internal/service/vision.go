package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/calorily/backend/internal/models"
)

const analysisPrompt = `Analyze the food image provided and output your best estimation in this structured format, don't output the unit. When unsure, make up something plausible. Give an estimation of the quantities for the portion shown in the picture only. If impossible, just output the reason in field "error". {"name": "Name of the food (e.g., Pizza)", "ingredients": [{"name": "Name of the ingredient", "amount": "Estimated amount of this ingredient in grams (g)", "carbs": Float value representing the carbohydrates in grams (g), "proteins": Float value representing the proteins in grams (g), "fats": Float value representing the fats in grams (g)}]}`

const reanalysisPromptFormat = `You already analyzed the food image provided but made a mistake. Output your best estimation in a structured format, don't output the units. When unsure, make up something plausible.
Previous response:
%s
Remark:
"%s"
Expected format:
{"name": "Name of the food (e.g., Pizza)", "ingredients": [{"name": "Name of the ingredient", "amount": "Estimated amount of this ingredient in grams (g)", "carbs": Float value representing the carbohydrates in grams (g), "proteins": Float value representing the proteins in grams (g), "fats": Float value representing the fats in grams (g)}]}`

// EngineError classifies a failed engine call. Transient failures are worth
// retrying (network, timeout, rate limit, upstream 5xx); permanent ones are
// recorded as a failed analysis version.
type EngineError struct {
	Message   string
	Transient bool
}

func (e *EngineError) Error() string {
	return e.Message
}

func transientEngineError(format string, args ...interface{}) *EngineError {
	return &EngineError{Message: fmt.Sprintf(format, args...), Transient: true}
}

func permanentEngineError(format string, args ...interface{}) *EngineError {
	return &EngineError{Message: fmt.Sprintf(format, args...), Transient: false}
}

// IsTransientEngineError reports whether err is a retryable engine failure.
// Anything that is not an EngineError (context cancellation aside) is treated
// as transient, matching the network-error default.
func IsTransientEngineError(err error) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Transient
	}
	return !errors.Is(err, context.Canceled)
}

// AnalysisResult is the parsed nutritional breakdown from the vision engine.
type AnalysisResult struct {
	MealName    string
	Ingredients models.IngredientList
}

// VisionService calls the OpenAI vision API to turn a meal photo into a
// nutritional breakdown.
type VisionService struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// NewVisionService creates a new VisionService instance
func NewVisionService(timeout time.Duration) (*VisionService, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKeyFile := os.Getenv("OPENAI_API_KEY_FILE")
		if apiKeyFile == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY or OPENAI_API_KEY_FILE must be set")
		}

		apiKeyBytes, err := os.ReadFile(apiKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read API key file: %w", err)
		}

		apiKey = strings.TrimSpace(string(apiKeyBytes))
		if apiKey == "" {
			return nil, fmt.Errorf("API key file is empty")
		}
	}

	apiURL := os.Getenv("OPENAI_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openai.com/v1/chat/completions"
	}

	model := os.Getenv("OPENAI_VISION_MODEL")
	if model == "" {
		model = "gpt-4o"
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &VisionService{
		apiKey: apiKey,
		apiURL: apiURL,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// ContentPart is one element of a multimodal chat message
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an inline data URL for the vision API
type ImageURL struct {
	URL string `json:"url"`
}

// VisionMessage represents a message in the chat
type VisionMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// VisionRequest represents a request to the OpenAI chat completions API
type VisionRequest struct {
	Model     string          `json:"model"`
	Messages  []VisionMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

// Analyze sends the meal image to the vision engine. For feedback-triggered
// re-analyses the prior breakdown and the user's remark are folded into the
// prompt so the engine revises rather than starts over.
func (s *VisionService) Analyze(ctx context.Context, imageBytes []byte, prior *models.MealAnalysis, feedback string) (*AnalysisResult, error) {
	prompt := analysisPrompt
	if prior != nil && feedback != "" {
		priorJSON, err := json.Marshal(map[string]interface{}{
			"name":        prior.MealName,
			"ingredients": prior.Ingredients,
		})
		if err != nil {
			return nil, permanentEngineError("failed to encode prior analysis: %v", err)
		}
		prompt = fmt.Sprintf(reanalysisPromptFormat, priorJSON, feedback)
	}

	encoded := base64.StdEncoding.EncodeToString(imageBytes)
	reqBody := VisionRequest{
		Model: s.model,
		Messages: []VisionMessage{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + encoded}},
				},
			},
		},
		MaxTokens: 3000,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanentEngineError("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, permanentEngineError("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transientEngineError("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientEngineError("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, transientEngineError("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return nil, permanentEngineError("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, transientEngineError("failed to decode response: %v", err)
	}

	if len(result.Choices) == 0 {
		return nil, transientEngineError("no response from API")
	}

	return parseAnalysisContent(result.Choices[0].Message.Content)
}

// rawIngredient tolerates the engine returning "50g"-style strings where
// numbers are expected.
type rawIngredient struct {
	Name     string          `json:"name"`
	Amount   json.RawMessage `json:"amount"`
	Carbs    json.RawMessage `json:"carbs"`
	Proteins json.RawMessage `json:"proteins"`
	Fats     json.RawMessage `json:"fats"`
}

func parseAnalysisContent(content string) (*AnalysisResult, error) {
	cleaned := cleanJSON(content)
	if cleaned == "" {
		return nil, permanentEngineError("no JSON object in engine response: %s", content)
	}

	var payload struct {
		Name        string          `json:"name"`
		Ingredients []rawIngredient `json:"ingredients"`
		Error       string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, permanentEngineError("failed to parse engine response: %v", err)
	}

	if payload.Error != "" {
		return nil, permanentEngineError("%s", payload.Error)
	}
	if payload.Name == "" {
		return nil, permanentEngineError("engine response has no meal name")
	}

	ingredients := make(models.IngredientList, 0, len(payload.Ingredients))
	for _, raw := range payload.Ingredients {
		ingredients = append(ingredients, models.Ingredient{
			Name:     raw.Name,
			Amount:   extractFloat(raw.Amount),
			Carbs:    extractFloat(raw.Carbs),
			Proteins: extractFloat(raw.Proteins),
			Fats:     extractFloat(raw.Fats),
		})
	}

	return &AnalysisResult{MealName: payload.Name, Ingredients: ingredients}, nil
}

var (
	lineCommentRegexp = regexp.MustCompile(`//.*`)
	jsonObjectRegexp  = regexp.MustCompile(`(?s)\{.*\}`)
	floatRegexp       = regexp.MustCompile(`\d+(\.\d+)?`)
)

// cleanJSON strips //-comments the model sometimes emits and extracts the
// outer JSON object from surrounding prose.
func cleanJSON(content string) string {
	cleaned := lineCommentRegexp.ReplaceAllString(content, "")
	match := jsonObjectRegexp.FindString(cleaned)
	return strings.TrimSpace(match)
}

// extractFloat coerces a raw JSON value to a float, accepting numbers or
// strings like "50" and "50g".
func extractFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if match := floatRegexp.FindString(str); match != "" {
			var parsed float64
			if _, err := fmt.Sscanf(match, "%f", &parsed); err == nil {
				return parsed
			}
		}
	}
	return 0
}
