package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/calorily/backend/internal/models"
	"github.com/calorily/backend/internal/realtime"
	"github.com/calorily/backend/internal/service"
)

// MockVisionService is a scriptable stand-in for the vision engine
type MockVisionService struct {
	mu      sync.Mutex
	calls   int
	Results []MockVisionCall
}

// MockVisionCall is one scripted engine response
type MockVisionCall struct {
	Result *service.AnalysisResult
	Err    error
}

// Analyze returns the next scripted response, repeating the last one when
// the script runs out.
func (m *MockVisionService) Analyze(ctx context.Context, imageBytes []byte, prior *models.MealAnalysis, feedback string) (*service.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Results) == 0 {
		return &service.AnalysisResult{MealName: "Salad", Ingredients: models.IngredientList{
			{Name: "Lettuce", Amount: 50, Carbs: 2, Proteins: 1, Fats: 0},
		}}, nil
	}
	idx := m.calls
	if idx >= len(m.Results) {
		idx = len(m.Results) - 1
	}
	m.calls++
	call := m.Results[idx]
	return call.Result, call.Err
}

// Calls returns how many times Analyze was invoked
func (m *MockVisionService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockImageStore keeps image bytes in memory
type MockImageStore struct {
	mu     sync.Mutex
	images map[string][]byte
}

func NewMockImageStore() *MockImageStore {
	return &MockImageStore{images: make(map[string][]byte)}
}

func (m *MockImageStore) Put(ctx context.Context, mealID string, imageBytes []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[mealID] = imageBytes
	return nil
}

func (m *MockImageStore) Get(ctx context.Context, mealID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.images[mealID]
	if !ok {
		return nil, fmt.Errorf("no image for meal %s", mealID)
	}
	return data, nil
}

// MockPublisher records published events and signals them on a channel so
// tests can wait for asynchronous outcomes.
type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Ch     chan PublishedEvent
}

// PublishedEvent pairs an event with its target user
type PublishedEvent struct {
	UserID string
	Event  realtime.Event
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Ch: make(chan PublishedEvent, 16)}
}

func (m *MockPublisher) Publish(userID string, event realtime.Event) {
	m.mu.Lock()
	m.events = append(m.events, PublishedEvent{UserID: userID, Event: event})
	m.mu.Unlock()
	select {
	case m.Ch <- PublishedEvent{UserID: userID, Event: event}:
	default:
	}
}

func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// MockDispatcher records submitted jobs without running them
type MockDispatcher struct {
	mu       sync.Mutex
	jobs     []service.AnalysisJob
	Busy     map[string]bool
	NextErr  error
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{Busy: make(map[string]bool)}
}

func (m *MockDispatcher) Submit(job service.AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NextErr != nil {
		err := m.NextErr
		m.NextErr = nil
		return err
	}
	if m.Busy[job.MealID] {
		return service.ErrAlreadyProcessing
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *MockDispatcher) IsProcessing(mealID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Busy[mealID]
}

func (m *MockDispatcher) Jobs() []service.AnalysisJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]service.AnalysisJob, len(m.jobs))
	copy(out, m.jobs)
	return out
}
