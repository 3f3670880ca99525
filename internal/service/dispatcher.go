package service

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/calorily/backend/internal/models"
	"github.com/calorily/backend/internal/realtime"
	"github.com/calorily/backend/internal/store"
)

var (
	// ErrAlreadyProcessing means a job for the meal is already queued or
	// running. Callers surface it as a benign "processing" response.
	ErrAlreadyProcessing = errors.New("analysis already in progress")

	// ErrQueueFull means the dispatcher queue is at capacity.
	ErrQueueFull = errors.New("analysis queue is full")
)

// TriggerKind says what caused an analysis job.
type TriggerKind string

const (
	TriggerInitial  TriggerKind = "initial"
	TriggerFeedback TriggerKind = "feedback"
)

// AnalysisJob is one unit of work for the dispatcher. Jobs are transient:
// created by the meal service, consumed exactly once, discarded after the
// outcome is written back.
type AnalysisJob struct {
	MealID   string
	UserID   string
	Trigger  TriggerKind
	Image    []byte
	Prior    *models.MealAnalysis
	Feedback string
}

// DispatcherConfig tunes the worker pool and the retry schedule.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultDispatcherConfig returns the stock settings: 4 workers, 3 attempts,
// 1s base backoff doubling up to 15s.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     4,
		QueueSize:   64,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffCap:  15 * time.Second,
	}
}

func (c *DispatcherConfig) applyDefaults() {
	def := DefaultDispatcherConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = def.BackoffCap
	}
}

// Dispatcher runs analysis jobs on a bounded worker pool. It guarantees at
// most one queued-or-running job per meal; a meal stays marked in flight
// until its outcome has been written back, so version indexes are assigned
// strictly in submission order.
type Dispatcher struct {
	store     *store.MealStore
	cache     *store.AnalysisCache
	vision    VisionAnalyzer
	publisher EventPublisher
	cfg       DispatcherConfig

	jobs chan AnalysisJob
	quit chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewDispatcher creates a new Dispatcher instance. The cache may be nil.
func NewDispatcher(mealStore *store.MealStore, cache *store.AnalysisCache, vision VisionAnalyzer, publisher EventPublisher, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		store:     mealStore,
		cache:     cache,
		vision:    vision,
		publisher: publisher,
		cfg:       cfg,
		jobs:      make(chan AnalysisJob, cfg.QueueSize),
		quit:      make(chan struct{}),
		inflight:  make(map[string]struct{}),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	log.Printf("[Dispatcher] started %d workers", d.cfg.Workers)
}

// Stop drains the workers. In-flight external calls run to completion; their
// outcomes are still written back before the workers exit.
func (d *Dispatcher) Stop(ctx context.Context) error {
	close(d.quit)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a job. It never blocks: a meal with a job already queued or
// running yields ErrAlreadyProcessing, a full queue yields ErrQueueFull.
func (d *Dispatcher) Submit(job AnalysisJob) error {
	d.mu.Lock()
	if _, busy := d.inflight[job.MealID]; busy {
		d.mu.Unlock()
		return ErrAlreadyProcessing
	}
	d.inflight[job.MealID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.jobs <- job:
		return nil
	default:
		d.clearInflight(job.MealID)
		return ErrQueueFull
	}
}

// IsProcessing reports whether a job for the meal is queued or running.
func (d *Dispatcher) IsProcessing(mealID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.inflight[mealID]
	return busy
}

func (d *Dispatcher) clearInflight(mealID string) {
	d.mu.Lock()
	delete(d.inflight, mealID)
	d.mu.Unlock()
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case job := <-d.jobs:
			d.run(job)
		}
	}
}

func (d *Dispatcher) run(job AnalysisJob) {
	defer d.clearInflight(job.MealID)

	result, err := d.analyzeWithRetry(job)

	analysis := &models.MealAnalysis{MealID: job.MealID}
	if err != nil {
		analysis.Status = models.AnalysisFailed
		analysis.ErrorMessage = err.Error()
		log.Printf("[Dispatcher] analysis failed for meal %s: %v", job.MealID, err)
	} else {
		analysis.Status = models.AnalysisCompleted
		analysis.MealName = result.MealName
		analysis.Ingredients = result.Ingredients
	}

	d.recordOutcome(job, analysis)
}

// analyzeWithRetry calls the engine up to MaxAttempts times, backing off
// exponentially with jitter between transient failures.
func (d *Dispatcher) analyzeWithRetry(job AnalysisJob) (*AnalysisResult, error) {
	ctx := context.Background()
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		result, err := d.vision.Analyze(ctx, job.Image, job.Prior, job.Feedback)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsTransientEngineError(err) {
			return nil, err
		}
		if attempt < d.cfg.MaxAttempts {
			delay := d.backoff(attempt)
			log.Printf("[Dispatcher] transient failure for meal %s (attempt %d/%d), retrying in %s: %v",
				job.MealID, attempt, d.cfg.MaxAttempts, delay, err)
			select {
			case <-d.quit:
				return nil, lastErr
			case <-time.After(delay):
			}
		}
	}
	return nil, lastErr
}

// backoff returns base*2^(attempt-1) capped, with +/-50% jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase << (attempt - 1)
	if delay > d.cfg.BackoffCap {
		delay = d.cfg.BackoffCap
	}
	jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)))
	return jittered
}

// recordOutcome persists the analysis version and notifies the user's live
// sessions. If the meal was deleted while the job was in flight, the outcome
// is discarded without error.
func (d *Dispatcher) recordOutcome(job AnalysisJob, analysis *models.MealAnalysis) {
	ctx := context.Background()

	if _, err := d.store.GetMeal(ctx, job.MealID); err != nil {
		if errors.Is(err, store.ErrMealNotFound) {
			log.Printf("[Dispatcher] meal %s deleted mid-flight, discarding outcome", job.MealID)
			return
		}
		log.Printf("[Dispatcher] failed to check meal %s before write-back: %v", job.MealID, err)
		return
	}

	if err := d.store.AppendAnalysis(ctx, analysis); err != nil {
		log.Printf("[Dispatcher] failed to persist analysis for meal %s: %v", job.MealID, err)
		return
	}

	if d.cache != nil {
		if err := d.cache.SetLatest(ctx, analysis); err != nil {
			log.Printf("[Dispatcher] failed to cache analysis for meal %s: %v", job.MealID, err)
		}
	}

	if analysis.Completed() {
		d.publisher.Publish(job.UserID, realtime.AnalysisComplete(analysis))
	} else {
		d.publisher.Publish(job.UserID, realtime.AnalysisFailed(analysis))
	}
}
