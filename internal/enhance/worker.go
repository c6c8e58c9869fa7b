package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghostatlas/ghostatlas/internal/encounter"
)

// DefaultPollInterval is how often the worker checks for pending
// encounters when the queue is empty.
const DefaultPollInterval = 10 * time.Second

// Repository is the subset of the encounter repository the worker needs.
type Repository interface {
	ClaimNextPending(ctx context.Context) (*encounter.Encounter, error)
	CompleteEnhancement(ctx context.Context, id, enhancedStory, illustrationURL string) error
	ReleaseEnhancement(ctx context.Context, id string) error
}

// Storer persists generated illustrations and returns their public URL.
type Storer interface {
	PutIllustration(ctx context.Context, encounterID string, data []byte) (string, error)
}

// Worker drains the pending encounter queue, running each encounter
// through text enhancement and illustration generation.
type Worker struct {
	repo         Repository
	gen          Generator
	store        Storer
	logger       *slog.Logger
	metrics      *Metrics
	pollInterval time.Duration
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithMetrics attaches job metrics to the worker.
func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithPollInterval overrides the idle poll interval.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// NewWorker creates an enhancement worker.
func NewWorker(repo Repository, gen Generator, store Storer, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		repo:         repo,
		gen:          gen,
		store:        store,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes encounters until ctx is cancelled. After draining the
// queue it sleeps for the poll interval before checking again.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		// Drain everything claimable before going back to sleep.
		for {
			processed, err := w.ProcessOne(ctx)
			if err != nil {
				w.logger.Error("enhancement run failed", "error", err)
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOne claims and enhances a single pending encounter. It returns
// false when nothing was claimable. A claim that fails mid-flight is
// released back to pending with its attempt count incremented.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	e, err := w.repo.ClaimNextPending(ctx)
	if err != nil {
		w.incError(ErrorTypeDatabase)
		return false, fmt.Errorf("claim pending: %w", err)
	}
	if e == nil {
		return false, nil
	}

	start := time.Now()
	err = w.enhance(ctx, e)
	if w.metrics != nil {
		w.metrics.ObserveJobDuration(JobTypeEnhance, time.Since(start).Seconds())
	}

	if err != nil {
		w.incTotal(StatusFailure)
		w.logger.Error("enhancement failed",
			"encounter_id", e.ID,
			"attempt", e.EnhanceAttempts+1,
			"error", err,
		)
		if relErr := w.repo.ReleaseEnhancement(ctx, e.ID); relErr != nil {
			w.incError(ErrorTypeDatabase)
			w.logger.Error("release after failure failed", "encounter_id", e.ID, "error", relErr)
		}
		return true, err
	}

	w.incTotal(StatusSuccess)
	w.logger.Info("encounter enhanced",
		"encounter_id", e.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true, nil
}

func (w *Worker) enhance(ctx context.Context, e *encounter.Encounter) error {
	story, err := w.gen.EnhanceStory(ctx, BuildStoryPrompt(e))
	if err != nil {
		w.incError(ErrorTypeTextGeneration)
		return fmt.Errorf("enhance story: %w", err)
	}

	image, err := w.gen.GenerateIllustration(ctx, BuildImagePrompt(e.OriginalStory))
	if err != nil {
		w.incError(ErrorTypeImageGeneration)
		return fmt.Errorf("generate illustration: %w", err)
	}

	illustrationURL, err := w.store.PutIllustration(ctx, e.ID, image)
	if err != nil {
		w.incError(ErrorTypeStorage)
		return fmt.Errorf("store illustration: %w", err)
	}

	if err := w.repo.CompleteEnhancement(ctx, e.ID, story, illustrationURL); err != nil {
		w.incError(ErrorTypeDatabase)
		return fmt.Errorf("complete enhancement: %w", err)
	}
	return nil
}

func (w *Worker) incTotal(status string) {
	if w.metrics != nil {
		w.metrics.IncJobsTotal(JobTypeEnhance, status)
	}
}

func (w *Worker) incError(errorType string) {
	if w.metrics != nil {
		w.metrics.IncJobErrors(JobTypeEnhance, errorType)
	}
}
