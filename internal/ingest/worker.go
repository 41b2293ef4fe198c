package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/basedpeople/internal/storage"
)

// JobTypeRefetch re-runs the result fetch for a run whose earlier fetch
// failed.
const JobTypeRefetch = "refetch_result"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Ingester fetches and stores the result of one run.
type Ingester interface {
	Ingest(ctx context.Context, slug, name, runID string) (Result, error)
}

// Worker processes refetch_result jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	ingester Ingester
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 1s.
func NewWorker(store JobStore, ingester Ingester, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		store:    store,
		ingester: ingester,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single refetch_result job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeRefetch})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type refetchPayload struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	RunID string `json:"run_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload refetchPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Slug == "" || payload.RunID == "" {
		return fmt.Errorf("payload needs slug and run_id")
	}

	res, err := w.ingester.Ingest(ctx, payload.Slug, payload.Name, payload.RunID)
	if err != nil {
		return err
	}
	if res.Outcome != OutcomeCompleted {
		return fmt.Errorf("refetch for %s ended with %s", payload.Slug, res.Outcome)
	}
	return nil
}
