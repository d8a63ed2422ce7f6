// Package cleanup retries removal of tool directories whose best-effort
// delete failed after the tool's row was already gone.
package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/tools"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Remover deletes a tool's directory given its stored location.
type Remover interface {
	RemoveToolDir(loc string) error
}

// Worker processes remove_tool_files jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	remover Remover
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 5s.
func NewWorker(store JobStore, remover Remover, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		store:   store,
		remover: remover,
		poll:    pollInterval,
		logger:  slog.Default().With("component", "cleanup"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
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
			return nil
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{tools.JobRemoveToolFiles})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(job *storage.Job) error {
	var payload tools.RemoveFilesPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Filepath == "" {
		return fmt.Errorf("payload has no filepath")
	}
	if err := w.remover.RemoveToolDir(payload.Filepath); err != nil {
		return fmt.Errorf("removing %s: %w", payload.Filepath, err)
	}
	w.logger.Info("removed orphaned tool files", "filepath", payload.Filepath)
	return nil
}
