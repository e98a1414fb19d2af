// Package updates runs mod update checks through the SQLite job queue.
package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/temlaunch/temlaunch/internal/config"
	"github.com/temlaunch/temlaunch/internal/mods"
	"github.com/temlaunch/temlaunch/internal/storage"
)

// JobType is the queue type of a mod update job.
const JobType = "mod_update"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Enqueuer adds jobs to the queue. Implemented by storage.Store.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// ModUpdater updates a single mod. Implemented by mods.Updater.
type ModUpdater interface {
	Update(ctx context.Context, mod string) (mods.Result, error)
}

type updatePayload struct {
	Mod string `json:"mod"`
}

// Enqueue queues one update job per mod and returns the job IDs.
func Enqueue(store Enqueuer, modNames ...string) ([]string, error) {
	ids := make([]string, 0, len(modNames))
	for _, mod := range modNames {
		payload, err := json.Marshal(updatePayload{Mod: mod})
		if err != nil {
			return ids, err
		}
		job := storage.Job{
			ID:          uuid.NewString(),
			Type:        JobType,
			PayloadJSON: string(payload),
		}
		if err := store.EnqueueJob(job); err != nil {
			return ids, fmt.Errorf("enqueueing %s update: %w", mod, err)
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Moment is a point in the launcher lifecycle where updates may be checked.
type Moment string

const (
	OnStart Moment = "start"
	OnExit  Moment = "exit"
)

// Due reports whether the updates.check policy asks for a check at m.
func Due(policy string, m Moment) bool {
	switch policy {
	case config.UpdatesOnLauncherStart:
		return m == OnStart
	case config.UpdatesOnLauncherExit:
		return m == OnExit
	}
	return false
}

// Worker processes mod_update jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	updater ModUpdater
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, updater ModUpdater, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		updater: updater,
		poll:    pollInterval,
		logger:  slog.Default(),
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

// Drain processes jobs until the queue has nothing claimable.
func (w *Worker) Drain(ctx context.Context) error {
	for ctx.Err() == nil {
		done, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
	}
	return ctx.Err()
}

// RunOnce claims and processes a single mod_update job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
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

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload updatePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Mod == "" {
		return fmt.Errorf("payload has no mod")
	}

	res, err := w.updater.Update(ctx, payload.Mod)
	if err != nil {
		return err
	}
	w.logger.Info("mod update checked", "mod", res.Mod, "asset", res.Asset, "updated", res.Updated)
	return nil
}
