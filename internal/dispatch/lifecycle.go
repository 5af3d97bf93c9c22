package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/pkg/models"
)

// Lifecycle applies the external worker's out-of-band callbacks to job
// state. Every handler is idempotent and tolerates callbacks it cannot
// correlate: the worker must not retry-storm on callbacks for rows that
// no longer exist, so an unknown task_id is logged and swallowed.
type Lifecycle struct {
	store  store.Store
	logger *slog.Logger
}

// NewLifecycle creates a Lifecycle handler.
func NewLifecycle(s store.Store, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: s, logger: logger}
}

// CompletionReport is the payload of a task-complete callback.
type CompletionReport struct {
	GeotiffPath string
	TilesPath   string
	Statistics  *models.Statistics
	Metadata    *models.JobMetadata
}

// HandleStarted transitions pending -> processing. Started callbacks
// arriving late (after a terminal callback) or repeatedly are no-ops:
// state never regresses.
func (l *Lifecycle) HandleStarted(ctx context.Context, taskID string) error {
	job, ok, err := l.lookup(ctx, taskID, "task-started")
	if err != nil || !ok {
		return err
	}

	moved, err := l.store.MarkJobProcessing(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !moved {
		l.logger.Info("ignoring late started callback", "task_id", taskID, "status", job.Status)
		return nil
	}

	l.logger.Info("job processing", "job_id", job.ID, "task_id", taskID,
		"area", job.Area().String(), "year", job.Year)
	return nil
}

// HandleCompleted records terminal output. A duplicate completion
// overwrites the previous one; the worker is the source of truth for
// output content, so last write wins.
func (l *Lifecycle) HandleCompleted(ctx context.Context, taskID string, report CompletionReport) error {
	job, ok, err := l.lookup(ctx, taskID, "task-complete")
	if err != nil || !ok {
		return err
	}

	out := store.JobOutput{
		GeotiffPath: report.GeotiffPath,
		TilesPath:   report.TilesPath,
		Statistics:  report.Statistics,
		Metadata:    report.Metadata,
		ComputedAt:  time.Now().UTC(),
	}
	moved, err := l.store.CompleteJob(ctx, job.ID, out)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if !moved {
		// Only a failed row refuses completion; the key is retried via a
		// fresh row, never resurrected in place.
		l.logger.Warn("ignoring completion for failed job", "task_id", taskID, "job_id", job.ID)
		return nil
	}

	l.logger.Info("job completed", "job_id", job.ID, "task_id", taskID,
		"area", job.Area().String(), "year", job.Year, "tiles_path", report.TilesPath)
	return nil
}

// HandleFailed transitions pending/processing -> failed. The failed row
// stays queryable; the next GetOrQueue for its key replaces it with a
// fresh pending row.
func (l *Lifecycle) HandleFailed(ctx context.Context, taskID, errorMessage, errorType string) error {
	job, ok, err := l.lookup(ctx, taskID, "task-failed")
	if err != nil || !ok {
		return err
	}

	msg := errorMessage
	if errorType != "" {
		msg = errorType + ": " + errorMessage
	}
	moved, err := l.store.FailJob(ctx, job.ID, msg)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if !moved {
		l.logger.Info("ignoring late failure callback", "task_id", taskID, "status", job.Status)
		return nil
	}

	l.logger.Warn("job failed", "job_id", job.ID, "task_id", taskID,
		"area", job.Area().String(), "year", job.Year, "error", msg)
	return nil
}

// lookup correlates a callback to a job. Unknown task ids are a soft
// failure: logged, no error.
func (l *Lifecycle) lookup(ctx context.Context, taskID, callback string) (*models.Job, bool, error) {
	if taskID == "" {
		l.logger.Warn("callback without task_id", "callback", callback)
		return nil, false, nil
	}
	job, err := l.store.GetJobByTaskID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		l.logger.Warn("callback for unknown task", "callback", callback, "task_id", taskID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup job by task: %w", err)
	}
	return job, true, nil
}
