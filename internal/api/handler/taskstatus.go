package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davlatzoda/eromap/internal/api/response"
	"github.com/davlatzoda/eromap/internal/cache"
	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/pkg/models"
	"github.com/go-chi/chi/v5"
)

// taskStatusTTL bounds how stale a polled status can be. The UI polls
// every couple of seconds while a map layer computes; the cache absorbs
// that without a database read per poll.
const taskStatusTTL = 5 * time.Second

// JobFinder looks up jobs by their engine task id.
type JobFinder interface {
	GetJobByTaskID(ctx context.Context, taskID string) (*models.Job, error)
}

type taskStatus struct {
	TaskID     string              `json:"task_id"`
	Status     string              `json:"status"`
	TileURL    string              `json:"tile_url,omitempty"`
	Statistics *models.Statistics  `json:"statistics,omitempty"`
	Metadata   *models.JobMetadata `json:"metadata,omitempty"`
	Error      string              `json:"error,omitempty"`
	ComputedAt *time.Time          `json:"computed_at,omitempty"`
}

// NewTaskStatusHandler returns an http.HandlerFunc for
// GET /api/v1/erosion/tasks/{taskID}.
func NewTaskStatusHandler(finder JobFinder, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		if taskID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "task id is required", nil)
			return
		}

		cacheKey := cache.TaskStatusKey(taskID)
		if cached, ok, err := c.Get(r.Context(), cacheKey); err == nil && ok {
			var status taskStatus
			if json.Unmarshal(cached, &status) == nil {
				response.JSON(w, status)
				return
			}
		}

		job, err := finder.GetJobByTaskID(r.Context(), taskID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "TASK_NOT_FOUND",
				fmt.Sprintf("No job for task %q", taskID), nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to look up task", nil)
			return
		}

		status := statusForJob(taskID, job)
		if body, err := json.Marshal(status); err == nil {
			// Best effort; a cold cache just means one extra DB read.
			_ = c.Set(r.Context(), cacheKey, body, taskStatusTTL)
		}
		response.JSON(w, status)
	}
}

func statusForJob(taskID string, job *models.Job) taskStatus {
	status := taskStatus{TaskID: taskID, Status: job.Status}
	switch job.Status {
	case models.JobStatusCompleted:
		status.TileURL = fmt.Sprintf("/api/v1/tiles/%s/%d/%d/{z}/{x}/{y}.png",
			job.AreaType, job.AreaID, job.Year)
		status.Statistics = job.Statistics
		status.Metadata = job.Metadata
		status.ComputedAt = job.ComputedAt
	case models.JobStatusFailed:
		if job.ErrorMessage != nil {
			status.Error = *job.ErrorMessage
		}
	}
	return status
}
