package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/davlatzoda/eromap/internal/api/response"
	"github.com/davlatzoda/eromap/internal/dispatch"
	"github.com/davlatzoda/eromap/pkg/models"
)

// LifecycleHandler defines the interface the callback handlers depend on.
type LifecycleHandler interface {
	HandleStarted(ctx context.Context, taskID string) error
	HandleCompleted(ctx context.Context, taskID string, report dispatch.CompletionReport) error
	HandleFailed(ctx context.Context, taskID, errorMessage, errorType string) error
}

// callbackAck is the body every lifecycle callback answers with. The
// engine treats anything but a 2xx as a delivery failure and retries,
// so callbacks for unknown or already-settled tasks still ack.
type callbackAck struct {
	Status string `json:"status"`
}

// NewTaskStartedHandler returns an http.HandlerFunc for
// POST /api/v1/erosion/task-started.
func NewTaskStartedHandler(lc LifecycleHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := lc.HandleStarted(r.Context(), req.TaskID); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to record task start", nil)
			return
		}
		response.JSON(w, callbackAck{Status: "ok"})
	}
}

// NewTaskCompletedHandler returns an http.HandlerFunc for
// POST /api/v1/erosion/task-complete.
func NewTaskCompletedHandler(lc LifecycleHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TaskID      string              `json:"task_id"`
			GeotiffPath string              `json:"geotiff_path"`
			TilesPath   string              `json:"tiles_path"`
			Statistics  *models.Statistics  `json:"statistics"`
			Metadata    *models.JobMetadata `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		err := lc.HandleCompleted(r.Context(), req.TaskID, dispatch.CompletionReport{
			GeotiffPath: req.GeotiffPath,
			TilesPath:   req.TilesPath,
			Statistics:  req.Statistics,
			Metadata:    req.Metadata,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to record task completion", nil)
			return
		}
		response.JSON(w, callbackAck{Status: "ok"})
	}
}

// NewTaskFailedHandler returns an http.HandlerFunc for
// POST /api/v1/erosion/task-failed.
func NewTaskFailedHandler(lc LifecycleHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TaskID    string `json:"task_id"`
			Error     string `json:"error"`
			ErrorType string `json:"error_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := lc.HandleFailed(r.Context(), req.TaskID, req.Error, req.ErrorType); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to record task failure", nil)
			return
		}
		response.JSON(w, callbackAck{Status: "ok"})
	}
}
