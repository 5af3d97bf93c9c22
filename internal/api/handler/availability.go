package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/davlatzoda/eromap/internal/api/response"
	"github.com/davlatzoda/eromap/internal/compute"
	"github.com/davlatzoda/eromap/internal/dispatch"
	"github.com/davlatzoda/eromap/internal/rusle"
	"github.com/davlatzoda/eromap/pkg/models"
)

// Dispatcher defines the interface the availability handler depends on.
type Dispatcher interface {
	GetOrQueue(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// NewCheckAvailabilityHandler returns an http.HandlerFunc for
// POST /api/v1/erosion/check-availability.
//
// The endpoint answers from the cache when a computed layer exists and
// otherwise dispatches the computation, returning a pollable task id.
func NewCheckAvailabilityHandler(gate Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AreaType string         `json:"area_type"`
			AreaID   *int64         `json:"area_id"`
			Year     int            `json:"year"`
			UserID   *int64         `json:"user_id"`
			Config   map[string]any `json:"config"`
			Geometry map[string]any `json:"geometry"`
			Force    bool           `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		kind, err := models.ParseAreaKind(req.AreaType)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"area_type must be \"region\" or \"district\"", nil)
			return
		}
		if req.AreaID == nil || *req.AreaID < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "area_id is required", nil)
			return
		}
		if req.Year == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "year is required", nil)
			return
		}

		result, err := gate.GetOrQueue(r.Context(), dispatch.Request{
			Area:            models.Area{Kind: kind, ID: *req.AreaID},
			Year:            req.Year,
			UserID:          req.UserID,
			ConfigOverrides: req.Config,
			Geometry:        req.Geometry,
			Force:           req.Force,
		})
		if err != nil {
			writeDispatchError(w, err)
			return
		}

		if result.Status == dispatch.StatusQueued {
			response.Accepted(w, result)
			return
		}
		response.JSON(w, result)
	}
}

func writeDispatchError(w http.ResponseWriter, err error) {
	var verr *rusle.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "INVALID_CONFIG",
			"Configuration overrides failed validation",
			map[string]string{"path": verr.Path, "reason": verr.Reason})
	case errors.Is(err, dispatch.ErrYearOutOfRange):
		response.Error(w, http.StatusBadRequest, "YEAR_OUT_OF_RANGE", err.Error(), nil)
	case errors.Is(err, dispatch.ErrUnknownArea):
		response.Error(w, http.StatusNotFound, "AREA_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, compute.ErrEngineTimeout):
		response.Error(w, http.StatusGatewayTimeout, "ENGINE_TIMEOUT",
			"The computation engine took too long to accept the task", nil)
	case errors.Is(err, compute.ErrEngineUnreachable), errors.Is(err, compute.ErrEngineRejected):
		response.Error(w, http.StatusBadGateway, "ENGINE_UNAVAILABLE",
			"The computation engine is not available", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
