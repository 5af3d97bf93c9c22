package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/davlatzoda/eromap/internal/api/response"
	"github.com/davlatzoda/eromap/internal/planner"
	"github.com/davlatzoda/eromap/pkg/models"
)

// PlanRunner defines the interface the admin precompute handler
// depends on.
type PlanRunner interface {
	Run(ctx context.Context, req planner.Request) (*planner.Summary, error)
}

// NewPrecomputeHandler returns an http.HandlerFunc for
// POST /api/v1/admin/precompute.
//
// The run executes synchronously; only the queueing is synchronous,
// the computations themselves happen in the external engine. A full
// country run queues a few hundred cells in well under a second.
func NewPrecomputeHandler(p PlanRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Areas []struct {
				AreaType string `json:"area_type"`
				AreaID   int64  `json:"area_id"`
			} `json:"areas"`
			Years     []int `json:"years"`
			StartYear *int  `json:"start_year"`
			EndYear   *int  `json:"end_year"`
			Force     bool  `json:"force"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		years, err := resolveYears(req.Years, req.StartYear, req.EndYear)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		plan := planner.Request{Years: years, Force: req.Force}
		for _, a := range req.Areas {
			kind, err := models.ParseAreaKind(a.AreaType)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"area_type must be \"region\" or \"district\"", nil)
				return
			}
			plan.Areas = append(plan.Areas, models.Area{Kind: kind, ID: a.AreaID})
		}

		summary, err := p.Run(r.Context(), plan)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Precompute run failed", nil)
			return
		}
		response.Accepted(w, summary)
	}
}

// resolveYears accepts either an explicit year list or an inclusive
// start_year/end_year range. Both empty means the full configured
// window, decided by the planner.
func resolveYears(years []int, start, end *int) ([]int, error) {
	if start == nil && end == nil {
		return years, nil
	}
	if len(years) > 0 {
		return nil, errors.New("years and start_year/end_year are mutually exclusive")
	}
	if start == nil || end == nil {
		return nil, errors.New("start_year and end_year must be set together")
	}
	if *start > *end {
		return nil, errors.New("start_year must not exceed end_year")
	}
	out := make([]int, 0, *end-*start+1)
	for y := *start; y <= *end; y++ {
		out = append(out, y)
	}
	return out, nil
}
