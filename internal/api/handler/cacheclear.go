package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/davlatzoda/eromap/internal/api/response"
	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/pkg/models"
)

// JobDeleter defines the interface the cache-clear handler depends on.
type JobDeleter interface {
	DeleteJobs(ctx context.Context, filter store.JobFilter) (int64, error)
}

// NewCacheClearHandler returns an http.HandlerFunc for
// POST /api/v1/admin/cache-clear.
//
// Clearing removes job rows only. Tile pyramids on disk stay until the
// next recomputation overwrites them; a cleared row simply makes the
// next availability check dispatch fresh work.
func NewCacheClearHandler(deleter JobDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AreaType string `json:"area_type"`
			AreaID   int64  `json:"area_id"`
			Year     int    `json:"year"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		filter := store.JobFilter{AreaID: req.AreaID, Year: req.Year}
		if req.AreaType != "" {
			kind, err := models.ParseAreaKind(req.AreaType)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"area_type must be \"region\" or \"district\"", nil)
				return
			}
			filter.AreaType = kind
		}

		deleted, err := deleter.DeleteJobs(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to clear cache", nil)
			return
		}
		response.JSON(w, map[string]int64{"deleted": deleted})
	}
}
