package handler

import (
	"errors"
	"net/http"

	"github.com/davlatzoda/eromap/internal/api/response"
	"github.com/davlatzoda/eromap/internal/tiles"
	"github.com/go-chi/chi/v5"
)

// NewTileHandler returns an http.HandlerFunc for
// GET /api/v1/tiles/{areaType}/{areaID}/{year}/{z}/{x}/{y}.png.
func NewTileHandler(srv *tiles.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := tiles.ParseRef(
			chi.URLParam(r, "areaType"),
			chi.URLParam(r, "areaID"),
			chi.URLParam(r, "year"),
			chi.URLParam(r, "z"),
			chi.URLParam(r, "x"),
			chi.URLParam(r, "y"),
		)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_TILE", "Invalid tile reference", nil)
			return
		}

		switch err := srv.Serve(w, r, ref); {
		case err == nil:
		case errors.Is(err, tiles.ErrTileNotFound):
			response.Error(w, http.StatusNotFound, "TILE_NOT_FOUND", "Tile not found", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to serve tile", nil)
		}
	}
}
