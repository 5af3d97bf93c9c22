package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/davlatzoda/eromap/internal/api/middleware"
	"github.com/davlatzoda/eromap/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CheckAvailability http.HandlerFunc
	TaskStatusHandler http.HandlerFunc
	TileHandler       http.HandlerFunc

	TaskStartedHandler   http.HandlerFunc
	TaskCompletedHandler http.HandlerFunc
	TaskFailedHandler    http.HandlerFunc

	PrecomputeHandler http.HandlerFunc
	CacheClearHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
//
// Availability checks, tiles and lifecycle callbacks are unauthenticated:
// the map UI and the computation engine both live inside the deployment
// perimeter and carry no API keys. Administrative cache surgery requires
// a key with the admin scope.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Map UI surface
	r.Post("/api/v1/erosion/check-availability", orNotImplemented(deps.CheckAvailability))
	r.Get("/api/v1/erosion/tasks/{taskID}", orNotImplemented(deps.TaskStatusHandler))
	r.Get("/api/v1/tiles/{areaType}/{areaID}/{year}/{z}/{x}/{y}.png", orNotImplemented(deps.TileHandler))

	// Engine lifecycle callbacks
	r.Post("/api/v1/erosion/task-started", orNotImplemented(deps.TaskStartedHandler))
	r.Post("/api/v1/erosion/task-complete", orNotImplemented(deps.TaskCompletedHandler))
	r.Post("/api/v1/erosion/task-failed", orNotImplemented(deps.TaskFailedHandler))

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)
		r.Use(deps.Auth.RequireScope("admin"))

		r.Post("/api/v1/admin/precompute", orNotImplemented(deps.PrecomputeHandler))
		r.Post("/api/v1/admin/cache-clear", orNotImplemented(deps.CacheClearHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
