// Package dispatch contains the orchestration core: the dedup gate
// deciding whether a tile request is served from cache, joined to an
// in-flight computation, or dispatched fresh, and the lifecycle
// handler applying the external worker's callbacks to job state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/davlatzoda/eromap/internal/compute"
	"github.com/davlatzoda/eromap/internal/fingerprint"
	"github.com/davlatzoda/eromap/internal/rusle"
	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/pkg/models"
)

// Request statuses returned by the gate.
const (
	StatusAvailable  = "available"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
)

var (
	ErrUnknownArea    = errors.New("unknown area")
	ErrYearOutOfRange = errors.New("year out of range")
)

// ArtifactChecker reports whether a job's tile output actually exists
// on disk. The check runs on every completed-cache read: tile storage
// can be cleared independently of the database, so a stored status flag
// is never trusted alone.
type ArtifactChecker interface {
	TilesExist(tilesPath string) bool
}

// DiskChecker checks tile directories under a storage root.
type DiskChecker struct {
	Root string
}

func (d DiskChecker) TilesExist(tilesPath string) bool {
	if tilesPath == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(d.Root, filepath.FromSlash(tilesPath)))
	return err == nil && info.IsDir()
}

// Request is one availability check / dispatch attempt.
type Request struct {
	Area models.Area
	Year int
	// UserID scopes user-specific computations; nil means the global
	// default scope.
	UserID *int64
	// ConfigOverrides is the sparse override tree; nil means system
	// defaults.
	ConfigOverrides map[string]any
	// Geometry optionally replaces the area's reference geometry.
	Geometry map[string]any
	// Force bypasses a completed cache hit: the stale row is deleted and
	// a fresh computation dispatched even though the cache key is
	// unchanged.
	Force bool
}

// Result is what the UI gets back: either a servable tile layer or a
// pollable handle. The caller never blocks on the computation itself.
type Result struct {
	Status     string              `json:"status"`
	TaskID     string              `json:"task_id,omitempty"`
	TileURL    string              `json:"tile_url,omitempty"`
	Statistics *models.Statistics  `json:"statistics,omitempty"`
	Metadata   *models.JobMetadata `json:"metadata,omitempty"`
	ComputedAt *time.Time          `json:"computed_at,omitempty"`
}

// Gate is the dispatch/dedup decision point. All synchronization runs
// through the store's unique cache-key constraint: concurrent callers
// racing on the same key resolve to one row and at most one dispatch.
type Gate struct {
	store     store.Store
	engine    compute.Engine
	defaults  rusle.Defaults
	artifacts ArtifactChecker
	startYear int
	endYear   int
	logger    *slog.Logger
}

// NewGate creates a Gate.
func NewGate(s store.Store, engine compute.Engine, defaults rusle.Defaults,
	artifacts ArtifactChecker, startYear, endYear int, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:     s,
		engine:    engine,
		defaults:  defaults,
		artifacts: artifacts,
		startYear: startYear,
		endYear:   endYear,
		logger:    logger,
	}
}

// GetOrQueue resolves a request against the cache and dispatches new
// work when necessary.
//
// Jobs stuck in processing (worker crashed between started and a
// terminal callback) stay that way indefinitely; Force is the operator
// remediation. There is deliberately no staleness timeout.
func (g *Gate) GetOrQueue(ctx context.Context, req Request) (*Result, error) {
	if req.Year < g.startYear || req.Year > g.endYear {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrYearOutOfRange, req.Year, g.startYear, g.endYear)
	}

	key, configSnapshot, err := g.cacheKey(req)
	if err != nil {
		return nil, err
	}

	job, err := g.store.GetJobByKey(ctx, key)
	switch {
	case err == nil:
		if res, handled, err := g.resolveExisting(ctx, req, job); handled || err != nil {
			return res, err
		}
		// Fall through: the existing row was failed, stale or forced out
		// and has been deleted.
	case errors.Is(err, store.ErrNotFound):
		// Cache miss.
	default:
		return nil, fmt.Errorf("lookup job: %w", err)
	}

	return g.queue(ctx, req, key, configSnapshot)
}

// cacheKey computes the fingerprint tuple for a request. Configuration
// overrides are validated against the defaults schema before anything
// touches the store.
func (g *Gate) cacheKey(req Request) (models.JobKey, map[string]any, error) {
	key := models.JobKey{
		AreaType:   req.Area.Kind,
		AreaID:     req.Area.ID,
		Year:       req.Year,
		UserID:     req.UserID,
		ConfigHash: models.DefaultConfigHash,
	}

	var snapshot map[string]any
	if len(req.ConfigOverrides) > 0 {
		effective, err := g.defaults.Effective(req.ConfigOverrides)
		if err != nil {
			return models.JobKey{}, nil, err
		}
		hash, err := fingerprint.Config(effective)
		if err != nil {
			return models.JobKey{}, nil, fmt.Errorf("fingerprint config: %w", err)
		}
		key.ConfigHash = hash
		snapshot = effective
	}

	geomHash, err := fingerprint.Geometry(req.Geometry)
	if err != nil {
		return models.JobKey{}, nil, fmt.Errorf("fingerprint geometry: %w", err)
	}
	key.GeometryHash = geomHash

	return key, snapshot, nil
}

// resolveExisting decides what an already-present row means for this
// request. handled=false means the row was removed and the caller
// should queue fresh work.
func (g *Gate) resolveExisting(ctx context.Context, req Request, job *models.Job) (*Result, bool, error) {
	switch job.Status {
	case models.JobStatusCompleted:
		if req.Force {
			if err := g.deleteStale(ctx, job, "force recompute"); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		if job.TilesPath == nil || !g.artifacts.TilesExist(*job.TilesPath) {
			// Database says completed but the tiles are gone. Treat as a
			// cache miss and recompute.
			g.logger.Warn("completed job has missing tile artifacts",
				"area", job.Area().String(), "year", job.Year, "tiles_path", deref(job.TilesPath))
			if err := g.deleteStale(ctx, job, "stale artifacts"); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		return &Result{
			Status:     StatusAvailable,
			TileURL:    tileURLTemplate(job.Area(), job.Year),
			Statistics: job.Statistics,
			Metadata:   job.Metadata,
			ComputedAt: job.ComputedAt,
		}, true, nil

	case models.JobStatusPending, models.JobStatusProcessing:
		// Core dedup guarantee: at most one in-flight computation per
		// cache key. Join the existing job, dispatch nothing.
		status := StatusQueued
		if job.Status == models.JobStatusProcessing {
			status = StatusProcessing
		}
		return &Result{Status: status, TaskID: deref(job.TaskID)}, true, nil

	case models.JobStatusFailed:
		// Failed rows are retryable: replace with a fresh pending row.
		if err := g.deleteStale(ctx, job, "retry after failure"); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return nil, false, fmt.Errorf("job %s has unexpected status %q", job.ID, job.Status)
}

func (g *Gate) deleteStale(ctx context.Context, job *models.Job, reason string) error {
	g.logger.Info("removing job row", "job_id", job.ID, "reason", reason,
		"area", job.Area().String(), "year", job.Year)
	if err := g.store.DeleteJob(ctx, job.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// queue inserts a pending row for the key and dispatches the external
// computation. A unique violation means a concurrent caller won the
// insert race; their job is joined instead.
func (g *Gate) queue(ctx context.Context, req Request, key models.JobKey, configSnapshot map[string]any) (*Result, error) {
	area, err := g.store.GetArea(ctx, req.Area)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownArea, req.Area)
		}
		return nil, fmt.Errorf("resolve area: %w", err)
	}

	job := store.NewPendingJob(key, time.Now().UTC())
	if err := g.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Someone else owns this cache key now: return their handle.
			existing, err := g.store.GetJobByKey(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("lookup job after insert race: %w", err)
			}
			res, handled, err := g.resolveExisting(ctx, req, existing)
			if err != nil {
				return nil, err
			}
			if handled {
				return res, nil
			}
			// The winning row terminated between our insert and lookup;
			// report queued and let the next poll settle it.
			return &Result{Status: StatusQueued, TaskID: deref(existing.TaskID)}, nil
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	geometry := area.Geometry
	bbox := area.BBox
	if req.Geometry != nil {
		geometry = req.Geometry
		bbox = nil
	}

	taskID, err := g.engine.Precompute(ctx, compute.PrecomputeRequest{
		Area:     req.Area,
		Year:     req.Year,
		Geometry: geometry,
		BBox:     bbox,
		Config:   configSnapshot,
	})
	if err != nil {
		// Record the dispatch failure so a later request retries the key.
		if _, ferr := g.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			g.logger.Error("failed to record dispatch failure", "job_id", job.ID, "error", ferr)
		}
		return nil, fmt.Errorf("dispatch computation: %w", err)
	}

	if err := g.store.SetJobTask(ctx, job.ID, taskID); err != nil {
		return nil, fmt.Errorf("persist task id: %w", err)
	}

	g.logger.Info("computation dispatched", "job_id", job.ID, "task_id", taskID,
		"area", req.Area.String(), "year", req.Year,
		"config_hash", key.ConfigHash, "geometry_hash", key.GeometryHash)

	return &Result{Status: StatusQueued, TaskID: taskID}, nil
}

func tileURLTemplate(area models.Area, year int) string {
	return fmt.Sprintf("/api/v1/tiles/%s/%d/%d/{z}/{x}/{y}.png", area.Kind, area.ID, year)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
