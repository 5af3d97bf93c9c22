package store

import (
	"context"
	"errors"
	"time"

	"github.com/davlatzoda/eromap/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
//
// The jobs table is the single synchronization point for the dispatch
// gate: CreateJob relies on the unique index over the cache-key tuple,
// and callers treat ErrDuplicateKey as "another caller already owns this
// key", never as a failure.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByKey(ctx context.Context, key models.JobKey) (*models.Job, error)
	GetJobByTaskID(ctx context.Context, taskID string) (*models.Job, error)
	SetJobTask(ctx context.Context, id uuid.UUID, taskID string) error
	// MarkJobProcessing transitions pending -> processing. Returns false
	// without error when the job is not pending (late or duplicate
	// started callback).
	MarkJobProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	// CompleteJob records terminal output. Allowed from pending,
	// processing and completed (a duplicate completion overwrites,
	// last-write-wins); a failed row is never resurrected in place.
	CompleteJob(ctx context.Context, id uuid.UUID, out JobOutput) (bool, error)
	// FailJob transitions pending/processing -> failed.
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	// DeleteJobs removes rows matching the filter and returns the count.
	DeleteJobs(ctx context.Context, filter JobFilter) (int64, error)

	// GetArea resolves a region or district to its reference geometry.
	GetArea(ctx context.Context, area models.Area) (*models.AreaGeometry, error)
	ListAreas(ctx context.Context) ([]models.Area, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	CountAPIKeys(ctx context.Context) (int, error)
}

// JobOutput is everything a completion callback persists.
type JobOutput struct {
	GeotiffPath string
	TilesPath   string
	Statistics  *models.Statistics
	Metadata    *models.JobMetadata
	ComputedAt  time.Time
}

// JobFilter narrows administrative job deletion. Zero fields match
// everything.
type JobFilter struct {
	AreaType models.AreaKind
	AreaID   int64
	Year     int
}
