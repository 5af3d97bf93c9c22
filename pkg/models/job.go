package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// DefaultConfigHash is the config_hash value for jobs computed with the
// unmodified system defaults (no user overrides).
const DefaultConfigHash = "default"

// Job is one precomputation record. The tuple
// (area_type, area_id, year, user_id, config_hash, geometry_hash) is the
// cache key and is unique in the store; two identical requests always
// resolve to the same row.
//
// A completed row is only trusted together with a live check that
// TilesPath still exists on disk. Tile storage can be cleared
// independently of the database, so the status flag alone is not proof
// of availability.
type Job struct {
	ID           uuid.UUID    `db:"id"            json:"id"`
	AreaType     AreaKind     `db:"area_type"     json:"area_type"`
	AreaID       int64        `db:"area_id"       json:"area_id"`
	Year         int          `db:"year"          json:"year"`
	UserID       *int64       `db:"user_id"       json:"user_id,omitempty"`
	ConfigHash   string       `db:"config_hash"   json:"config_hash"`
	GeometryHash string       `db:"geometry_hash" json:"geometry_hash"`
	Status       string       `db:"status"        json:"status"`
	TaskID       *string      `db:"task_id"       json:"task_id,omitempty"`
	GeotiffPath  *string      `db:"geotiff_path"  json:"geotiff_path,omitempty"`
	TilesPath    *string      `db:"tiles_path"    json:"tiles_path,omitempty"`
	Statistics   *Statistics  `db:"statistics"    json:"statistics,omitempty"`
	Metadata     *JobMetadata `db:"metadata"      json:"metadata,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	ComputedAt   *time.Time   `db:"computed_at"   json:"computed_at,omitempty"`
	CreatedAt    time.Time    `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"    json:"updated_at"`
}

// Area returns the tagged area reference for the job.
func (j *Job) Area() Area {
	return Area{Kind: j.AreaType, ID: j.AreaID}
}

// InFlight reports whether the job is still owned by the external
// worker, i.e. a new dispatch for the same cache key must not happen.
func (j *Job) InFlight() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// JobKey is the unique cache-key tuple.
type JobKey struct {
	AreaType     AreaKind
	AreaID       int64
	Year         int
	UserID       *int64
	ConfigHash   string
	GeometryHash string
}

// Key returns the cache-key tuple of the job.
func (j *Job) Key() JobKey {
	return JobKey{
		AreaType:     j.AreaType,
		AreaID:       j.AreaID,
		Year:         j.Year,
		UserID:       j.UserID,
		ConfigHash:   j.ConfigHash,
		GeometryHash: j.GeometryHash,
	}
}
