package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davlatzoda/eromap/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, area_type, area_id, year, user_id, config_hash, geometry_hash,
	 status, task_id, geotiff_path, tiles_path, statistics, metadata,
	 error_message, computed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.AreaType, &j.AreaID, &j.Year, &j.UserID,
		&j.ConfigHash, &j.GeometryHash, &j.Status, &j.TaskID,
		&j.GeotiffPath, &j.TilesPath, &j.Statistics, &j.Metadata,
		&j.ErrorMessage, &j.ComputedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, area_type, area_id, year, user_id, config_hash, geometry_hash,
		   status, task_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.AreaType, job.AreaID, job.Year, job.UserID,
		job.ConfigHash, job.GeometryHash, job.Status, job.TaskID,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJobByKey(ctx context.Context, key models.JobKey) (*models.Job, error) {
	// The COALESCE mirrors the unique index: the NULL user scope is one
	// global scope, not infinitely many.
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE area_type = $1 AND area_id = $2 AND year = $3
		   AND COALESCE(user_id, -1) = COALESCE($4, -1)
		   AND config_hash = $5 AND geometry_hash = $6`,
		key.AreaType, key.AreaID, key.Year, key.UserID, key.ConfigHash, key.GeometryHash)
	return scanJob(row)
}

func (s *PostgresStore) GetJobByTaskID(ctx context.Context, taskID string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE task_id = $1`, taskID)
	return scanJob(row)
}

func (s *PostgresStore) SetJobTask(ctx context.Context, id uuid.UUID, taskID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET task_id = $2, updated_at = NOW() WHERE id = $1`, id, taskID)
	if err != nil {
		return fmt.Errorf("set job task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkJobProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, models.JobStatusProcessing, models.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("mark job processing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, out JobOutput) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, geotiff_path = $3, tiles_path = $4,
		   statistics = $5, metadata = $6, error_message = NULL,
		   computed_at = $7, updated_at = NOW()
		 WHERE id = $1 AND status <> $8`,
		id, models.JobStatusCompleted, out.GeotiffPath, out.TilesPath,
		out.Statistics, out.Metadata, out.ComputedAt, models.JobStatusFailed)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = $3, updated_at = NOW()
		 WHERE id = $1 AND status IN ($4, $5)`,
		id, models.JobStatusFailed, errorMessage,
		models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteJobs(ctx context.Context, filter JobFilter) (int64, error) {
	conditions := []string{}
	args := []any{}
	argIdx := 1

	if filter.AreaType != "" {
		conditions = append(conditions, fmt.Sprintf("area_type = $%d", argIdx))
		args = append(args, filter.AreaType)
		argIdx++
	}
	if filter.AreaID != 0 {
		conditions = append(conditions, fmt.Sprintf("area_id = $%d", argIdx))
		args = append(args, filter.AreaID)
		argIdx++
	}
	if filter.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("year = $%d", argIdx))
		args = append(args, filter.Year)
		argIdx++
	}

	query := "DELETE FROM jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Areas ---

func (s *PostgresStore) GetArea(ctx context.Context, area models.Area) (*models.AreaGeometry, error) {
	ag := models.AreaGeometry{Area: area}
	err := s.pool.QueryRow(ctx,
		`SELECT name, geometry, bbox FROM areas WHERE area_type = $1 AND area_id = $2`,
		area.Kind, area.ID,
	).Scan(&ag.Name, &ag.Geometry, &ag.BBox)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get area: %w", err)
	}
	return &ag, nil
}

func (s *PostgresStore) ListAreas(ctx context.Context) ([]models.Area, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT area_type, area_id FROM areas ORDER BY area_type, area_id`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	var areas []models.Area
	for rows.Next() {
		var a models.Area
		if err := rows.Scan(&a.Kind, &a.ID); err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return n, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)

// NewPendingJob builds a fresh pending row for the given cache key.
func NewPendingJob(key models.JobKey, now time.Time) *models.Job {
	return &models.Job{
		ID:           uuid.New(),
		AreaType:     key.AreaType,
		AreaID:       key.AreaID,
		Year:         key.Year,
		UserID:       key.UserID,
		ConfigHash:   key.ConfigHash,
		GeometryHash: key.GeometryHash,
		Status:       models.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
