package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("eromap_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func testKey() models.JobKey {
	return models.JobKey{
		AreaType:     models.AreaRegion,
		AreaID:       3,
		Year:         2020,
		ConfigHash:   models.DefaultConfigHash,
		GeometryHash: "",
	}
}

func mustCreatePending(t *testing.T, s store.Store, key models.JobKey) *models.Job {
	t.Helper()
	job := store.NewPendingJob(key, time.Now().UTC())
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

// --- Job creation and lookup ---

func TestJob_CreateAndGetByKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	created := mustCreatePending(t, s, testKey())

	got, err := s.GetJobByKey(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, models.AreaRegion, got.AreaType)
	assert.Nil(t, got.UserID)
}

func TestJob_GetByKey_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJobByKey(context.Background(), testKey())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_DuplicateCacheKey_NullUserScope(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	mustCreatePending(t, s, testKey())

	// A second insert with the same tuple (both NULL user scope) must
	// hit the unique index, not slip past it.
	dup := store.NewPendingJob(testKey(), time.Now().UTC())
	err := s.CreateJob(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestJob_DistinctConfigHash_NoCollision(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	mustCreatePending(t, s, testKey())

	other := testKey()
	other.ConfigHash = "a1b2c3d4e5f60718"
	job := store.NewPendingJob(other, time.Now().UTC())
	assert.NoError(t, s.CreateJob(context.Background(), job))
}

func TestJob_UserScope_SeparateFromGlobal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	mustCreatePending(t, s, testKey())

	userID := int64(42)
	userKey := testKey()
	userKey.UserID = &userID
	userJob := mustCreatePending(t, s, userKey)

	got, err := s.GetJobByKey(ctx, userKey)
	require.NoError(t, err)
	assert.Equal(t, userJob.ID, got.ID)

	global, err := s.GetJobByKey(ctx, testKey())
	require.NoError(t, err)
	assert.NotEqual(t, userJob.ID, global.ID)
}

// --- Lifecycle transitions ---

func TestJob_TaskIDRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := mustCreatePending(t, s, testKey())
	require.NoError(t, s.SetJobTask(ctx, job.ID, "celery-task-1"))

	got, err := s.GetJobByTaskID(ctx, "celery-task-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = s.GetJobByTaskID(ctx, "no-such-task")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_MarkProcessing_OnlyFromPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := mustCreatePending(t, s, testKey())

	ok, err := s.MarkJobProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Duplicate started callback: no-op, no error.
	ok, err = s.MarkJobProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func completedOutput() store.JobOutput {
	return store.JobOutput{
		GeotiffPath: "geotiffs/region_3/2020.tif",
		TilesPath:   "tiles/region_3/2020",
		Statistics:  &models.Statistics{Mean: 12.4, Min: 0, Max: 180.2, StdDev: 9.1},
		Metadata:    &models.JobMetadata{CellCount: 120000, TaskID: "celery-task-1"},
		ComputedAt:  time.Now().UTC(),
	}
}

func TestJob_Complete_PersistsOutput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := mustCreatePending(t, s, testKey())
	_, err := s.MarkJobProcessing(ctx, job.ID)
	require.NoError(t, err)

	ok, err := s.CompleteJob(ctx, job.ID, completedOutput())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetJobByKey(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.TilesPath)
	assert.Equal(t, "tiles/region_3/2020", *got.TilesPath)
	require.NotNil(t, got.Statistics)
	assert.InDelta(t, 12.4, got.Statistics.Mean, 1e-9)
	assert.NotNil(t, got.ComputedAt)
}

func TestJob_Complete_Idempotent_LastWriteWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := mustCreatePending(t, s, testKey())
	_, err := s.CompleteJob(ctx, job.ID, completedOutput())
	require.NoError(t, err)

	second := completedOutput()
	second.Statistics.Mean = 99.9
	ok, err := s.CompleteJob(ctx, job.ID, second)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetJobByKey(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.InDelta(t, 99.9, got.Statistics.Mean, 1e-9)
}

func TestJob_Complete_NeverResurrectsFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := mustCreatePending(t, s, testKey())
	_, err := s.FailJob(ctx, job.ID, "GEE quota exceeded")
	require.NoError(t, err)

	ok, err := s.CompleteJob(ctx, job.ID, completedOutput())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetJobByKey(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}

func TestJob_Fail_OnlyFromLiveStates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := mustCreatePending(t, s, testKey())
	_, err := s.CompleteJob(ctx, job.ID, completedOutput())
	require.NoError(t, err)

	ok, err := s.FailJob(ctx, job.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetJobByKey(ctx, testKey())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestJob_DeleteJobs_Filter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	mustCreatePending(t, s, testKey())

	other := testKey()
	other.Year = 2021
	mustCreatePending(t, s, other)

	district := models.JobKey{AreaType: models.AreaDistrict, AreaID: 7, Year: 2020,
		ConfigHash: models.DefaultConfigHash}
	mustCreatePending(t, s, district)

	n, err := s.DeleteJobs(ctx, store.JobFilter{AreaType: models.AreaRegion, AreaID: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.GetJobByKey(ctx, district)
	assert.NoError(t, err)
}

// --- Areas ---

func TestArea_GetAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx,
		`INSERT INTO areas (area_type, area_id, name, geometry, bbox)
		 VALUES ('region', 3, 'Sughd', '{"type":"Polygon","coordinates":[]}', '{68.7,38.5,68.9,38.7}'),
		        ('district', 14, 'Panjakent', '{"type":"Polygon","coordinates":[]}', '{67.5,39.4,67.7,39.6}')`)
	require.NoError(t, err)

	ag, err := s.GetArea(ctx, models.Area{Kind: models.AreaRegion, ID: 3})
	require.NoError(t, err)
	assert.Equal(t, "Sughd", ag.Name)
	assert.Equal(t, []float64{68.7, 38.5, 68.9, 38.7}, ag.BBox)
	assert.Equal(t, "Polygon", ag.Geometry["type"])

	_, err = s.GetArea(ctx, models.Area{Kind: models.AreaRegion, ID: 999})
	assert.ErrorIs(t, err, store.ErrNotFound)

	areas, err := s.ListAreas(ctx)
	require.NoError(t, err)
	assert.Len(t, areas, 2)
}

// --- API keys ---

func TestAPIKey_CreateGetAndCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "ops",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "em_abcd0",
		Scopes:    []string{"admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "em_abcd0")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"admin"}, keys[0].Scopes)

	n, err = s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
