package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/davlatzoda/eromap/internal/compute"
	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/pkg/models"
	"github.com/google/uuid"
)

// memStore is an in-memory Store enforcing the same cache-key
// uniqueness guarantee as the Postgres schema. Safe for concurrent use
// so dedup-under-contention tests exercise the real race.
type memStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*models.Job
	areas map[string]*models.AreaGeometry
}

func newMemStore() *memStore {
	return &memStore{
		jobs:  make(map[uuid.UUID]*models.Job),
		areas: make(map[string]*models.AreaGeometry),
	}
}

func (m *memStore) addArea(area models.Area, name string) {
	m.areas[area.Dir()] = &models.AreaGeometry{
		Area:     area,
		Name:     name,
		Geometry: map[string]any{"type": "Polygon", "coordinates": []any{}},
		BBox:     []float64{68.7, 38.5, 68.9, 38.7},
	}
}

func keyString(k models.JobKey) string {
	uid := int64(-1)
	if k.UserID != nil {
		uid = *k.UserID
	}
	return fmt.Sprintf("%s|%d|%d|%d|%s|%s", k.AreaType, k.AreaID, k.Year, uid, k.ConfigHash, k.GeometryHash)
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks := keyString(job.Key())
	for _, existing := range m.jobs {
		if keyString(existing.Key()) == ks {
			return store.ErrDuplicateKey
		}
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) GetJobByKey(ctx context.Context, key models.JobKey) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks := keyString(key)
	for _, j := range m.jobs {
		if keyString(j.Key()) == ks {
			cp := *j
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetJobByTaskID(ctx context.Context, taskID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.TaskID != nil && *j.TaskID == taskID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) SetJobTask(ctx context.Context, id uuid.UUID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.TaskID = &taskID
	return nil
}

func (m *memStore) MarkJobProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	j.Status = models.JobStatusProcessing
	return true, nil
}

func (m *memStore) CompleteJob(ctx context.Context, id uuid.UUID, out store.JobOutput) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status == models.JobStatusFailed {
		return false, nil
	}
	j.Status = models.JobStatusCompleted
	j.GeotiffPath = &out.GeotiffPath
	j.TilesPath = &out.TilesPath
	j.Statistics = out.Statistics
	j.Metadata = out.Metadata
	j.ErrorMessage = nil
	t := out.ComputedAt
	j.ComputedAt = &t
	return true, nil
}

func (m *memStore) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || (j.Status != models.JobStatusPending && j.Status != models.JobStatusProcessing) {
		return false, nil
	}
	j.Status = models.JobStatusFailed
	j.ErrorMessage = &errorMessage
	return true, nil
}

func (m *memStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *memStore) DeleteJobs(ctx context.Context, filter store.JobFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, j := range m.jobs {
		if filter.AreaType != "" && j.AreaType != filter.AreaType {
			continue
		}
		if filter.AreaID != 0 && j.AreaID != filter.AreaID {
			continue
		}
		if filter.Year != 0 && j.Year != filter.Year {
			continue
		}
		delete(m.jobs, id)
		n++
	}
	return n, nil
}

func (m *memStore) GetArea(ctx context.Context, area models.Area) (*models.AreaGeometry, error) {
	if ag, ok := m.areas[area.Dir()]; ok {
		return ag, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListAreas(ctx context.Context) ([]models.Area, error) {
	var areas []models.Area
	for _, ag := range m.areas {
		areas = append(areas, ag.Area)
	}
	return areas, nil
}

func (m *memStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *memStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error { return nil }
func (m *memStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error   { return nil }
func (m *memStore) CountAPIKeys(ctx context.Context) (int, error)                { return 0, nil }

func (m *memStore) jobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *memStore) onlyJob() *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		cp := *j
		return &cp
	}
	return nil
}

var _ store.Store = (*memStore)(nil)

// fakeEngine hands out sequential task ids and counts dispatches.
type fakeEngine struct {
	mu       sync.Mutex
	calls    int
	failWith error
	lastReq  compute.PrecomputeRequest
}

func (f *fakeEngine) Precompute(ctx context.Context, req compute.PrecomputeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	f.calls++
	f.lastReq = req
	return fmt.Sprintf("task-%d", f.calls), nil
}

func (f *fakeEngine) Health(ctx context.Context) error { return nil }

func (f *fakeEngine) dispatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var _ compute.Engine = (*fakeEngine)(nil)

// fakeArtifacts marks tile paths present or absent.
type fakeArtifacts struct {
	mu      sync.Mutex
	present map[string]bool
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{present: make(map[string]bool)}
}

func (f *fakeArtifacts) TilesExist(tilesPath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[tilesPath]
}

func (f *fakeArtifacts) set(path string, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[path] = present
}

var _ ArtifactChecker = (*fakeArtifacts)(nil)

// completedReport is a canned completion payload for region 3 / 2020.
func completedReport() CompletionReport {
	return CompletionReport{
		GeotiffPath: "geotiffs/region_3/2020.tif",
		TilesPath:   "tiles/region_3/2020",
		Statistics:  &models.Statistics{Mean: 12.4, Min: 0, Max: 180.2, StdDev: 9.1},
		Metadata:    &models.JobMetadata{CellCount: 120000},
	}
}
