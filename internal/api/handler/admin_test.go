package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davlatzoda/eromap/internal/api/handler"
	"github.com/davlatzoda/eromap/internal/planner"
	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/pkg/models"
)

type stubPlanner struct {
	summary *planner.Summary
	err     error
	lastReq planner.Request
}

func (s *stubPlanner) Run(_ context.Context, req planner.Request) (*planner.Summary, error) {
	s.lastReq = req
	return s.summary, s.err
}

type stubDeleter struct {
	deleted    int64
	err        error
	lastFilter store.JobFilter
}

func (s *stubDeleter) DeleteJobs(_ context.Context, filter store.JobFilter) (int64, error) {
	s.lastFilter = filter
	return s.deleted, s.err
}

func TestPrecompute_RunsPlan(t *testing.T) {
	p := &stubPlanner{summary: &planner.Summary{Queued: 5, Skipped: 2, TotalCell: 7, ETASec: 600}}
	h := handler.NewPrecomputeHandler(p)

	body := `{"areas":[{"area_type":"region","area_id":3}],"years":[2019,2020],"force":true}`
	req := httptest.NewRequest("POST", "/api/v1/admin/precompute", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, float64(5), data["queued"])
	assert.Equal(t, float64(600), data["eta_seconds"])

	require.Len(t, p.lastReq.Areas, 1)
	assert.Equal(t, models.Area{Kind: models.AreaRegion, ID: 3}, p.lastReq.Areas[0])
	assert.Equal(t, []int{2019, 2020}, p.lastReq.Years)
	assert.True(t, p.lastReq.Force)
}

func TestPrecompute_EmptyBodyMeansFullGrid(t *testing.T) {
	p := &stubPlanner{summary: &planner.Summary{}}
	h := handler.NewPrecomputeHandler(p)

	req := httptest.NewRequest("POST", "/api/v1/admin/precompute", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, p.lastReq.Areas)
	assert.Empty(t, p.lastReq.Years)
}

func TestPrecompute_YearRangeExpanded(t *testing.T) {
	p := &stubPlanner{summary: &planner.Summary{}}
	h := handler.NewPrecomputeHandler(p)

	body := `{"start_year":2018,"end_year":2021}`
	req := httptest.NewRequest("POST", "/api/v1/admin/precompute", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{2018, 2019, 2020, 2021}, p.lastReq.Years)
}

func TestPrecompute_BadYearRange(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"inverted range", `{"start_year":2021,"end_year":2018}`},
		{"start without end", `{"start_year":2020}`},
		{"end without start", `{"end_year":2020}`},
		{"range alongside years", `{"years":[2020],"start_year":2019,"end_year":2021}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &stubPlanner{summary: &planner.Summary{}}
			h := handler.NewPrecomputeHandler(p)

			req := httptest.NewRequest("POST", "/api/v1/admin/precompute", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, p.lastReq.Years)
		})
	}
}

func TestPrecompute_BadAreaType(t *testing.T) {
	p := &stubPlanner{summary: &planner.Summary{}}
	h := handler.NewPrecomputeHandler(p)

	body := `{"areas":[{"area_type":"oblast","area_id":3}]}`
	req := httptest.NewRequest("POST", "/api/v1/admin/precompute", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrecompute_RunFailure(t *testing.T) {
	p := &stubPlanner{err: assert.AnError}
	h := handler.NewPrecomputeHandler(p)

	req := httptest.NewRequest("POST", "/api/v1/admin/precompute", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCacheClear_Filtered(t *testing.T) {
	d := &stubDeleter{deleted: 12}
	h := handler.NewCacheClearHandler(d)

	body := `{"area_type":"region","area_id":3,"year":2020}`
	req := httptest.NewRequest("POST", "/api/v1/admin/cache-clear", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(12), decodeData(t, w)["deleted"])
	assert.Equal(t, store.JobFilter{AreaType: models.AreaRegion, AreaID: 3, Year: 2020}, d.lastFilter)
}

func TestCacheClear_EmptyFilterClearsEverything(t *testing.T) {
	d := &stubDeleter{deleted: 300}
	h := handler.NewCacheClearHandler(d)

	req := httptest.NewRequest("POST", "/api/v1/admin/cache-clear", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.JobFilter{}, d.lastFilter)
}

func TestCacheClear_BadAreaType(t *testing.T) {
	d := &stubDeleter{}
	h := handler.NewCacheClearHandler(d)

	req := httptest.NewRequest("POST", "/api/v1/admin/cache-clear",
		strings.NewReader(`{"area_type":"oblast"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
