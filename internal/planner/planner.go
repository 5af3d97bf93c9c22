// Package planner runs administrative batch precomputation: the cross
// product of areas and years, pushed through the dispatch gate one cell
// at a time.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/davlatzoda/eromap/internal/dispatch"
	"github.com/davlatzoda/eromap/pkg/models"
)

// Gateway is the slice of the dispatch gate the planner needs.
type Gateway interface {
	GetOrQueue(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// AreaLister enumerates the areas eligible for precomputation.
type AreaLister interface {
	ListAreas(ctx context.Context) ([]models.Area, error)
}

// Request selects the slice of the area/year grid to precompute. Empty
// Areas means every area known to the store; empty Years means the full
// configured year window.
type Request struct {
	Areas []models.Area `json:"areas,omitempty"`
	Years []int         `json:"years,omitempty"`
	// Force recomputes cells that already have a completed result.
	Force bool `json:"force,omitempty"`
}

// Detail explains one grid cell that was not queued.
type Detail struct {
	Area   models.Area `json:"area"`
	Year   int         `json:"year"`
	Reason string      `json:"reason"`
}

// Summary is the outcome of one planning run.
type Summary struct {
	Queued    int      `json:"queued"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Details   []Detail `json:"details,omitempty"`
	ETASec    int      `json:"eta_seconds"`
	TotalCell int      `json:"total_cells"`
}

// Planner walks the grid through the gate. Batch runs use the same
// dedup path as interactive requests, so a run is safe to repeat.
type Planner struct {
	store       AreaLister
	gate        Gateway
	startYear   int
	endYear     int
	jobDuration time.Duration
	logger      *slog.Logger
}

func New(s AreaLister, gate Gateway, startYear, endYear int,
	jobDuration time.Duration, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		store:       s,
		gate:        gate,
		startYear:   startYear,
		endYear:     endYear,
		jobDuration: jobDuration,
		logger:      logger,
	}
}

// Run processes the grid sequentially. Per-cell dispatch failures are
// recorded in the summary and do not abort the run; only context
// cancellation and area listing failures do.
func (p *Planner) Run(ctx context.Context, req Request) (*Summary, error) {
	areas := req.Areas
	if len(areas) == 0 {
		var err error
		areas, err = p.store.ListAreas(ctx)
		if err != nil {
			return nil, fmt.Errorf("list areas: %w", err)
		}
	}

	years := req.Years
	if len(years) == 0 {
		for y := p.startYear; y <= p.endYear; y++ {
			years = append(years, y)
		}
	}

	summary := &Summary{TotalCell: len(areas) * len(years)}
	for _, area := range areas {
		for _, year := range years {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p.plan(ctx, summary, area, year, req.Force)
		}
	}

	summary.ETASec = int((time.Duration(summary.Queued) * p.jobDuration).Seconds())
	p.logger.Info("precompute run finished",
		"cells", summary.TotalCell, "queued", summary.Queued,
		"skipped", summary.Skipped, "failed", summary.Failed,
		"eta_seconds", summary.ETASec)
	return summary, nil
}

func (p *Planner) plan(ctx context.Context, summary *Summary, area models.Area, year int, force bool) {
	res, err := p.gate.GetOrQueue(ctx, dispatch.Request{Area: area, Year: year, Force: force})
	if err != nil {
		summary.Failed++
		summary.Details = append(summary.Details, Detail{Area: area, Year: year, Reason: err.Error()})
		p.logger.Warn("precompute cell failed", "area", area.String(), "year", year, "error", err)
		return
	}

	switch res.Status {
	case dispatch.StatusQueued:
		summary.Queued++
	case dispatch.StatusProcessing:
		summary.Skipped++
		summary.Details = append(summary.Details, Detail{Area: area, Year: year, Reason: "already processing"})
	case dispatch.StatusAvailable:
		summary.Skipped++
		summary.Details = append(summary.Details, Detail{Area: area, Year: year, Reason: "already available"})
	}
}
