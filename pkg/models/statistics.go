package models

// ErosionClassKeys lists the severity classes in ascending order, as
// produced by the compute engine's class breakdown.
var ErosionClassKeys = []string{"very_low", "low", "moderate", "severe", "excessive"}

// ClassBreakdown is the per-severity-class share of a computed area.
type ClassBreakdown struct {
	Label        string  `json:"label"`
	AreaHectares float64 `json:"area_hectares"`
	Percentage   float64 `json:"percentage"`
}

// Statistics is the numeric summary the external worker reports on
// completion. Soil loss values are in t/ha/yr.
type Statistics struct {
	Mean              float64                   `json:"mean"`
	Min               float64                   `json:"min"`
	Max               float64                   `json:"max"`
	StdDev            float64                   `json:"std_dev"`
	ErosionClasses    map[string]ClassBreakdown `json:"erosion_classes,omitempty"`
	TotalAreaHectares float64                   `json:"total_area_hectares,omitempty"`
}

// JobMetadata is auditing context persisted alongside a completed job:
// where the raster sits, how big it is, and the exact configuration and
// geometry snapshots that produced it.
type JobMetadata struct {
	BBox             []float64      `json:"bbox,omitempty"` // [minLon, minLat, maxLon, maxLat]
	CellCount        int            `json:"cell_count,omitempty"`
	TaskID           string         `json:"task_id,omitempty"`
	ConfigVersion    string         `json:"config_version,omitempty"`
	ConfigSnapshot   map[string]any `json:"config_snapshot,omitempty"`
	GeometrySnapshot map[string]any `json:"geometry_snapshot,omitempty"`
}
