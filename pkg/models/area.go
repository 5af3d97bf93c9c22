package models

import "fmt"

// AreaKind discriminates the two kinds of reference geometry an erosion
// map can be computed for. Regions and districts live in separate
// collections upstream, so jobs reference areas by (kind, id) rather
// than a foreign key.
type AreaKind string

const (
	AreaRegion   AreaKind = "region"
	AreaDistrict AreaKind = "district"
)

// ParseAreaKind validates a raw area type string.
func ParseAreaKind(s string) (AreaKind, error) {
	switch AreaKind(s) {
	case AreaRegion, AreaDistrict:
		return AreaKind(s), nil
	}
	return "", fmt.Errorf("area_type must be %q or %q, got %q", AreaRegion, AreaDistrict, s)
}

// Area identifies one region or district.
type Area struct {
	Kind AreaKind `json:"area_type"`
	ID   int64    `json:"area_id"`
}

// Dir returns the storage directory segment for this area,
// e.g. "region_3". Tile trees are keyed by it.
func (a Area) Dir() string {
	return fmt.Sprintf("%s_%d", a.Kind, a.ID)
}

func (a Area) String() string {
	return fmt.Sprintf("%s %d", a.Kind, a.ID)
}

// AreaGeometry is an area's reference geometry as seeded from the
// national boundary set.
type AreaGeometry struct {
	Area
	Name     string         `json:"name"`
	Geometry map[string]any `json:"geometry"`
	BBox     []float64      `json:"bbox"` // [minLon, minLat, maxLon, maxLat]
}
