// Package tiles serves precomputed map tile pyramids from local disk.
//
// The computation engine writes tiles under
// <root>/tiles/{area_type}_{area_id}/{year}/{z}/{x}/{y}.png and this
// package is the read side: it never generates tiles, only resolves
// and streams what the engine already produced.
package tiles

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/davlatzoda/eromap/pkg/models"
)

var (
	// ErrInvalidRef means the tile coordinates or area reference did not
	// parse; the caller should answer 400.
	ErrInvalidRef = errors.New("invalid tile reference")
	// ErrTileNotFound means the referenced tile file does not exist.
	ErrTileNotFound = errors.New("tile not found")
)

// Ref identifies one tile in one area/year pyramid.
type Ref struct {
	Area models.Area
	Year int
	Z    int
	X    int
	Y    int
}

// ParseRef validates raw URL parameters into a Ref. Every component is
// parsed into a typed value, so a Ref can never smuggle path segments.
func ParseRef(areaType, areaID, year, z, x, y string) (Ref, error) {
	kind, err := models.ParseAreaKind(areaType)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", ErrInvalidRef, err)
	}
	id, err := strconv.ParseInt(areaID, 10, 64)
	if err != nil || id < 0 {
		return Ref{}, fmt.Errorf("%w: bad area id %q", ErrInvalidRef, areaID)
	}
	ref := Ref{Area: models.Area{Kind: kind, ID: id}}

	for _, p := range []struct {
		name string
		raw  string
		dst  *int
		max  int
	}{
		{"year", year, &ref.Year, 9999},
		{"z", z, &ref.Z, 30},
		{"x", x, &ref.X, 1 << 30},
		{"y", y, &ref.Y, 1 << 30},
	} {
		v, err := strconv.Atoi(p.raw)
		if err != nil || v < 0 || v > p.max {
			return Ref{}, fmt.Errorf("%w: bad %s %q", ErrInvalidRef, p.name, p.raw)
		}
		*p.dst = v
	}
	return ref, nil
}

// Server resolves tile refs against a storage root and streams PNGs.
type Server struct {
	root string
}

func NewServer(root string) *Server {
	return &Server{root: root}
}

// PyramidDir is the directory holding one area/year tile pyramid,
// relative to the storage root. It matches what the engine reports as
// tiles_path in completion callbacks.
func PyramidDir(area models.Area, year int) string {
	return filepath.Join("tiles", area.Dir(), strconv.Itoa(year))
}

// Path is the absolute file path for a tile.
func (s *Server) Path(ref Ref) string {
	return filepath.Join(s.root, PyramidDir(ref.Area, ref.Year),
		strconv.Itoa(ref.Z), strconv.Itoa(ref.X), strconv.Itoa(ref.Y)+".png")
}

// Serve streams the tile to the client. Tiles are immutable once
// written (recomputation replaces the whole pyramid under a new job),
// so clients may cache them for a year.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, ref Ref) error {
	f, err := os.Open(s.Path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrTileNotFound
		}
		return fmt.Errorf("open tile: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat tile: %w", err)
	}
	if info.IsDir() {
		return ErrTileNotFound
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, "", info.ModTime(), f)
	return nil
}
