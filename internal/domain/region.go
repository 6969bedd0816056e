package domain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ctessum/geom"
)

var (
	// ErrRegionNotFound is returned when no boundary matches a region name.
	ErrRegionNotFound = errors.New("region not found")

	// ErrLayerNotFound is returned for an unknown layer name.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrUpstreamAuth is returned when the engine session cannot be established.
	ErrUpstreamAuth = errors.New("upstream authentication failed")
)

// EvaluationFault is returned when the engine rejects a terminal evaluation.
type EvaluationFault struct {
	Op      string // "evaluate" or "getMap"
	Status  int    // upstream HTTP status, 0 when evaluated in-process
	Message string
}

func (e *EvaluationFault) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("engine %s failed: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("engine %s failed: %s", e.Op, e.Message)
}

// Region is a resolved administrative boundary.
type Region struct {
	Name     string
	Geometry geom.Polygonal
}

// Centroid returns the area-weighted center of the region. Ring winding is
// ignored. A ring lying inside the other rings of its polygon is a hole and
// subtracts from the weight.
func (r Region) Centroid() (Coordinate, error) {
	if r.Geometry == nil {
		return Coordinate{}, fmt.Errorf("region %q has no geometry", r.Name)
	}
	var area, cx, cy float64
	for _, poly := range r.Geometry.Polygons() {
		for i, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			shape := geom.Polygon{closeRing(ring)}
			a := shape.Area()
			if a == 0 {
				continue
			}
			if isHole(poly, i) {
				a = -a
			}
			c := shape.Centroid()
			area += a
			cx += a * c.X
			cy += a * c.Y
		}
	}
	if area == 0 {
		return Coordinate{}, fmt.Errorf("region %q has zero area", r.Name)
	}
	return Coordinate{Lat: cy / area, Lng: cx / area}, nil
}

// closeRing returns ring with its first point repeated at the end. The input
// is never appended to in place.
func closeRing(ring geom.Path) geom.Path {
	if ring[0] == ring[len(ring)-1] {
		return ring
	}
	return append(slices.Clip(ring), ring[0])
}

// isHole reports whether ring i of poly is enclosed by the polygon's other
// rings. Vertices on a shared edge are inconclusive; a ring touching the
// others everywhere is a hole unless it comes first.
func isHole(poly geom.Polygon, i int) bool {
	others := geom.Polygon(slices.Delete(slices.Clone(poly), i, i+1))
	if len(others) == 0 {
		return false
	}
	for _, pt := range poly[i] {
		switch pt.Within(others) {
		case geom.OnEdge:
			continue
		case geom.Inside:
			return true
		default:
			return false
		}
	}
	return i > 0
}
