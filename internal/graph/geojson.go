package graph

import (
	"encoding/json"
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// toGeoJSON converts the geometries a graph may carry: points for sampling and
// polygons for regions.
func toGeoJSON(g geom.Geom) (*geojson.Geometry, error) {
	switch g.(type) {
	case geom.Point, geom.Polygon, geom.MultiPolygon:
		return geojson.ToGeoJSON(g)
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

// MarshalGeometry encodes a point or polygonal geometry as GeoJSON.
func MarshalGeometry(g geom.Geom) ([]byte, error) {
	obj, err := toGeoJSON(g)
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// UnmarshalPolygonal decodes a GeoJSON Polygon or MultiPolygon.
func UnmarshalPolygonal(b []byte) (geom.Polygonal, error) {
	g, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	p, ok := g.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("unsupported geojson geometry %T", g)
	}
	return p, nil
}
