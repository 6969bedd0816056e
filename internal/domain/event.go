package domain

import (
	"time"

	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// Layer is a named single-band raster expression with its display parameters.
type Layer struct {
	Name string
	Band graph.Expr
	Vis  graph.VisParams
}

// Coordinate is a WGS-84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PointValues is the per-layer sample at a coordinate. Nil fields were masked.
type PointValues struct {
	LST          *float64 `json:"LSTValue"`
	Rainfall     *float64 `json:"rainfallValue"`
	NDVI         *float64 `json:"ndviValue"`
	Population   *float64 `json:"populationValue"`
	CanopyCover  *float64 `json:"canopyCoverValue"`
	MalariaIndex *float64 `json:"malariaIndexValue"`
}

// MapExportEvent announces a map id produced for a region so tile clients can
// pick it up without polling the API.
type MapExportEvent struct {
	ID         string          `json:"id"`
	Region     string          `json:"region"`
	Layer      string          `json:"layer"`
	MapID      string          `json:"map_id"`
	Vis        graph.VisParams `json:"vis"`
	RangeStart time.Time       `json:"range_start"`
	RangeEnd   time.Time       `json:"range_end"`
	ExportedAt time.Time       `json:"exported_at"`
}
