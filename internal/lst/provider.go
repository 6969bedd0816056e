package lst

import (
	"slices"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
	"github.com/couchcryptid/malaria-risk-index/internal/layers"
)

var palette = []string{"blue", "cyan", "green", "yellow", "red"}

// SurfaceTemperature averages LST over the date range, clips it to the region
// and min-max scales it to 0..1 over the region. A region whose mean LST is
// uniform comes out fully masked.
func SurfaceTemperature(opts Options) func(domain.DateRange, domain.Region) domain.Layer {
	return func(dr domain.DateRange, region domain.Region) domain.Layer {
		geometry := graph.Region(region.Geometry)
		mean := graph.Reduce{
			Collection: Collection(opts, dr, region),
			Reducer:    graph.ReduceMean,
		}
		clipped := graph.Clip{Image: graph.Band(mean, "LST"), Region: geometry}
		return domain.Layer{
			Name: "lst",
			Band: layers.Normalize(clipped, "LST", geometry),
			Vis:  graph.VisParams{Min: 0, Max: 1, Palette: slices.Clone(palette)},
		}
	}
}
