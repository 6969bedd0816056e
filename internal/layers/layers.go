// Package layers builds the normalized source layers of the risk index:
// rainfall, vegetation, population, and land cover. Builders only assemble
// graph expressions; nothing is evaluated here.
package layers

import (
	"slices"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// Builder produces one layer for a date range and region.
type Builder func(dr domain.DateRange, region domain.Region) domain.Layer

// Normalize min-max scales a single-band image to [0, 1] using its minimum and
// maximum over region. When the region has no valid pixels, or every pixel has
// the same value, the result is fully masked.
func Normalize(img graph.Expr, band string, region graph.Expr) graph.Expr {
	stats := graph.ReduceRegion{
		Image:   img,
		Reducer: graph.Reducer{Kind: graph.ReduceMinMax},
		Region:  region,
		Scale:   normalizeScale,
	}
	lo := graph.Get{Dict: stats, Key: band + "_min"}
	hi := graph.Get{Dict: stats, Key: band + "_max"}
	return graph.Branch{
		Cond: graph.Lt(lo, hi),
		Then: graph.UnitScale{Image: img, Low: lo, High: hi},
		Else: graph.UpdateMask{Image: img, Mask: graph.Num(0)},
	}
}

func unitVis(palette []string) graph.VisParams {
	return graph.VisParams{Min: 0, Max: 1, Palette: slices.Clone(palette)}
}

// Rainfall sums CHIRPS pentad precipitation over the date range.
func Rainfall(dr domain.DateRange, region domain.Region) domain.Layer {
	geometry := graph.Region(region.Geometry)
	pentads := graph.FilterDate{
		Collection: graph.Collection(CHIRPSPentad),
		Start:      graph.Num(dr.StartMillis()),
		End:        graph.Num(dr.EndMillis()),
	}
	total := graph.Rename{
		Image: graph.Band(graph.Reduce{Collection: pentads, Reducer: graph.ReduceSum}, "precipitation"),
		Names: []string{"precipitation_sum"},
	}
	clipped := graph.Clip{Image: total, Region: geometry}

	return domain.Layer{
		Name: "rainfall",
		Band: graph.Rename{
			Image: Normalize(clipped, "precipitation_sum", geometry),
			Names: []string{RainfallBand},
		},
		Vis: unitVis(RainfallPalette),
	}
}

// Vegetation is the Sentinel-2 NDVI of the cloud-masked median composite.
// The values stay in [-1, 1].
func Vegetation(dr domain.DateRange, region domain.Region) domain.Layer {
	geometry := graph.Region(region.Geometry)
	scenes := graph.FilterBounds{
		Collection: graph.FilterDate{
			Collection: graph.FilterProperty{
				Collection: graph.Collection(Sentinel2),
				Property:   "CLOUDY_PIXEL_PERCENTAGE",
				Cmp:        graph.OpLt,
				Value:      30,
			},
			Start: graph.Num(dr.StartMillis()),
			End:   graph.Num(dr.EndMillis()),
		},
		Region: geometry,
	}

	qa := graph.Band(graph.Var{Name: "s2"}, "QA60")
	cloudFree := graph.And(graph.BitClear(qa, 10), graph.BitClear(qa, 11))
	reflectance := graph.Map{
		Collection: scenes,
		Param:      "s2",
		Body: graph.Div(
			graph.UpdateMask{Image: graph.Select{Image: graph.Var{Name: "s2"}, Bands: []string{"B8", "B4"}}, Mask: cloudFree},
			graph.Num(10000),
		),
	}
	composite := graph.Reduce{Collection: reflectance, Reducer: graph.ReduceMedian}
	ndvi := graph.Rename{
		Image: graph.NormalizedDifference{Image: composite, A: "B8", B: "B4"},
		Names: []string{NDVIBand},
	}

	return domain.Layer{
		Name: "ndvi",
		Band: graph.Clip{Image: ndvi, Region: geometry},
		Vis:  unitVis(VegetationPalette),
	}
}

// NormalizedVegetation is Vegetation min-max scaled like the other layers.
func NormalizedVegetation(dr domain.DateRange, region domain.Region) domain.Layer {
	l := Vegetation(dr, region)
	l.Band = graph.Rename{
		Image: Normalize(l.Band, NDVIBand, graph.Region(region.Geometry)),
		Names: []string{NDVIBand},
	}
	return l
}

// Population normalizes the most recent GPW population density image.
func Population(_ domain.DateRange, region domain.Region) domain.Layer {
	geometry := graph.Region(region.Geometry)
	latest := graph.First{Collection: graph.SortLimit{
		Collection: graph.Collection(PopulationDensity),
		Property:   "system:time_start",
		Ascending:  false,
		Limit:      1,
	}}
	density := graph.Clip{Image: graph.Band(latest, "population_density"), Region: geometry}

	return domain.Layer{
		Name: "population",
		Band: graph.Rename{
			Image: Normalize(density, "population_density", geometry),
			Names: []string{PopulationBand},
		},
		Vis: unitVis(PopulationPalette),
	}
}

// Land-cover class to risk weight. Classes not listed are masked.
var (
	landCoverClasses = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100}
	landCoverWeights = []float64{0.4, 0.5, 0.6, 0.7, 0.2, 0.3, 0.1, 0.0, 0.9, 1.0, 0.8}
)

// LandUse remaps ESA WorldCover classes to risk weights.
func LandUse(_ domain.DateRange, region domain.Region) domain.Layer {
	cover := graph.Clip{
		Image:  graph.First{Collection: graph.Collection(WorldCover)},
		Region: graph.Region(region.Geometry),
	}
	return domain.Layer{
		Name: "landcover",
		Band: graph.Remap{
			Image: cover,
			From:  slices.Clone(landCoverClasses),
			To:    slices.Clone(landCoverWeights),
		},
		Vis: unitVis(RiskPalette),
	}
}

// LandCoverWeight returns the risk weight of a WorldCover class.
func LandCoverWeight(class float64) (float64, bool) {
	i := slices.Index(landCoverClasses, class)
	if i < 0 {
		return 0, false
	}
	return landCoverWeights[i], true
}
