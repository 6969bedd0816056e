// Package index blends the five source layers into the malaria risk index and
// runs the terminal operations on it: point sampling and map export.
package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
	"github.com/couchcryptid/malaria-risk-index/internal/layers"
	"github.com/couchcryptid/malaria-risk-index/internal/lst"
)

// Band is the name of the composite band.
const Band = "malariaIndex"

// Scale in meters of point samples.
const sampleScale = 10

// Providers builds each source layer.
type Providers struct {
	SurfaceTemperature layers.Builder
	LandCover          layers.Builder
	Rainfall           layers.Builder
	Vegetation         layers.Builder
	Population         layers.Builder
}

// DefaultProviders wires the catalog layers. normalizeNDVI unit-scales the
// vegetation layer like the other four; by default it enters the sum raw.
func DefaultProviders(opts lst.Options, normalizeNDVI bool) Providers {
	veg := layers.Vegetation
	if normalizeNDVI {
		veg = layers.NormalizedVegetation
	}
	return Providers{
		SurfaceTemperature: lst.SurfaceTemperature(opts),
		LandCover:          layers.LandUse,
		Rainfall:           layers.Rainfall,
		Vegetation:         veg,
		Population:         layers.Population,
	}
}

// Layers holds the source layers of one region and date range.
type Layers struct {
	Region             domain.Region
	SurfaceTemperature domain.Layer
	LandCover          domain.Layer
	Rainfall           domain.Layer
	Vegetation         domain.Layer
	Population         domain.Layer
}

// Build runs every provider for the region and date range. Nothing is evaluated.
func (p Providers) Build(dr domain.DateRange, region domain.Region) Layers {
	return Layers{
		Region:             region,
		SurfaceTemperature: p.SurfaceTemperature(dr, region),
		LandCover:          p.LandCover(dr, region),
		Rainfall:           p.Rainfall(dr, region),
		Vegetation:         p.Vegetation(dr, region),
		Population:         p.Population(dr, region),
	}
}

// Layer returns a source layer by name.
func (l Layers) Layer(name string) (domain.Layer, bool) {
	for _, layer := range l.All() {
		if layer.Name == name {
			return layer, true
		}
	}
	return domain.Layer{}, false
}

// All returns the source layers in compositing order.
func (l Layers) All() []domain.Layer {
	return []domain.Layer{l.SurfaceTemperature, l.LandCover, l.Rainfall, l.Vegetation, l.Population}
}

// Options tunes the composite.
type Options struct {
	// Smooth replaces each summed pixel with the mean of its square
	// neighbourhood before rescaling.
	Smooth bool
	Radius int
	// LowPercentile and HighPercentile of the summed band over the region are
	// mapped to 0 and 1. Narrower bounds clip more outliers and stretch the
	// remaining range.
	LowPercentile  float64
	HighPercentile float64
	// Scale in meters of the percentile reduction.
	Scale float64
}

// DefaultOptions smooths over a 2 pixel radius and rescales between p1 and p99 at 5 km.
func DefaultOptions() Options {
	return Options{
		Smooth:         true,
		Radius:         2,
		LowPercentile:  1,
		HighPercentile: 99,
		Scale:          5000,
	}
}

// Validate checks the percentile bounds and radius.
func (o Options) Validate() error {
	if o.LowPercentile < 0 || o.HighPercentile > 100 || o.LowPercentile >= o.HighPercentile {
		return fmt.Errorf("percentiles must satisfy 0 <= low < high <= 100, got %v and %v", o.LowPercentile, o.HighPercentile)
	}
	if o.Smooth && o.Radius < 1 {
		return fmt.Errorf("smoothing radius must be positive, got %d", o.Radius)
	}
	if o.Scale <= 0 {
		return fmt.Errorf("percentile scale must be positive, got %v", o.Scale)
	}
	return nil
}

// Vis is the display ramp of the composite.
func Vis() graph.VisParams {
	return graph.VisParams{Min: 0, Max: 1, Palette: slices.Clone(layers.RiskPalette)}
}

// Composite sums the five layers, optionally smooths the sum and rescales it
// to [0, 1] between its region percentiles.
func Composite(l Layers, opts Options) domain.Layer {
	sum := graph.Add(l.SurfaceTemperature.Band, l.LandCover.Band)
	sum = graph.Add(sum, l.Rainfall.Band)
	sum = graph.Add(sum, l.Vegetation.Band)
	sum = graph.Add(sum, l.Population.Band)

	if opts.Smooth {
		sum = graph.NeighborhoodMean{Image: sum, Radius: opts.Radius, Normalize: false}
	}
	summed := graph.Rename{Image: sum, Names: []string{Band}}

	return domain.Layer{
		Name: "index",
		Band: Rescale(summed, graph.Region(l.Region.Geometry), opts),
		Vis:  Vis(),
	}
}

// Rescale interpolates a single-band image named Band from its low and high
// region percentiles onto [0, 1], clamping outside values. When the two
// percentiles coincide the result is fully masked.
func Rescale(img, region graph.Expr, opts Options) graph.Expr {
	stats := graph.ReduceRegion{
		Image: img,
		Reducer: graph.Reducer{
			Kind:        graph.ReducePercentile,
			Percentiles: []float64{opts.LowPercentile, opts.HighPercentile},
		},
		Region: region,
		Scale:  opts.Scale,
	}
	lo := graph.Get{Dict: stats, Key: percentileKey(opts.LowPercentile)}
	hi := graph.Get{Dict: stats, Key: percentileKey(opts.HighPercentile)}

	return graph.Branch{
		Cond: graph.Lt(lo, hi),
		Then: graph.Interpolate{
			Image:    img,
			FromLow:  lo,
			FromHigh: hi,
			ToLow:    0,
			ToHigh:   1,
			Clamp:    true,
		},
		Else: graph.UpdateMask{Image: img, Mask: graph.Num(0)},
	}
}

func percentileKey(p float64) string {
	return Band + "_p" + strconv.FormatFloat(p, 'f', -1, 64)
}

// sample is the band name every layer is renamed to before point sampling.
const sample = "value"

// Sample returns the first valid value of img at a coordinate, or nil when
// the pixel is masked.
func Sample(ctx context.Context, eng graph.Engine, img graph.Expr, at domain.Coordinate) (*float64, error) {
	dict := graph.ReduceRegion{
		Image:   graph.Rename{Image: img, Names: []string{sample}},
		Reducer: graph.Reducer{Kind: graph.ReduceFirst},
		Region:  graph.Point(at.Lng, at.Lat),
		Scale:   sampleScale,
	}
	v, err := eng.Evaluate(ctx, graph.Get{Dict: dict, Key: sample})
	if err != nil {
		return nil, err
	}
	return graph.AsFloat(v)
}

// PointQuery samples the five source layers and the composite at a
// coordinate. The six evaluations run concurrently and all of them are
// awaited; any failure fails the query.
func PointQuery(ctx context.Context, eng graph.Engine, l Layers, composite domain.Layer, at domain.Coordinate) (domain.PointValues, error) {
	var out domain.PointValues
	targets := []struct {
		layer domain.Layer
		dst   **float64
	}{
		{l.SurfaceTemperature, &out.LST},
		{l.Rainfall, &out.Rainfall},
		{l.Vegetation, &out.NDVI},
		{l.Population, &out.Population},
		{l.LandCover, &out.CanopyCover},
		{composite, &out.MalariaIndex},
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Sample(ctx, eng, t.layer.Band, at)
			if err != nil {
				errs[i] = fmt.Errorf("sample %s: %w", t.layer.Name, err)
				return
			}
			*t.dst = v
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return domain.PointValues{}, err
	}
	return out, nil
}

// MapToken requests a tile map id for a layer.
func MapToken(ctx context.Context, eng graph.Engine, l domain.Layer) (string, error) {
	id, err := eng.GetMap(ctx, l.Band, l.Vis)
	if err != nil {
		return "", fmt.Errorf("get map %s: %w", l.Name, err)
	}
	return id, nil
}
