package local

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// reduceRegion aggregates each band over the pixels of a region. A point
// region samples the single pixel containing it. Aggregates over no valid
// pixels are null.
func (ev *evaluator) reduceRegion(rr graph.ReduceRegion, env map[string]any) (any, error) {
	img, err := ev.image(rr.Image, env)
	if err != nil {
		return nil, err
	}
	g, err := ev.eval(rr.Region, env)
	if err != nil {
		return nil, err
	}

	grid := ev.eng.grid
	var inside []bool
	switch shape := g.(type) {
	case geom.Point:
		inside = make([]bool, grid.Len())
		if i := grid.Index(shape); i >= 0 {
			inside[i] = true
		}
	case geom.Polygonal:
		inside = grid.inside(shape)
	default:
		return nil, fmt.Errorf("reduceRegion: expected geometry, got %T", g)
	}

	out := make(map[string]any)
	for _, b := range img.Bands {
		vals := make([]float64, 0)
		for i, in := range inside {
			if in && b.Valid[i] {
				vals = append(vals, b.Data[i])
			}
		}
		if err := reduceValues(out, b.Name, vals, rr.Reducer); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func reduceValues(out map[string]any, band string, vals []float64, r graph.Reducer) error {
	var v any
	switch r.Kind {
	case graph.ReduceFirst:
		if len(vals) > 0 {
			v = vals[0]
		}
		out[band] = v

	case graph.ReduceMinMax:
		var lo, hi any
		if len(vals) > 0 {
			lo, hi = floats.Min(vals), floats.Max(vals)
		}
		out[band+"_min"] = lo
		out[band+"_max"] = hi

	case graph.ReducePercentile:
		sorted := slices.Clone(vals)
		slices.Sort(sorted)
		for _, p := range r.Percentiles {
			var q any
			if len(sorted) > 0 {
				q = stat.Quantile(p/100, stat.Empirical, sorted, nil)
			}
			out[band+"_p"+strconv.FormatFloat(p, 'f', -1, 64)] = q
		}

	case graph.ReduceSum:
		if len(vals) > 0 {
			v = floats.Sum(vals)
		}
		out[band+"_sum"] = v
	case graph.ReduceMean:
		if len(vals) > 0 {
			v = floats.Sum(vals) / float64(len(vals))
		}
		out[band+"_mean"] = v
	case graph.ReduceMedian:
		if len(vals) > 0 {
			v = median(vals)
		}
		out[band+"_median"] = v

	default:
		return fmt.Errorf("reduceRegion: unsupported reducer %q", r.Kind)
	}
	return nil
}
