package local

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// TimeStart is the metadata property holding acquisition time in epoch millis.
const TimeStart = "system:time_start"

func (ev *evaluator) collectionOp(x graph.Expr, env map[string]any) (any, error) {
	switch v := x.(type) {
	case graph.FilterDate:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		start, err := ev.number(v.Start, env)
		if err != nil {
			return nil, err
		}
		end, err := ev.number(v.End, env)
		if err != nil {
			return nil, err
		}
		if start == nil || end == nil {
			return nil, fmt.Errorf("filterDate: null bound")
		}
		return filter(coll, func(r *Raster) bool {
			t, ok := r.Props[TimeStart]
			return ok && t >= *start && t < *end
		}), nil

	case graph.FilterBounds:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		g, err := ev.eval(v.Region, env)
		if err != nil {
			return nil, err
		}
		shape, ok := g.(geom.Geom)
		if !ok {
			return nil, fmt.Errorf("filterBounds: expected geometry, got %T", g)
		}
		b := shape.Bounds()
		return filter(coll, func(r *Raster) bool {
			return r.Footprint == nil || r.Footprint.Bounds().Overlaps(b)
		}), nil

	case graph.FilterProperty:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		return filter(coll, func(r *Raster) bool {
			p, ok := r.Props[v.Property]
			if !ok {
				return false
			}
			res, ok := applyBinary(v.Cmp, p, v.Value)
			return ok && res != 0
		}), nil

	case graph.SortLimit:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		out := slices.Clone(coll)
		slices.SortStableFunc(out, func(a, b *Raster) int {
			c := cmpProp(a, b, v.Property)
			if !v.Ascending {
				c = -c
			}
			return c
		})
		return limit(out, v.Limit), nil

	case graph.Nearest:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		t, err := ev.number(v.Time, env)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("nearest: null time")
		}
		out := make([]*Raster, 0, len(coll))
		for _, r := range coll {
			ts, ok := r.Props[TimeStart]
			if !ok {
				continue
			}
			c := r.withBands(r.Bands)
			c.Props["DateDist"] = math.Abs(ts - *t)
			out = append(out, c)
		}
		slices.SortStableFunc(out, func(a, b *Raster) int {
			return cmp.Compare(a.Props["DateDist"], b.Props["DateDist"])
		})
		return limit(out, v.Limit), nil

	case graph.Map:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		out := make([]*Raster, len(coll))
		for i, r := range coll {
			res, err := ev.eval(v.Body, ev.bind(env, v.Param, r))
			if err != nil {
				return nil, fmt.Errorf("map[%d]: %w", i, err)
			}
			img, ok := res.(*Raster)
			if !ok {
				return nil, fmt.Errorf("map[%d]: body returned %T, want image", i, res)
			}
			out[i] = img
		}
		return out, nil

	case graph.Combine:
		primary, err := ev.collection(v.Primary, env)
		if err != nil {
			return nil, err
		}
		secondary, err := ev.collection(v.Secondary, env)
		if err != nil {
			return nil, err
		}
		byTime := make(map[float64]*Raster, len(secondary))
		for _, s := range secondary {
			if t, ok := s.Props[TimeStart]; ok {
				if _, dup := byTime[t]; !dup {
					byTime[t] = s
				}
			}
		}
		out := make([]*Raster, 0, len(primary))
		for _, p := range primary {
			s, ok := byTime[p.Props[TimeStart]]
			if !ok {
				continue
			}
			merged := addBands(p, s)
			for k, val := range s.Props {
				if _, exists := merged.Props[k]; !exists {
					merged.Props[k] = val
				}
			}
			out = append(out, merged)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported collection expression %T", x)
}

func filter(coll []*Raster, keep func(*Raster) bool) []*Raster {
	out := make([]*Raster, 0, len(coll))
	for _, r := range coll {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func limit(coll []*Raster, n int) []*Raster {
	if n > 0 && len(coll) > n {
		return coll[:n]
	}
	return coll
}

// cmpProp orders images by a property, placing images without it last.
func cmpProp(a, b *Raster, prop string) int {
	pa, okA := a.Props[prop]
	pb, okB := b.Props[prop]
	switch {
	case okA && okB:
		return cmp.Compare(pa, pb)
	case okA:
		return -1
	case okB:
		return 1
	}
	return 0
}

// reduceCollection combines images pixel-wise over the valid inputs. Band
// names come from the first image.
func reduceCollection(coll []*Raster, kind graph.ReducerKind, n int) (*Raster, error) {
	if len(coll) == 0 {
		return NewRaster(nil), nil
	}
	first := coll[0]
	out := make([]Band, len(first.Bands))
	vals := make([]float64, 0, len(coll))
	for bi, fb := range first.Bands {
		nb := Band{Name: fb.Name, Data: make([]float64, n), Valid: make([]bool, n)}
		for i := 0; i < n; i++ {
			vals = vals[:0]
			for _, r := range coll {
				if bi >= len(r.Bands) {
					return nil, fmt.Errorf("reduce: image has %d bands, want %d", len(r.Bands), len(first.Bands))
				}
				if b := r.Bands[bi]; b.Valid[i] {
					vals = append(vals, b.Data[i])
				}
			}
			if len(vals) == 0 {
				continue
			}
			switch kind {
			case graph.ReduceSum:
				nb.Data[i] = floats.Sum(vals)
			case graph.ReduceMean:
				nb.Data[i] = floats.Sum(vals) / float64(len(vals))
			case graph.ReduceMedian:
				nb.Data[i] = median(vals)
			case graph.ReduceFirst:
				nb.Data[i] = vals[0]
			default:
				return nil, fmt.Errorf("reduce: unsupported reducer %q", kind)
			}
			nb.Valid[i] = true
		}
		out[bi] = nb
	}
	return &Raster{Bands: out, Props: maps.Clone(first.Props)}, nil
}

func median(vals []float64) float64 {
	s := slices.Clone(vals)
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}
