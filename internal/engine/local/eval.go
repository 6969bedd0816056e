package local

import (
	"context"
	"fmt"
	"maps"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// evaluator walks one expression tree. Values are nil (null or masked),
// float64, string, bool, []float64, *Raster, []*Raster, map[string]any or geom.Geom.
type evaluator struct {
	ctx context.Context
	eng *Engine
}

func (ev *evaluator) eval(x graph.Expr, env map[string]any) (any, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}

	switch v := x.(type) {
	case graph.Literal:
		return normalizeLiteral(v.Value), nil
	case graph.Asset:
		return ev.eng.asset(v)
	case graph.Geometry:
		return v.Shape, nil
	case graph.Var:
		val, ok := env[v.Name]
		if !ok {
			return nil, fmt.Errorf("unbound variable %q", v.Name)
		}
		return val, nil
	case graph.Constant:
		n, err := ev.number(v.Value, env)
		if err != nil {
			return nil, err
		}
		return NewRaster(nil, constantBand("constant", n, ev.eng.grid.Len())), nil

	case graph.FilterDate, graph.FilterBounds, graph.FilterProperty, graph.SortLimit,
		graph.Nearest, graph.Map, graph.Combine:
		return ev.collectionOp(x, env)
	case graph.Reduce:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		return reduceCollection(coll, v.Reducer, ev.eng.grid.Len())
	case graph.First:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		if len(coll) == 0 {
			return nil, fmt.Errorf("first: empty collection")
		}
		return coll[0], nil
	case graph.Size:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		return float64(len(coll)), nil
	case graph.At:
		coll, err := ev.collection(v.Collection, env)
		if err != nil {
			return nil, err
		}
		if v.Index < 0 || v.Index >= len(coll) {
			return nil, fmt.Errorf("at: index %d out of range for %d images", v.Index, len(coll))
		}
		return coll[v.Index], nil

	case graph.Binary:
		return ev.binary(v, env)
	case graph.Unary:
		return ev.unary(v, env)

	case graph.Select, graph.Rename, graph.AddBands, graph.Clip, graph.Where,
		graph.UpdateMask, graph.UnitScale, graph.Interpolate, graph.Remap,
		graph.Resample, graph.NeighborhoodMean, graph.NormalizedDifference:
		return ev.imageOp(x, env)
	case graph.Property:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		p, ok := img.Props[v.Name]
		if !ok {
			return nil, nil
		}
		return p, nil

	case graph.ReduceRegion:
		return ev.reduceRegion(v, env)
	case graph.Get:
		d, err := ev.eval(v.Dict, env)
		if err != nil {
			return nil, err
		}
		dict, ok := d.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("get: expected dictionary, got %T", d)
		}
		return dict[v.Key], nil

	case graph.Branch:
		c, err := ev.eval(v.Cond, env)
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return ev.eval(v.Then, env)
		}
		return ev.eval(v.Else, env)

	case nil:
		return nil, fmt.Errorf("nil expression")
	default:
		return nil, fmt.Errorf("unsupported expression %T", x)
	}
}

func (ev *evaluator) number(x graph.Expr, env map[string]any) (*float64, error) {
	v, err := ev.eval(x, env)
	if err != nil {
		return nil, err
	}
	return graph.AsFloat(v)
}

func (ev *evaluator) image(x graph.Expr, env map[string]any) (*Raster, error) {
	v, err := ev.eval(x, env)
	if err != nil {
		return nil, err
	}
	return ev.asImage(v)
}

// asImage accepts an image or promotes a number to a constant image.
func (ev *evaluator) asImage(v any) (*Raster, error) {
	switch r := v.(type) {
	case *Raster:
		return r, nil
	case nil, float64:
		n, _ := graph.AsFloat(r)
		return NewRaster(nil, constantBand("constant", n, ev.eng.grid.Len())), nil
	default:
		return nil, fmt.Errorf("expected image, got %T", v)
	}
}

func (ev *evaluator) collection(x graph.Expr, env map[string]any) ([]*Raster, error) {
	v, err := ev.eval(x, env)
	if err != nil {
		return nil, err
	}
	coll, ok := v.([]*Raster)
	if !ok {
		return nil, fmt.Errorf("expected collection, got %T", v)
	}
	return coll, nil
}

func (ev *evaluator) polygon(x graph.Expr, env map[string]any) (geom.Polygonal, error) {
	v, err := ev.eval(x, env)
	if err != nil {
		return nil, err
	}
	p, ok := v.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("expected polygon, got %T", v)
	}
	return p, nil
}

func (ev *evaluator) bind(env map[string]any, name string, val any) map[string]any {
	out := maps.Clone(env)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[name] = val
	return out
}

func normalizeLiteral(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

// truthy treats null, zero, and false as false.
func truthy(v any) bool {
	switch c := v.(type) {
	case nil:
		return false
	case bool:
		return c
	case float64:
		return c != 0
	case string:
		return c != ""
	default:
		return true
	}
}
