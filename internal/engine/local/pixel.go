package local

import (
	"fmt"
	"math"

	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

func (ev *evaluator) binary(b graph.Binary, env map[string]any) (any, error) {
	l, err := ev.eval(b.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(b.Right, env)
	if err != nil {
		return nil, err
	}

	_, lImg := l.(*Raster)
	_, rImg := r.(*Raster)
	if !lImg && !rImg {
		ln, err := graph.AsFloat(l)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Op, err)
		}
		rn, err := graph.AsFloat(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Op, err)
		}
		if ln == nil || rn == nil {
			if isComparison(b.Op) {
				return 0.0, nil
			}
			return nil, nil
		}
		v, ok := applyBinary(b.Op, *ln, *rn)
		if !ok {
			return nil, nil
		}
		return v, nil
	}

	li, err := ev.asImage(l)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Op, err)
	}
	ri, err := ev.asImage(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Op, err)
	}
	pairs, err := pairBands(li, ri)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Op, err)
	}

	base := li
	if len(li.Bands) == 1 && len(ri.Bands) > 1 {
		base = ri
	}
	out := make([]Band, len(pairs))
	for i, p := range pairs {
		name := p[0].Name
		if base == ri {
			name = p[1].Name
		}
		out[i] = zipBand(name, p[0], p[1], func(x, y float64) (float64, bool) {
			return applyBinary(b.Op, x, y)
		})
	}
	return li.withBands(out), nil
}

func zipBand(name string, a, b Band, f func(x, y float64) (float64, bool)) Band {
	out := Band{Name: name, Data: make([]float64, len(a.Data)), Valid: make([]bool, len(a.Data))}
	for i := range a.Data {
		if !a.Valid[i] || !b.Valid[i] {
			continue
		}
		out.Data[i], out.Valid[i] = f(a.Data[i], b.Data[i])
	}
	return out
}

func mapBand(name string, a Band, f func(x float64) (float64, bool)) Band {
	out := Band{Name: name, Data: make([]float64, len(a.Data)), Valid: make([]bool, len(a.Data))}
	for i := range a.Data {
		if !a.Valid[i] {
			continue
		}
		out.Data[i], out.Valid[i] = f(a.Data[i])
	}
	return out
}

func isComparison(op graph.BinaryOp) bool {
	switch op {
	case graph.OpLt, graph.OpLte, graph.OpGt, graph.OpGte, graph.OpEq, graph.OpAnd, graph.OpOr:
		return true
	}
	return false
}

// applyBinary returns false when the result is undefined (division by zero, NaN).
func applyBinary(op graph.BinaryOp, x, y float64) (float64, bool) {
	var v float64
	switch op {
	case graph.OpAdd:
		v = x + y
	case graph.OpSub:
		v = x - y
	case graph.OpMul:
		v = x * y
	case graph.OpDiv:
		if y == 0 {
			return 0, false
		}
		v = x / y
	case graph.OpPow:
		v = math.Pow(x, y)
	case graph.OpMin:
		v = math.Min(x, y)
	case graph.OpMax:
		v = math.Max(x, y)
	case graph.OpLt:
		v = boolNum(x < y)
	case graph.OpLte:
		v = boolNum(x <= y)
	case graph.OpGt:
		v = boolNum(x > y)
	case graph.OpGte:
		v = boolNum(x >= y)
	case graph.OpEq:
		v = boolNum(x == y)
	case graph.OpAnd:
		v = boolNum(x != 0 && y != 0)
	case graph.OpOr:
		v = boolNum(x != 0 || y != 0)
	case graph.OpBitwiseAnd:
		v = float64(int64(x) & int64(y))
	default:
		return 0, false
	}
	return v, finite(v)
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (ev *evaluator) unary(u graph.Unary, env map[string]any) (any, error) {
	v, err := ev.eval(u.Operand, env)
	if err != nil {
		return nil, err
	}
	f := func(x float64) (float64, bool) {
		switch u.Op {
		case graph.OpNot:
			return boolNum(x == 0), true
		case graph.OpAbs:
			return math.Abs(x), true
		case graph.OpDayStart:
			const day = 86400000.0
			return math.Floor(x/day) * day, true
		}
		return 0, false
	}

	if img, ok := v.(*Raster); ok {
		out := make([]Band, len(img.Bands))
		for i, b := range img.Bands {
			out[i] = mapBand(b.Name, b, f)
		}
		return img.withBands(out), nil
	}
	n, err := graph.AsFloat(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u.Op, err)
	}
	if n == nil {
		if u.Op == graph.OpNot {
			return 1.0, nil
		}
		return nil, nil
	}
	r, ok := f(*n)
	if !ok {
		return nil, fmt.Errorf("unsupported unary op %q", u.Op)
	}
	return r, nil
}

func (ev *evaluator) imageOp(x graph.Expr, env map[string]any) (any, error) {
	switch v := x.(type) {
	case graph.Select:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		out := make([]Band, 0, len(v.Bands))
		for _, name := range v.Bands {
			b, ok := img.band(name)
			if !ok {
				return nil, fmt.Errorf("select: band %q not found in %v", name, img.bandNames())
			}
			out = append(out, b)
		}
		return img.withBands(out), nil

	case graph.Rename:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		if len(v.Names) != len(img.Bands) {
			return nil, fmt.Errorf("rename: %d names for %d bands", len(v.Names), len(img.Bands))
		}
		out := make([]Band, len(img.Bands))
		for i, b := range img.Bands {
			b.Name = v.Names[i]
			out[i] = b
		}
		return img.withBands(out), nil

	case graph.AddBands:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		extra, err := ev.image(v.Bands, env)
		if err != nil {
			return nil, err
		}
		return addBands(img, extra), nil

	case graph.Clip:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		region, err := ev.polygon(v.Region, env)
		if err != nil {
			return nil, fmt.Errorf("clip: %w", err)
		}
		inside := ev.eng.grid.inside(region)
		out := make([]Band, len(img.Bands))
		for i, b := range img.Bands {
			nb := Band{Name: b.Name, Data: b.Data, Valid: make([]bool, len(b.Valid))}
			for j := range b.Valid {
				nb.Valid[j] = b.Valid[j] && inside[j]
			}
			out[i] = nb
		}
		return img.withBands(out), nil

	case graph.Where:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		test, err := ev.image(v.Test, env)
		if err != nil {
			return nil, err
		}
		val, err := ev.image(v.Value, env)
		if err != nil {
			return nil, err
		}
		return where(img, test, val)

	case graph.UpdateMask:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		mask, err := ev.image(v.Mask, env)
		if err != nil {
			return nil, err
		}
		pairs, err := pairBands(img, mask)
		if err != nil {
			return nil, fmt.Errorf("updateMask: %w", err)
		}
		out := make([]Band, len(img.Bands))
		for i := range img.Bands {
			b, m := pairs[i][0], pairs[i][1]
			nb := Band{Name: b.Name, Data: b.Data, Valid: make([]bool, len(b.Valid))}
			for j := range b.Valid {
				nb.Valid[j] = b.Valid[j] && m.Valid[j] && m.Data[j] != 0
			}
			out[i] = nb
		}
		return img.withBands(out), nil

	case graph.UnitScale:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		lo, err := ev.number(v.Low, env)
		if err != nil {
			return nil, err
		}
		hi, err := ev.number(v.High, env)
		if err != nil {
			return nil, err
		}
		return rescale(img, lo, hi, 0, 1, false), nil

	case graph.Interpolate:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		lo, err := ev.number(v.FromLow, env)
		if err != nil {
			return nil, err
		}
		hi, err := ev.number(v.FromHigh, env)
		if err != nil {
			return nil, err
		}
		return rescale(img, lo, hi, v.ToLow, v.ToHigh, v.Clamp), nil

	case graph.Remap:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		if len(v.From) != len(v.To) {
			return nil, fmt.Errorf("remap: %d source values for %d targets", len(v.From), len(v.To))
		}
		table := make(map[float64]float64, len(v.From))
		for i, f := range v.From {
			table[f] = v.To[i]
		}
		out := make([]Band, len(img.Bands))
		for i, b := range img.Bands {
			out[i] = mapBand("remapped", b, func(x float64) (float64, bool) {
				if y, ok := table[x]; ok {
					return y, true
				}
				if v.Default != nil {
					return *v.Default, true
				}
				return 0, false
			})
		}
		return img.withBands(out), nil

	case graph.Resample:
		// All catalog rasters share one grid, so there is nothing to reproject.
		return ev.image(v.Image, env)

	case graph.NeighborhoodMean:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		out := make([]Band, len(img.Bands))
		for i, b := range img.Bands {
			out[i] = ev.eng.grid.focalMean(b, v.Radius)
			out[i].Name = b.Name + "_mean"
		}
		return img.withBands(out), nil

	case graph.NormalizedDifference:
		img, err := ev.image(v.Image, env)
		if err != nil {
			return nil, err
		}
		a, ok := img.band(v.A)
		if !ok {
			return nil, fmt.Errorf("normalizedDifference: band %q not found", v.A)
		}
		b, ok := img.band(v.B)
		if !ok {
			return nil, fmt.Errorf("normalizedDifference: band %q not found", v.B)
		}
		nd := zipBand("nd", a, b, func(x, y float64) (float64, bool) {
			if x+y == 0 {
				return 0, false
			}
			return (x - y) / (x + y), true
		})
		return img.withBands([]Band{nd}), nil
	}
	return nil, fmt.Errorf("unsupported image expression %T", x)
}

func addBands(img, extra *Raster) *Raster {
	out := append([]Band(nil), img.Bands...)
	for _, e := range extra.Bands {
		replaced := false
		for i := range out {
			if out[i].Name == e.Name {
				out[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return img.withBands(out)
}

func where(img, test, val *Raster) (*Raster, error) {
	out := make([]Band, len(img.Bands))
	for i, b := range img.Bands {
		t := test.Bands[0]
		if len(test.Bands) == len(img.Bands) {
			t = test.Bands[i]
		}
		v := val.Bands[0]
		if len(val.Bands) == len(img.Bands) {
			v = val.Bands[i]
		}
		if len(t.Data) != len(b.Data) || len(v.Data) != len(b.Data) {
			return nil, fmt.Errorf("where: grid mismatch")
		}
		nb := Band{Name: b.Name, Data: append([]float64(nil), b.Data...), Valid: append([]bool(nil), b.Valid...)}
		for j := range nb.Data {
			if t.Valid[j] && t.Data[j] != 0 {
				nb.Data[j], nb.Valid[j] = v.Data[j], v.Valid[j]
			}
		}
		out[i] = nb
	}
	return img.withBands(out), nil
}

// rescale maps [lo, hi] onto [toLo, toHi]. A null or degenerate input range
// masks the whole image.
func rescale(img *Raster, lo, hi *float64, toLo, toHi float64, clamp bool) *Raster {
	out := make([]Band, len(img.Bands))
	for i, b := range img.Bands {
		if lo == nil || hi == nil || *hi == *lo {
			out[i] = Band{Name: b.Name, Data: make([]float64, len(b.Data)), Valid: make([]bool, len(b.Data))}
			continue
		}
		l, h := *lo, *hi
		outMin, outMax := math.Min(toLo, toHi), math.Max(toLo, toHi)
		out[i] = mapBand(b.Name, b, func(x float64) (float64, bool) {
			y := (x-l)/(h-l)*(toHi-toLo) + toLo
			if clamp {
				y = math.Max(outMin, math.Min(outMax, y))
			}
			return y, finite(y)
		})
	}
	return img.withBands(out)
}

// focalMean averages the valid pixels in a square window around each valid pixel.
func (g Grid) focalMean(b Band, radius int) Band {
	out := Band{Name: b.Name, Data: make([]float64, len(b.Data)), Valid: make([]bool, len(b.Data))}
	for i := range b.Data {
		if !b.Valid[i] {
			continue
		}
		col, row := i%g.W, i/g.W
		var sum float64
		var n int
		for dy := -radius; dy <= radius; dy++ {
			r := row + dy
			if r < 0 || r >= g.H {
				continue
			}
			for dx := -radius; dx <= radius; dx++ {
				c := col + dx
				if c < 0 || c >= g.W {
					continue
				}
				j := r*g.W + c
				if b.Valid[j] {
					sum += b.Data[j]
					n++
				}
			}
		}
		out.Data[i] = sum / float64(n)
		out.Valid[i] = true
	}
	return out
}
