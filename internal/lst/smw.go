package lst

import (
	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

var binIndex = []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

// coefficient maps the TPWpos band to one SMW term. Bins outside the table get 0.
func coefficient(pos graph.Expr, table [10]Coefficients, term func(Coefficients) float64) graph.Expr {
	values := make([]float64, len(table))
	for i, c := range table {
		values[i] = term(c)
	}
	zero := 0.0
	return graph.Resample{
		Image:  graph.Remap{Image: pos, From: binIndex, To: values, Default: &zero},
		Method: "bilinear",
	}
}

// SMW computes the statistical mono-window land surface temperature in kelvin,
//
//	LST = A*Tb/em + B/em + C
//
// for an image carrying the thermal band, EM, TPW and TPWpos. Pixels whose
// TPW is negative (no water vapour record) are masked.
func SMW(s Sensor, img graph.Expr) graph.Expr {
	rec := s.Record()
	pos := graph.Band(img, "TPWpos")
	a := coefficient(pos, rec.SMW, func(c Coefficients) float64 { return c.A })
	b := coefficient(pos, rec.SMW, func(c Coefficients) float64 { return c.B })
	c := coefficient(pos, rec.SMW, func(c Coefficients) float64 { return c.C })

	tb := graph.Band(img, rec.ThermalBand)
	em := graph.Band(img, "EM")
	lst := graph.Add(graph.Add(graph.Div(graph.Mul(a, tb), em), graph.Div(b, em)), c)

	valid := graph.Not(graph.Lt(graph.Band(img, "TPW"), graph.Num(0)))
	return graph.Rename{Image: graph.UpdateMask{Image: lst, Mask: valid}, Names: []string{"LST"}}
}

// Invert is the SMW equation on plain numbers.
func Invert(c Coefficients, tb, em float64) float64 {
	return c.A*tb/em + c.B/em + c.C
}

// Options selects the sensor and the emissivity model.
type Options struct {
	Sensor  Sensor
	UseNDVI bool
}

func collection(id string, dr domain.DateRange, region graph.Expr) graph.Expr {
	return graph.FilterBounds{
		Collection: graph.FilterDate{
			Collection: graph.Collection(id),
			Start:      graph.Num(dr.StartMillis()),
			End:        graph.Num(dr.EndMillis()),
		},
		Region: region,
	}
}

func mapEach(coll graph.Expr, body func(img graph.Expr) graph.Expr) graph.Expr {
	const param = "img"
	return graph.Map{Collection: coll, Param: param, Body: body(graph.Var{Name: param})}
}

// Collection returns the per-acquisition LST collection for a date range and
// region. Each image carries the VISW bands, NDVI, FVC, TPW, TPWpos, EM, the
// TIR bands and LST.
func Collection(opts Options, dr domain.DateRange, region domain.Region) graph.Expr {
	rec := opts.Sensor.Record()
	geometry := graph.Region(region.Geometry)

	toa := mapEach(collection(rec.TOA, dr, geometry), func(img graph.Expr) graph.Expr {
		return graph.Select{Image: MaskTOA(img), Bands: rec.TIR}
	})

	sr := collection(rec.SR, dr, geometry)
	sr = mapEach(sr, MaskSR)
	sr = mapEach(sr, func(img graph.Expr) graph.Expr { return AddNDVI(opts.Sensor, img) })
	sr = mapEach(sr, AddFVC)
	sr = mapEach(sr, AddWaterVapor)
	sr = mapEach(sr, func(img graph.Expr) graph.Expr { return AddEmissivity(opts.Sensor, img, opts.UseNDVI) })

	keep := append(append([]string(nil), rec.VISW...), "NDVI", "FVC", "TPW", "TPWpos", "EM")
	sr = mapEach(sr, func(img graph.Expr) graph.Expr { return graph.Select{Image: img, Bands: keep} })

	combined := graph.Combine{Primary: sr, Secondary: toa}
	return mapEach(combined, func(img graph.Expr) graph.Expr {
		return graph.AddBands{Image: img, Bands: SMW(opts.Sensor, img)}
	})
}
