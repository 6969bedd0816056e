package lst

import "github.com/couchcryptid/malaria-risk-index/internal/graph"

// NCEPWaterVapor is the NCEP/NCAR reanalysis surface water vapour collection.
const NCEPWaterVapor = "NCEP_RE/surface_wv"

const (
	dayMillis = 86400000
	// NCEP reanalysis is produced every six hours.
	modelStepMillis = 21600000
	// tpwSentinel marks acquisitions with no water vapour record that day.
	tpwSentinel = -999
	tpwBinWidth = 6
	tpwBins     = 10
)

// WaterVaporBin returns the SMW coefficient bin of a total-precipitable-water
// value in mm: (0,6] -> 0, (6,12] -> 1, ... (48,54] -> 8, above 54 -> 9.
// Non-positive values fall in bin 0.
func WaterVaporBin(tpw float64) int {
	bin := 0
	for k := 1; k < tpwBins; k++ {
		if tpw > float64(k*tpwBinWidth) {
			bin = k
		}
	}
	return bin
}

// waterVaporBin is WaterVaporBin as a graph: the count of bin edges exceeded.
func waterVaporBin(tpw graph.Expr) graph.Expr {
	bin := graph.Gt(tpw, graph.Num(tpwBinWidth))
	for k := 2; k < tpwBins; k++ {
		bin = graph.Add(bin, graph.Gt(tpw, graph.Num(float64(k*tpwBinWidth))))
	}
	return bin
}

// WaterVapor interpolates NCEP total precipitable water to the acquisition
// time of img. Records are taken from the acquisition's UTC day; the two
// closest in time are weighted by the distance to the other one. A single
// record is used as is. With none, the result is the -999 sentinel with every
// pixel masked.
func WaterVapor(img graph.Expr) graph.Expr {
	t := graph.TimeStart(img)
	day := graph.DayStart(t)
	records := graph.Nearest{
		Collection: graph.FilterDate{
			Collection: graph.Collection(NCEPWaterVapor),
			Start:      day,
			End:        graph.Add(day, graph.Num(dayMillis)),
		},
		Time:  t,
		Limit: 2,
	}
	count := graph.Size{Collection: records}

	first := graph.At{Collection: records, Index: 0}
	second := graph.At{Collection: records, Index: 1}
	tpw1, tpw2 := graph.Band(first, "pr_wtr"), graph.Band(second, "pr_wtr")
	d1 := graph.Div(graph.Property{Image: first, Name: "DateDist"}, graph.Num(modelStepMillis))
	d2 := graph.Div(graph.Property{Image: second, Name: "DateDist"}, graph.Num(modelStepMillis))
	total := graph.Add(d1, d2)

	interpolated := graph.Branch{
		Cond: graph.Gt(total, graph.Num(0)),
		Then: graph.Add(
			graph.Mul(tpw1, graph.Div(d2, total)),
			graph.Mul(tpw2, graph.Div(d1, total)),
		),
		Else: graph.Mul(graph.Add(tpw1, tpw2), graph.Num(0.5)),
	}

	tpw := graph.Branch{
		Cond: graph.Eq(count, graph.Num(0)),
		Then: graph.UpdateMask{Image: graph.Constant{Value: graph.Num(tpwSentinel)}, Mask: graph.Num(0)},
		Else: graph.Branch{
			Cond: graph.Eq(count, graph.Num(1)),
			Then: tpw1,
			Else: interpolated,
		},
	}
	return graph.Rename{Image: tpw, Names: []string{"TPW"}}
}

// AddWaterVapor adds bands "TPW" and "TPWpos" (the coefficient bin).
func AddWaterVapor(img graph.Expr) graph.Expr {
	withTPW := graph.AddBands{Image: img, Bands: WaterVapor(img)}
	pos := graph.Rename{Image: waterVaporBin(graph.Band(withTPW, "TPW")), Names: []string{"TPWpos"}}
	return graph.AddBands{Image: withTPW, Bands: pos}
}
