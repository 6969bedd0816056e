package lst

import "github.com/couchcryptid/malaria-risk-index/internal/graph"

// AsterGED is the ASTER Global Emissivity Dataset image.
const AsterGED = "NASA/ASTER_GED/AG100_003"

// Prescribed emissivities.
const (
	vegetationEmissivity = 0.99
	waterEmissivity      = 0.99
	snowEmissivity       = 0.989
)

func asterBand(name string, scale float64) graph.Expr {
	return graph.Mul(graph.Band(graph.Image(AsterGED), name), graph.Num(scale))
}

// bareEmissivity removes the vegetation contribution from an ASTER band:
// (EM - 0.99*fvc) / (1 - fvc), with fvc derived from ASTER's own NDVI.
func bareEmissivity(band string) graph.Expr {
	asterFVC := fvc(asterBand("ndvi", 0.01))
	return graph.Div(
		graph.Sub(asterBand(band, 0.001), graph.Mul(asterFVC, graph.Num(vegetationEmissivity))),
		graph.Sub(graph.Num(1), asterFVC),
	)
}

func convolve(w EmissivityWeights, em13, em14 graph.Expr) graph.Expr {
	return graph.Add(
		graph.Add(graph.Mul(em13, graph.Num(w.C13)), graph.Mul(em14, graph.Num(w.C14))),
		graph.Num(w.C),
	)
}

// Emissivity returns the sensor's TIR emissivity for an image carrying FVC
// and QA_PIXEL bands. With useNDVI the ASTER bare-soil emissivity is mixed
// with vegetation by FVC; otherwise ASTER is convolved directly. Water pixels
// are then set to 0.99 and snow pixels to 0.989, snow taking precedence.
func Emissivity(s Sensor, img graph.Expr, useNDVI bool) graph.Expr {
	w := s.Record().Emissivity

	fv := graph.Band(img, "FVC")
	emBare := convolve(w, bareEmissivity("emissivity_band13"), bareEmissivity("emissivity_band14"))
	dynamic := graph.Add(
		graph.Mul(fv, graph.Num(vegetationEmissivity)),
		graph.Mul(graph.Sub(graph.Num(1), fv), emBare),
	)
	direct := convolve(w, asterBand("emissivity_band13", 0.001), asterBand("emissivity_band14", 0.001))

	em := graph.Expr(graph.Rename{
		Image: graph.Branch{Cond: graph.Literal{Value: useNDVI}, Then: dynamic, Else: direct},
		Names: []string{"EM"},
	})

	qa := graph.Band(img, "QA_PIXEL")
	em = graph.Where{Image: em, Test: graph.BitwiseAnd(qa, graph.Num(1<<qaWater)), Value: graph.Num(waterEmissivity)}
	em = graph.Where{Image: em, Test: graph.BitwiseAnd(qa, graph.Num(1<<qaSnow)), Value: graph.Num(snowEmissivity)}
	return em
}

// AddEmissivity adds band "EM".
func AddEmissivity(s Sensor, img graph.Expr, useNDVI bool) graph.Expr {
	return graph.AddBands{Image: img, Bands: Emissivity(s, img, useNDVI)}
}
