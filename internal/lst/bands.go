package lst

import "github.com/couchcryptid/malaria-risk-index/internal/graph"

// QA_PIXEL bit positions.
const (
	qaCloud  = 3
	qaShadow = 4
	qaSnow   = 5
	qaWater  = 7
)

// MaskSR masks cloud and cloud-shadow pixels of a surface-reflectance scene.
func MaskSR(img graph.Expr) graph.Expr {
	qa := graph.Band(img, "QA_PIXEL")
	return graph.UpdateMask{
		Image: img,
		Mask:  graph.And(graph.BitClear(qa, qaCloud), graph.BitClear(qa, qaShadow)),
	}
}

// MaskTOA masks cloud pixels of a top-of-atmosphere scene.
func MaskTOA(img graph.Expr) graph.Expr {
	return graph.UpdateMask{Image: img, Mask: graph.BitClear(graph.Band(img, "QA_PIXEL"), qaCloud)}
}

func reflectance(img graph.Expr, band string) graph.Expr {
	return graph.Add(graph.Mul(graph.Band(img, band), graph.Num(0.0000275)), graph.Num(-0.2))
}

// AddNDVI adds an "NDVI" band computed from scaled surface reflectance.
func AddNDVI(s Sensor, img graph.Expr) graph.Expr {
	rec := s.Record()
	nir, red := reflectance(img, rec.NIR), reflectance(img, rec.Red)
	ndvi := graph.Div(graph.Sub(nir, red), graph.Add(nir, red))
	return graph.AddBands{Image: img, Bands: graph.Rename{Image: ndvi, Names: []string{"NDVI"}}}
}

// Bare-soil and full-vegetation NDVI end members.
const (
	ndviBare       = 0.2
	ndviVegetation = 0.86
)

// fvc is ((ndvi - 0.2) / 0.66)^2 clamped to [0, 1].
func fvc(ndvi graph.Expr) graph.Expr {
	scaled := graph.Div(graph.Sub(ndvi, graph.Num(ndviBare)), graph.Num(ndviVegetation-ndviBare))
	return graph.Clamp(graph.Pow(scaled, graph.Num(2)), 0, 1)
}

// AddFVC adds the fraction of vegetation cover as band "FVC".
func AddFVC(img graph.Expr) graph.Expr {
	return graph.AddBands{
		Image: img,
		Bands: graph.Rename{Image: fvc(graph.Band(img, "NDVI")), Names: []string{"FVC"}},
	}
}
