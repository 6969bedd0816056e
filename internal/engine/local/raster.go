package local

import (
	"fmt"
	"maps"
	"math"

	"github.com/ctessum/geom"
)

// Grid is the pixel lattice every raster in a catalog shares. (X0, Y0) is the
// top-left corner; rows grow southwards.
type Grid struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
	W  int     `json:"width"`
	H  int     `json:"height"`
}

// Len is the number of pixels in the grid.
func (g Grid) Len() int { return g.W * g.H }

// Center returns the coordinates of the center of pixel i.
func (g Grid) Center(i int) geom.Point {
	col, row := i%g.W, i/g.W
	return geom.Point{
		X: g.X0 + (float64(col)+0.5)*g.Dx,
		Y: g.Y0 - (float64(row)+0.5)*g.Dy,
	}
}

// Index returns the pixel containing p, or -1 when p is off the grid.
func (g Grid) Index(p geom.Point) int {
	col := int(math.Floor((p.X - g.X0) / g.Dx))
	row := int(math.Floor((g.Y0 - p.Y) / g.Dy))
	if col < 0 || row < 0 || col >= g.W || row >= g.H {
		return -1
	}
	return row*g.W + col
}

// Bounds is the extent of the grid.
func (g Grid) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.X0, Y: g.Y0 - float64(g.H)*g.Dy},
		Max: geom.Point{X: g.X0 + float64(g.W)*g.Dx, Y: g.Y0},
	}
}

// inside reports, per pixel, whether the pixel center falls in region.
func (g Grid) inside(region geom.Polygonal) []bool {
	out := make([]bool, g.Len())
	b := region.Bounds()
	for i := range out {
		c := g.Center(i)
		if c.X < b.Min.X || c.X > b.Max.X || c.Y < b.Min.Y || c.Y > b.Max.Y {
			continue
		}
		out[i] = c.Within(region) != geom.Outside
	}
	return out
}

// Band is one named layer of pixel values. Valid[i] is false where the pixel is masked.
type Band struct {
	Name  string
	Data  []float64
	Valid []bool
}

// Raster is an image: ordered bands plus numeric metadata. Footprint limits
// where the image has data for bounds filtering; nil means everywhere.
type Raster struct {
	Bands     []Band
	Props     map[string]float64
	Footprint geom.Polygonal
}

// NewBand builds a fully valid band.
func NewBand(name string, data []float64) Band {
	valid := make([]bool, len(data))
	for i := range valid {
		valid[i] = true
	}
	return Band{Name: name, Data: data, Valid: valid}
}

// NewRaster builds an image from bands with optional metadata.
func NewRaster(props map[string]float64, bands ...Band) *Raster {
	if props == nil {
		props = map[string]float64{}
	}
	return &Raster{Bands: bands, Props: props}
}

func (r *Raster) band(name string) (Band, bool) {
	for _, b := range r.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

// withBands copies r's metadata onto a new band set.
func (r *Raster) withBands(bands []Band) *Raster {
	return &Raster{Bands: bands, Props: maps.Clone(r.Props), Footprint: r.Footprint}
}

func (r *Raster) bandNames() []string {
	names := make([]string, len(r.Bands))
	for i, b := range r.Bands {
		names[i] = b.Name
	}
	return names
}

func constantBand(name string, v *float64, n int) Band {
	b := Band{Name: name, Data: make([]float64, n), Valid: make([]bool, n)}
	if v == nil {
		return b
	}
	for i := range b.Data {
		b.Data[i] = *v
		b.Valid[i] = true
	}
	return b
}

// pairBands matches the bands of two images for an element-wise operation:
// equal counts pair by position, a single band broadcasts.
func pairBands(a, b *Raster) ([][2]Band, error) {
	switch {
	case len(a.Bands) == len(b.Bands):
		out := make([][2]Band, len(a.Bands))
		for i := range a.Bands {
			out[i] = [2]Band{a.Bands[i], b.Bands[i]}
		}
		return out, nil
	case len(b.Bands) == 1:
		out := make([][2]Band, len(a.Bands))
		for i := range a.Bands {
			out[i] = [2]Band{a.Bands[i], b.Bands[0]}
		}
		return out, nil
	case len(a.Bands) == 1:
		out := make([][2]Band, len(b.Bands))
		for i := range b.Bands {
			out[i] = [2]Band{a.Bands[0], b.Bands[i]}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("band count mismatch: %v vs %v", a.bandNames(), b.bandNames())
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
