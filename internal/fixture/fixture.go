// Package fixture generates synthetic engine catalogs holding every dataset
// the index reads, so the service and its checks can run on the local engine.
package fixture

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/engine/local"
	"github.com/couchcryptid/malaria-risk-index/internal/layers"
	"github.com/couchcryptid/malaria-risk-index/internal/lst"
)

// Options shapes a synthetic catalog.
type Options struct {
	// Bounds is the lng/lat extent of the grid.
	Bounds *geom.Bounds
	Width  int
	Height int
	// End is the newest acquisition time; every dated image falls in the
	// lookback window before it.
	End    time.Time
	Sensor lst.Sensor
	Seed   uint64
}

// DefaultOptions covers bounds with a 64 x 64 grid of Landsat 8 data ending now.
func DefaultOptions(bounds *geom.Bounds) Options {
	return Options{
		Bounds: bounds,
		Width:  64,
		Height: 64,
		End:    domain.Now(),
		Sensor: lst.L8,
		Seed:   1,
	}
}

// Validate checks the extent and grid size.
func (o Options) Validate() error {
	if o.Bounds == nil {
		return errors.New("fixture bounds are required")
	}
	if o.Bounds.Max.X <= o.Bounds.Min.X || o.Bounds.Max.Y <= o.Bounds.Min.Y {
		return fmt.Errorf("fixture bounds are empty: %v", o.Bounds)
	}
	if o.Width < 2 || o.Height < 2 {
		return fmt.Errorf("fixture grid must be at least 2 x 2, got %d x %d", o.Width, o.Height)
	}
	if o.End.IsZero() {
		return errors.New("fixture end time is required")
	}
	return nil
}

// Grid returns the pixel grid spanning the bounds.
func (o Options) Grid() local.Grid {
	return local.Grid{
		X0: o.Bounds.Min.X,
		Y0: o.Bounds.Max.Y,
		Dx: (o.Bounds.Max.X - o.Bounds.Min.X) / float64(o.Width),
		Dy: (o.Bounds.Max.Y - o.Bounds.Min.Y) / float64(o.Height),
		W:  o.Width,
		H:  o.Height,
	}
}

// Dataset sizes.
const (
	pentads       = 36
	s2Scenes      = 6
	cloudyScene   = 2
	landsatPasses = 4
	cloudFraction = 0.05
)

// WorldCover classes laid out in blocks across the grid.
var coverClasses = []float64{10, 20, 30, 40, 50, 60, 80, 90, 95}

// DatasetIDs lists the catalog ids the index reads with sensor s.
func DatasetIDs(s lst.Sensor) []string {
	rec := s.Record()
	ids := []string{
		layers.CHIRPSPentad,
		layers.Sentinel2,
		layers.PopulationDensity,
		layers.WorldCover,
		rec.SR,
		rec.TOA,
		lst.AsterGED,
		lst.NCEPWaterVapor,
	}
	slices.Sort(ids)
	return ids
}

// Build generates the catalog. The same options always yield the same catalog.
func Build(opts Options) (*local.Catalog, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	b := &builder{
		grid: opts.Grid(),
		rng:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		end:  opts.End.UTC(),
	}
	c := local.NewCatalog(b.grid)

	b.rainfall(c)
	b.sentinel2(c)
	b.population(c)
	b.worldCover(c)
	b.landsat(c, opts.Sensor)
	return c, nil
}

type builder struct {
	grid local.Grid
	rng  *rand.Rand
	end  time.Time
}

// field fills a band from a function of the pixel's relative position,
// u west to east and v north to south, both in (0, 1).
func (b *builder) field(name string, f func(u, v float64) float64) local.Band {
	data := make([]float64, b.grid.Len())
	for i := range data {
		col, row := i%b.grid.W, i/b.grid.W
		u := (float64(col) + 0.5) / float64(b.grid.W)
		v := (float64(row) + 0.5) / float64(b.grid.H)
		data[i] = f(u, v)
	}
	return local.NewBand(name, data)
}

func (b *builder) noise(scale float64) float64 {
	return (b.rng.Float64()*2 - 1) * scale
}

func stamp(t time.Time) map[string]float64 {
	return map[string]float64{local.TimeStart: float64(t.UnixMilli())}
}

func (b *builder) rainfall(c *local.Catalog) {
	for k := 1; k <= pentads; k++ {
		season := 0.5 + 0.5*math.Sin(float64(k)/pentads*2*math.Pi)
		c.AddCollection(layers.CHIRPSPentad, local.NewRaster(
			stamp(b.end.AddDate(0, 0, -5*k)),
			b.field("precipitation", func(u, _ float64) float64 {
				return math.Max(0, 2+18*u*season+b.noise(1))
			}),
		))
	}
}

func (b *builder) sentinel2(c *local.Catalog) {
	for k := range s2Scenes {
		props := stamp(b.end.AddDate(0, 0, -15-30*k))
		props["CLOUDY_PIXEL_PERCENTAGE"] = 5 + float64(k)
		if k == cloudyScene {
			props["CLOUDY_PIXEL_PERCENTAGE"] = 60
		}
		c.AddCollection(layers.Sentinel2, local.NewRaster(props,
			b.field("B8", func(_, v float64) float64 { return 1500 + 3500*v + b.noise(100) }),
			b.field("B4", func(_, v float64) float64 { return 1200 - 700*v + b.noise(100) }),
			b.field("QA60", func(_, _ float64) float64 {
				if b.rng.Float64() < cloudFraction {
					return 1 << 10
				}
				return 0
			}),
		))
	}
}

func (b *builder) population(c *local.Catalog) {
	for i, year := range []int{2015, 2020} {
		growth := 1 + 0.1*float64(i)
		c.AddCollection(layers.PopulationDensity, local.NewRaster(
			stamp(time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)),
			b.field("population_density", func(u, v float64) float64 {
				d := (u-0.6)*(u-0.6) + (v-0.4)*(v-0.4)
				return growth * (5 + 800*math.Exp(-d/0.05))
			}),
		))
	}
}

func (b *builder) worldCover(c *local.Catalog) {
	data := make([]float64, b.grid.Len())
	block := max(1, b.grid.W/8)
	for i := range data {
		col, row := i%b.grid.W, i/b.grid.W
		data[i] = coverClasses[(col/block+2*(row/block))%len(coverClasses)]
	}
	c.AddCollection(layers.WorldCover, local.NewRaster(
		stamp(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
		local.NewBand("Map", data),
	))
}

// landsat writes matching SR and TOA passes, the ASTER emissivity image and
// six-hourly water vapour on each acquisition day.
func (b *builder) landsat(c *local.Catalog, s lst.Sensor) {
	rec := s.Record()

	c.AddImage(lst.AsterGED, local.NewRaster(nil,
		b.field("ndvi", func(_, v float64) float64 { return 20 + 40*v }),
		b.field("emissivity_band13", func(_, v float64) float64 { return 955 + 20*v }),
		b.field("emissivity_band14", func(_, v float64) float64 { return 965 + 15*v }),
	))

	for k := range landsatPasses {
		day := b.end.AddDate(0, 0, -20-40*k).Truncate(24 * time.Hour)
		acquired := day.Add(10 * time.Hour)

		qa := b.field("QA_PIXEL", func(u, _ float64) float64 {
			var bits int
			if u < 0.08 {
				bits |= 1 << 7
			}
			if b.rng.Float64() < cloudFraction {
				bits |= 1 << 3
			}
			return float64(bits)
		})

		sr := make([]local.Band, 0, len(rec.VISW))
		for _, name := range rec.VISW {
			switch name {
			case "QA_PIXEL":
				sr = append(sr, qa)
			case rec.NIR:
				sr = append(sr, b.field(name, func(_, v float64) float64 { return 18000 + 12000*v }))
			case rec.Red:
				sr = append(sr, b.field(name, func(_, v float64) float64 { return 12000 - 3000*v }))
			default:
				sr = append(sr, b.field(name, func(_, _ float64) float64 { return 9000 + b.noise(200) }))
			}
		}
		c.AddCollection(rec.SR, local.NewRaster(stamp(acquired), sr...))

		toa := make([]local.Band, 0, len(rec.TIR)+1)
		for _, name := range rec.TIR {
			offset := 0.0
			if name != rec.ThermalBand {
				offset = -0.5
			}
			toa = append(toa, b.field(name, func(u, v float64) float64 {
				return 285 + 20*u + 6*v - 3*float64(k) + offset
			}))
		}
		toa = append(toa, qa)
		c.AddCollection(rec.TOA, local.NewRaster(stamp(acquired), toa...))

		for hour := 0; hour < 24; hour += 6 {
			c.AddCollection(lst.NCEPWaterVapor, local.NewRaster(
				stamp(day.Add(time.Duration(hour)*time.Hour)),
				b.field("pr_wtr", func(_, v float64) float64 { return 8 + 30*v + float64(hour)/2 }),
			))
		}
	}
}
