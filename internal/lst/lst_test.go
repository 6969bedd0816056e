package lst

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/engine/local"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

var (
	testGrid   = local.Grid{X0: 0, Y0: 2, Dx: 1, Dy: 1, W: 2, H: 2}
	testRegion = domain.Region{Name: "Testland", Geometry: geom.Polygon{{
		{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 0},
	}}}
	testRange = domain.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	acquired = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
)

// QA_PIXEL per pixel: clear, cloud, water, water+snow.
var testQA = []float64{0, 1 << 3, 1 << 7, 1<<7 | 1<<5}

func fill(v float64) []float64 { return []float64{v, v, v, v} }

func stamp(t time.Time) map[string]float64 {
	return map[string]float64{local.TimeStart: float64(t.UnixMilli())}
}

func addNCEP(e *local.Engine, hour int, tpw float64) {
	e.AddCollection(NCEPWaterVapor, local.NewRaster(
		stamp(time.Date(2024, 3, 10, hour, 0, 0, 0, time.UTC)),
		local.NewBand("pr_wtr", fill(tpw)),
	))
}

func newL8Engine(t *testing.T) *local.Engine {
	t.Helper()
	return newL8EngineWith(t, testQA, fill(300))
}

// newL8EngineWith builds the Landsat 8 fixture with the given QA_PIXEL and
// brightness temperature per pixel.
func newL8EngineWith(t *testing.T, qa, b10 []float64) *local.Engine {
	t.Helper()
	e := local.New(testGrid, slog.Default())

	rec := L8.Record()
	var srBands []local.Band
	for _, name := range rec.VISW {
		switch name {
		case "QA_PIXEL":
			srBands = append(srBands, local.NewBand(name, qa))
		case rec.NIR:
			srBands = append(srBands, local.NewBand(name, fill(20000)))
		case rec.Red:
			srBands = append(srBands, local.NewBand(name, fill(10000)))
		default:
			srBands = append(srBands, local.NewBand(name, fill(8000)))
		}
	}
	e.AddCollection(rec.SR, local.NewRaster(stamp(acquired), srBands...))
	e.AddCollection(rec.TOA, local.NewRaster(stamp(acquired),
		local.NewBand("B10", b10),
		local.NewBand("B11", fill(299)),
		local.NewBand("QA_PIXEL", qa),
	))
	e.AddImage(AsterGED, local.NewRaster(nil,
		local.NewBand("ndvi", fill(50)),
		local.NewBand("emissivity_band13", fill(970)),
		local.NewBand("emissivity_band14", fill(980)),
	))

	addNCEP(e, 6, 10)
	addNCEP(e, 12, 20)
	// next UTC day, never used
	e.AddCollection(NCEPWaterVapor, local.NewRaster(
		stamp(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)),
		local.NewBand("pr_wtr", fill(100)),
	))
	return e
}

func evalBand(t *testing.T, e *local.Engine, x graph.Expr, name string) local.Band {
	t.Helper()
	v, err := e.Evaluate(context.Background(), graph.Band(x, name))
	require.NoError(t, err)
	img, ok := v.(*local.Raster)
	require.True(t, ok, "got %T", v)
	return img.Bands[0]
}

func TestWaterVaporBin(t *testing.T) {
	tests := []struct {
		tpw  float64
		want int
	}{
		{-999, 0}, {0, 0}, {0.1, 0}, {6, 0}, {6.01, 1}, {12, 1}, {17.9, 2},
		{24, 3}, {30, 4}, {36, 5}, {42, 6}, {48, 7}, {54, 8}, {54.01, 9}, {500, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WaterVaporBin(tt.tpw), "tpw=%v", tt.tpw)
	}
}

func TestWaterVaporBin_MonotonicAndExhaustive(t *testing.T) {
	seen := make(map[int]bool)
	prev := WaterVaporBin(-10)
	for tpw := -10.0; tpw <= 80; tpw += 0.25 {
		bin := WaterVaporBin(tpw)
		assert.GreaterOrEqual(t, bin, prev, "tpw=%v", tpw)
		assert.GreaterOrEqual(t, bin, 0)
		assert.Less(t, bin, tpwBins)
		seen[bin] = true
		prev = bin
	}
	assert.Len(t, seen, tpwBins, "every bin is reachable")
}

func TestWaterVaporBin_GraphMatchesGo(t *testing.T) {
	e := local.New(local.Grid{X0: 0, Y0: 1, Dx: 1, Dy: 1, W: 8, H: 1}, slog.Default())
	values := []float64{-999, 0, 6, 6.5, 23, 48.2, 54, 70}
	e.AddImage("tpw", local.NewRaster(nil, local.NewBand("TPW", values)))

	v, err := e.Evaluate(context.Background(), waterVaporBin(graph.Image("tpw")))
	require.NoError(t, err)
	got := v.(*local.Raster).Bands[0].Data

	for i, tpw := range values {
		assert.InDelta(t, float64(WaterVaporBin(tpw)), got[i], 0, "tpw=%v", tpw)
	}
}

func TestWaterVapor(t *testing.T) {
	scene := func(e *local.Engine) graph.Expr {
		e.AddImage("scene", local.NewRaster(stamp(acquired), local.NewBand("B10", fill(300))))
		return graph.Image("scene")
	}

	t.Run("two records are time weighted", func(t *testing.T) {
		e := local.New(testGrid, slog.Default())
		addNCEP(e, 6, 10)
		addNCEP(e, 12, 20)
		b := evalBand(t, e, WaterVapor(scene(e)), "TPW")
		// 2h from the 12:00 record and 4h from the 06:00 one
		assert.InDelta(t, 20*4.0/6+10*2.0/6, b.Data[0], 1e-9)
	})

	t.Run("equidistant records are averaged", func(t *testing.T) {
		e := local.New(testGrid, slog.Default())
		addNCEP(e, 7, 10)
		addNCEP(e, 13, 30)
		b := evalBand(t, e, WaterVapor(scene(e)), "TPW")
		assert.InDelta(t, 20.0, b.Data[0], 1e-9)
	})

	t.Run("single record is used as is", func(t *testing.T) {
		e := local.New(testGrid, slog.Default())
		addNCEP(e, 18, 33)
		b := evalBand(t, e, WaterVapor(scene(e)), "TPW")
		assert.InDelta(t, 33.0, b.Data[0], 1e-9)
	})

	t.Run("no record masks the band", func(t *testing.T) {
		e := local.New(testGrid, slog.Default())
		e.AddCollection(NCEPWaterVapor)
		b := evalBand(t, e, WaterVapor(scene(e)), "TPW")
		assert.Equal(t, []bool{false, false, false, false}, b.Valid)
	})
}

func TestEmissivity_OverridesWin(t *testing.T) {
	e := local.New(testGrid, slog.Default())
	e.AddImage(AsterGED, local.NewRaster(nil,
		local.NewBand("ndvi", fill(50)),
		local.NewBand("emissivity_band13", fill(970)),
		local.NewBand("emissivity_band14", fill(980)),
	))
	e.AddImage("scene", local.NewRaster(nil,
		local.NewBand("FVC", fill(0.3)),
		local.NewBand("QA_PIXEL", testQA),
	))

	for _, useNDVI := range []bool{false, true} {
		b := evalBand(t, e, Emissivity(L8, graph.Image("scene"), useNDVI), "EM")
		assert.InDelta(t, waterEmissivity, b.Data[2], 0, "water")
		assert.InDelta(t, snowEmissivity, b.Data[3], 0, "snow wins over water")
		assert.NotEqual(t, waterEmissivity, b.Data[0])
	}

	w := L8.Record().Emissivity
	direct := evalBand(t, e, Emissivity(L8, graph.Image("scene"), false), "EM")
	assert.InDelta(t, w.C13*0.97+w.C14*0.98+w.C, direct.Data[0], 1e-9)

	dynamic := evalBand(t, e, Emissivity(L8, graph.Image("scene"), true), "EM")
	assert.InDelta(t, expectedDynamicEM(w, 0.3), dynamic.Data[0], 1e-9)
}

func expectedDynamicEM(w EmissivityWeights, fv float64) float64 {
	asterFVC := math.Pow((0.5-0.2)/(0.86-0.2), 2)
	bare := func(em float64) float64 { return (em - 0.99*asterFVC) / (1 - asterFVC) }
	emBare := w.C13*bare(0.97) + w.C14*bare(0.98) + w.C
	return fv*0.99 + (1-fv)*emBare
}

func TestCollection_L8(t *testing.T) {
	e := newL8Engine(t)
	rec := L8.Record()
	coll := Collection(Options{Sensor: L8}, testRange, testRegion)

	v, err := e.Evaluate(context.Background(), graph.Size{Collection: coll})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 0)

	img := graph.First{Collection: coll}

	tpw := evalBand(t, e, img, "TPW")
	pos := evalBand(t, e, img, "TPWpos")
	assert.InDelta(t, 20*4.0/6+10*2.0/6, tpw.Data[0], 1e-9)
	assert.InDelta(t, 2.0, pos.Data[0], 0)

	lst := evalBand(t, e, img, "LST")
	emDirect := rec.Emissivity.C13*0.97 + rec.Emissivity.C14*0.98 + rec.Emissivity.C
	assert.True(t, lst.Valid[0])
	assert.InDelta(t, Invert(rec.SMW[2], 300, emDirect), lst.Data[0], 1e-6)
	assert.False(t, lst.Valid[1], "cloudy pixel is masked")
	assert.InDelta(t, Invert(rec.SMW[2], 300, waterEmissivity), lst.Data[2], 1e-6)
	assert.InDelta(t, Invert(rec.SMW[2], 300, snowEmissivity), lst.Data[3], 1e-6)
}

func TestCollection_NoWaterVaporMasksLST(t *testing.T) {
	e := newL8Engine(t)
	// replace the water vapour collection with one from another day
	e2 := local.New(testGrid, slog.Default())
	for _, id := range []string{L8.Record().SR, L8.Record().TOA} {
		v, err := e.Evaluate(context.Background(), graph.First{Collection: graph.Collection(id)})
		require.NoError(t, err)
		e2.AddCollection(id, v.(*local.Raster))
	}
	v, err := e.Evaluate(context.Background(), graph.Image(AsterGED))
	require.NoError(t, err)
	e2.AddImage(AsterGED, v.(*local.Raster))
	e2.AddCollection(NCEPWaterVapor, local.NewRaster(
		stamp(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)),
		local.NewBand("pr_wtr", fill(20)),
	))

	lst := evalBand(t, e2, graph.First{Collection: Collection(Options{Sensor: L8}, testRange, testRegion)}, "LST")
	assert.Equal(t, []bool{false, false, false, false}, lst.Valid)
}

func surfaceTemperatureBand(t *testing.T, e *local.Engine) local.Band {
	t.Helper()
	l := SurfaceTemperature(Options{Sensor: L8})(testRange, testRegion)
	v, err := e.Evaluate(context.Background(), l.Band)
	require.NoError(t, err)
	assert.Equal(t, palette, l.Vis.Palette)
	return v.(*local.Raster).Bands[0]
}

func TestSurfaceTemperature(t *testing.T) {
	e := newL8Engine(t)
	rec := L8.Record()
	b := surfaceTemperatureBand(t, e)

	assert.Equal(t, "LST", b.Name)
	emDirect := rec.Emissivity.C13*0.97 + rec.Emissivity.C14*0.98 + rec.Emissivity.C
	kelvin := map[int]float64{
		0: Invert(rec.SMW[2], 300, emDirect),
		2: Invert(rec.SMW[2], 300, waterEmissivity),
		3: Invert(rec.SMW[2], 300, snowEmissivity),
	}
	lo := math.Min(kelvin[0], math.Min(kelvin[2], kelvin[3]))
	hi := math.Max(kelvin[0], math.Max(kelvin[2], kelvin[3]))
	require.Less(t, lo, hi)

	assert.False(t, b.Valid[1], "cloudy pixel is masked")
	for i, k := range kelvin {
		require.True(t, b.Valid[i], "pixel %d", i)
		assert.InDelta(t, (k-lo)/(hi-lo), b.Data[i], 1e-6, "pixel %d", i)
	}
}

func TestSurfaceTemperature_ColdRegionSpansUnitRange(t *testing.T) {
	// Every pixel is well below freezing; the layer still spans 0..1.
	tb := []float64{225, 230, 235, 240}
	e := newL8EngineWith(t, fill(0), tb)
	rec := L8.Record()
	b := surfaceTemperatureBand(t, e)

	emDirect := rec.Emissivity.C13*0.97 + rec.Emissivity.C14*0.98 + rec.Emissivity.C
	kelvin := make([]float64, len(tb))
	for i, v := range tb {
		kelvin[i] = Invert(rec.SMW[2], v, emDirect)
	}
	lo, hi := kelvin[0], kelvin[0]
	for _, k := range kelvin {
		lo, hi = math.Min(lo, k), math.Max(hi, k)
	}
	require.Less(t, lo, hi)

	seen := make(map[float64]bool)
	for i := range tb {
		require.True(t, b.Valid[i], "pixel %d", i)
		assert.InDelta(t, (kelvin[i]-lo)/(hi-lo), b.Data[i], 1e-6, "pixel %d", i)
		seen[math.Round(b.Data[i]*1e6)] = true
	}
	assert.Len(t, seen, len(tb), "distinct temperatures stay distinct")

	var minV, maxV = math.Inf(1), math.Inf(-1)
	for _, v := range b.Data {
		minV, maxV = math.Min(minV, v), math.Max(maxV, v)
	}
	assert.InDelta(t, 0.0, minV, 1e-9)
	assert.InDelta(t, 1.0, maxV, 1e-9)
}

func TestSurfaceTemperature_UniformRegionMasked(t *testing.T) {
	e := newL8EngineWith(t, fill(0), fill(300))
	b := surfaceTemperatureBand(t, e)
	assert.Equal(t, []bool{false, false, false, false}, b.Valid)
}

func TestSensor(t *testing.T) {
	for _, s := range []Sensor{L4, L5, L7, L8} {
		parsed, err := ParseSensor(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
		assert.Contains(t, s.Record().TIR, s.Record().ThermalBand)
	}

	_, err := ParseSensor("L9")
	require.Error(t, err)

	assert.Equal(t, "B6_VCID_1", L7.Record().ThermalBand)
	assert.Equal(t, "SR_B5", L8.Record().NIR)
	assert.Equal(t, "SR_B3", L5.Record().Red)
}
