package local

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// 3x3 grid with unit pixels; pixel i has its center at (i%3+0.5, 2.5-i/3).
var testGrid = Grid{X0: 0, Y0: 3, Dx: 1, Dy: 1, W: 3, H: 3}

var wholeGrid = geom.Polygon{{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 3}, {X: 0, Y: 3}, {X: 0, Y: 0}}}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(testGrid, slog.Default())
	e.AddImage("seq", NewRaster(nil, NewBand("v", []float64{0, 1, 2, 3, 4, 5, 6, 7, 8})))
	return e
}

func masked(name string, data []float64, valid []bool) Band {
	return Band{Name: name, Data: data, Valid: valid}
}

func evalImage(t *testing.T, e *Engine, x graph.Expr) *Raster {
	t.Helper()
	v, err := e.Evaluate(context.Background(), x)
	require.NoError(t, err)
	img, ok := v.(*Raster)
	require.True(t, ok, "got %T", v)
	return img
}

func TestBinary_MaskIsIntersection(t *testing.T) {
	e := newTestEngine(t)
	e.AddImage("holes", NewRaster(nil, masked("v",
		[]float64{1, 1, 1, 1, 1, 1, 1, 1, 1},
		[]bool{true, false, true, true, true, true, true, true, false})))

	img := evalImage(t, e, graph.Add(graph.Image("seq"), graph.Image("holes")))

	b := img.Bands[0]
	assert.False(t, b.Valid[1])
	assert.False(t, b.Valid[8])
	assert.True(t, b.Valid[4])
	assert.InDelta(t, 5.0, b.Data[4], 1e-12)
}

func TestBinary_NumbersAndNulls(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Evaluate(ctx, graph.Mul(graph.Num(3), graph.Num(4)))
	require.NoError(t, err)
	assert.InDelta(t, 12.0, v, 1e-12)

	v, err = e.Evaluate(ctx, graph.Add(graph.Literal{}, graph.Num(1)))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = e.Evaluate(ctx, graph.Lt(graph.Literal{}, graph.Num(1)))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-12, "comparisons against null are false")

	v, err = e.Evaluate(ctx, graph.Div(graph.Num(1), graph.Num(0)))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBinary_BroadcastsNumberOverImage(t *testing.T) {
	e := newTestEngine(t)
	img := evalImage(t, e, graph.Mul(graph.Image("seq"), graph.Num(2)))
	assert.Equal(t, "v", img.Bands[0].Name)
	assert.InDelta(t, 16.0, img.Bands[0].Data[8], 1e-12)
}

func TestBitwise(t *testing.T) {
	e := New(testGrid, slog.Default())
	// bit 3 set in 8 and 24, bit 4 set in 16 and 24
	e.AddImage("qa", NewRaster(nil, NewBand("QA_PIXEL", []float64{0, 8, 16, 24, 1, 2, 4, 32, 64})))

	img := evalImage(t, e, graph.And(
		graph.BitClear(graph.Image("qa"), 3),
		graph.BitClear(graph.Image("qa"), 4),
	))
	assert.Equal(t, []float64{1, 0, 0, 0, 1, 1, 1, 1, 1}, img.Bands[0].Data)
}

func TestUpdateMask(t *testing.T) {
	e := newTestEngine(t)
	img := evalImage(t, e, graph.UpdateMask{
		Image: graph.Image("seq"),
		Mask:  graph.Gt(graph.Image("seq"), graph.Num(4)),
	})
	assert.Equal(t, []bool{false, false, false, false, false, true, true, true, true}, img.Bands[0].Valid)
}

func TestWhere_LastWriteWins(t *testing.T) {
	e := newTestEngine(t)
	seq := graph.Image("seq")
	first := graph.Where{Image: seq, Test: graph.Gt(seq, graph.Num(5)), Value: graph.Num(0.99)}
	second := graph.Where{Image: first, Test: graph.Gt(seq, graph.Num(6)), Value: graph.Num(0.989)}

	img := evalImage(t, e, second)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 0.99, 0.989, 0.989}, img.Bands[0].Data)
}

func TestClip(t *testing.T) {
	e := newTestEngine(t)
	leftColumn := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 3}, {X: 0, Y: 3}, {X: 0, Y: 0}}}

	img := evalImage(t, e, graph.Clip{Image: graph.Image("seq"), Region: graph.Region(leftColumn)})

	assert.Equal(t, []bool{true, false, false, true, false, false, true, false, false}, img.Bands[0].Valid)
}

func TestUnitScaleFromRegionMinMax(t *testing.T) {
	e := newTestEngine(t)
	seq := graph.Image("seq")
	stats := graph.ReduceRegion{Image: seq, Reducer: graph.Reducer{Kind: graph.ReduceMinMax}, Region: graph.Region(wholeGrid), Scale: 30}

	img := evalImage(t, e, graph.UnitScale{
		Image: seq,
		Low:   graph.Get{Dict: stats, Key: "v_min"},
		High:  graph.Get{Dict: stats, Key: "v_max"},
	})

	for i, v := range img.Bands[0].Data {
		assert.InDelta(t, float64(i)/8, v, 1e-12)
		assert.True(t, img.Bands[0].Valid[i])
	}
}

func TestUnitScale_NullRangeMasksEverything(t *testing.T) {
	e := newTestEngine(t)
	img := evalImage(t, e, graph.UnitScale{Image: graph.Image("seq"), Low: graph.Literal{}, High: graph.Num(1)})
	for _, ok := range img.Bands[0].Valid {
		assert.False(t, ok)
	}
}

func TestInterpolate_Clamp(t *testing.T) {
	e := newTestEngine(t)
	img := evalImage(t, e, graph.Interpolate{
		Image: graph.Image("seq"), FromLow: graph.Num(2), FromHigh: graph.Num(6), ToLow: 0, ToHigh: 1, Clamp: true,
	})
	assert.Equal(t, []float64{0, 0, 0, 0.25, 0.5, 0.75, 1, 1, 1}, img.Bands[0].Data)
}

func TestRemap(t *testing.T) {
	e := newTestEngine(t)
	from := []float64{0, 1, 2}
	to := []float64{10, 11, 12}

	img := evalImage(t, e, graph.Remap{Image: graph.Image("seq"), From: from, To: to})
	b := img.Bands[0]
	assert.Equal(t, "remapped", b.Name)
	assert.Equal(t, []bool{true, true, true, false, false, false, false, false, false}, b.Valid)
	assert.InDelta(t, 12.0, b.Data[2], 1e-12)

	def := 0.0
	img = evalImage(t, e, graph.Remap{Image: graph.Image("seq"), From: from, To: to, Default: &def})
	for _, ok := range img.Bands[0].Valid {
		assert.True(t, ok)
	}
	assert.InDelta(t, 0.0, img.Bands[0].Data[5], 1e-12)
}

func TestNeighborhoodMean(t *testing.T) {
	e := newTestEngine(t)
	img := evalImage(t, e, graph.NeighborhoodMean{Image: graph.Image("seq"), Radius: 1})
	b := img.Bands[0]
	assert.Equal(t, "v_mean", b.Name)
	assert.InDelta(t, 4.0, b.Data[4], 1e-12)
	assert.InDelta(t, (0+1+3+4)/4.0, b.Data[0], 1e-12)
}

func TestNormalizedDifference(t *testing.T) {
	e := New(testGrid, slog.Default())
	e.AddImage("s2", NewRaster(nil,
		NewBand("B8", []float64{3, 1, 0, 1, 1, 1, 1, 1, 1}),
		NewBand("B4", []float64{1, 1, 0, 1, 1, 1, 1, 1, 3}),
	))
	img := evalImage(t, e, graph.NormalizedDifference{Image: graph.Image("s2"), A: "B8", B: "B4"})
	b := img.Bands[0]
	assert.Equal(t, "nd", b.Name)
	assert.InDelta(t, 0.5, b.Data[0], 1e-12)
	assert.False(t, b.Valid[2], "zero sum is undefined")
	assert.InDelta(t, -0.5, b.Data[8], 1e-12)
}

func TestSelectMissingBandIsEvaluationFault(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Evaluate(context.Background(), graph.Band(graph.Image("seq"), "nope"))
	require.Error(t, err)

	var fault *domain.EvaluationFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "evaluate", fault.Op)
	assert.Contains(t, fault.Message, "nope")
}

func TestBranch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v, err := e.Evaluate(ctx, graph.Branch{Cond: graph.Num(1), Then: graph.Num(10), Else: graph.Num(20)})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-12)

	v, err = e.Evaluate(ctx, graph.Branch{Cond: graph.Literal{}, Then: graph.Num(10), Else: graph.Num(20)})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, v, 1e-12)

	// The untaken arm is never evaluated.
	v, err = e.Evaluate(ctx, graph.Branch{Cond: graph.Num(0), Then: graph.Image("missing"), Else: graph.Num(1)})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)
}

func TestReduceRegion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	seq := graph.Image("seq")

	t.Run("percentiles", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.ReduceRegion{
			Image:   seq,
			Reducer: graph.Reducer{Kind: graph.ReducePercentile, Percentiles: []float64{1, 99}},
			Region:  graph.Region(wholeGrid),
		})
		require.NoError(t, err)
		want := map[string]any{"v_p1": 0.0, "v_p99": 8.0}
		if diff := cmp.Diff(want, v); diff != "" {
			t.Errorf("percentiles mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("first at point", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.Get{
			Dict: graph.ReduceRegion{Image: seq, Reducer: graph.Reducer{Kind: graph.ReduceFirst}, Region: graph.Point(1.5, 0.5), Scale: 10},
			Key:  "v",
		})
		require.NoError(t, err)
		assert.InDelta(t, 7.0, v, 1e-12)
	})

	t.Run("point off grid is null", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.Get{
			Dict: graph.ReduceRegion{Image: seq, Reducer: graph.Reducer{Kind: graph.ReduceFirst}, Region: graph.Point(50, 50)},
			Key:  "v",
		})
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("no valid pixels gives null min and max", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.ReduceRegion{
			Image:   graph.UpdateMask{Image: seq, Mask: graph.Num(0)},
			Reducer: graph.Reducer{Kind: graph.ReduceMinMax},
			Region:  graph.Region(wholeGrid),
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"v_min": nil, "v_max": nil}, v)
	})
}

func TestCollections(t *testing.T) {
	e := New(testGrid, slog.Default())
	day := 86400000.0
	img := func(ts, v float64) *Raster {
		return NewRaster(map[string]float64{TimeStart: ts, "CLOUDY_PIXEL_PERCENTAGE": v},
			NewBand("b", []float64{v, v, v, v, v, v, v, v, v}))
	}
	e.AddCollection("c", img(0, 10), img(day, 40), img(2*day, 20), img(3*day, 50))
	e.AddCollection("other", NewRaster(map[string]float64{TimeStart: day}, NewBand("x", make([]float64, 9))))
	ctx := context.Background()
	coll := graph.Collection("c")

	t.Run("filterDate is half open", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.Size{Collection: graph.FilterDate{Collection: coll, Start: graph.Num(day), End: graph.Num(3 * day)}})
		require.NoError(t, err)
		assert.InDelta(t, 2.0, v, 1e-12)
	})

	t.Run("filterProperty", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.Size{Collection: graph.FilterProperty{Collection: coll, Property: "CLOUDY_PIXEL_PERCENTAGE", Cmp: graph.OpLt, Value: 30}})
		require.NoError(t, err)
		assert.InDelta(t, 2.0, v, 1e-12)
	})

	t.Run("sortLimit descending", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.Property{
			Image: graph.First{Collection: graph.SortLimit{Collection: coll, Property: TimeStart, Limit: 1}},
			Name:  TimeStart,
		})
		require.NoError(t, err)
		assert.InDelta(t, 3*day, v, 1e-12)
	})

	t.Run("nearest records distance", func(t *testing.T) {
		near := graph.Nearest{Collection: coll, Time: graph.Num(1.8 * day), Limit: 2}
		v, err := e.Evaluate(ctx, graph.Property{Image: graph.At{Collection: near, Index: 1}, Name: "DateDist"})
		require.NoError(t, err)
		assert.InDelta(t, 0.8*day, v, 1e-6)
	})

	t.Run("reduce sum and median", func(t *testing.T) {
		sum := evalImage(t, e, graph.Reduce{Collection: coll, Reducer: graph.ReduceSum})
		assert.InDelta(t, 120.0, sum.Bands[0].Data[0], 1e-12)
		med := evalImage(t, e, graph.Reduce{Collection: coll, Reducer: graph.ReduceMedian})
		assert.InDelta(t, 30.0, med.Bands[0].Data[0], 1e-12)
	})

	t.Run("map binds the element", func(t *testing.T) {
		mapped := graph.Map{Collection: coll, Param: "img", Body: graph.Mul(graph.Var{Name: "img"}, graph.Num(2))}
		v := evalImage(t, e, graph.Reduce{Collection: mapped, Reducer: graph.ReduceSum})
		assert.InDelta(t, 240.0, v.Bands[0].Data[0], 1e-12)
	})

	t.Run("combine joins on time", func(t *testing.T) {
		v, err := e.Evaluate(ctx, graph.Size{Collection: graph.Combine{Primary: coll, Secondary: graph.Collection("other")}})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, v, 1e-12)

		joined := evalImage(t, e, graph.First{Collection: graph.Combine{Primary: coll, Secondary: graph.Collection("other")}})
		assert.Equal(t, []string{"b", "x"}, joined.bandNames())
	})

	t.Run("first of empty collection fails", func(t *testing.T) {
		empty := graph.FilterDate{Collection: coll, Start: graph.Num(10 * day), End: graph.Num(11 * day)}
		_, err := e.Evaluate(ctx, graph.First{Collection: empty})
		require.Error(t, err)
	})
}

func TestGetMap(t *testing.T) {
	e := newTestEngine(t)
	vis := graph.VisParams{Min: 0, Max: 1, Palette: []string{"blue", "red"}}

	id, err := e.GetMap(context.Background(), graph.Image("seq"), vis)
	require.NoError(t, err)
	assert.Equal(t, "local-1", id)

	r, ok := e.Map(id)
	require.True(t, ok)
	assert.Equal(t, vis, r.Vis)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Evaluate(ctx, graph.Image("seq"))
	require.ErrorIs(t, err, context.Canceled)
}
