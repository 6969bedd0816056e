package graph

import "github.com/ctessum/geom"

// BinaryOp names an element-wise two-operand operation.
type BinaryOp string

const (
	OpAdd        BinaryOp = "add"
	OpSub        BinaryOp = "subtract"
	OpMul        BinaryOp = "multiply"
	OpDiv        BinaryOp = "divide"
	OpPow        BinaryOp = "pow"
	OpMin        BinaryOp = "min"
	OpMax        BinaryOp = "max"
	OpLt         BinaryOp = "lt"
	OpLte        BinaryOp = "lte"
	OpGt         BinaryOp = "gt"
	OpGte        BinaryOp = "gte"
	OpEq         BinaryOp = "eq"
	OpAnd        BinaryOp = "and"
	OpOr         BinaryOp = "or"
	OpBitwiseAnd BinaryOp = "bitwiseAnd"
)

// UnaryOp names an element-wise single-operand operation.
type UnaryOp string

const (
	OpNot UnaryOp = "not"
	OpAbs UnaryOp = "abs"
	// OpDayStart truncates an epoch-millis timestamp to 00:00 UTC of its day.
	OpDayStart UnaryOp = "dayStart"
)

// ReducerKind names an aggregation over a collection or a region.
type ReducerKind string

const (
	ReduceSum        ReducerKind = "sum"
	ReduceMean       ReducerKind = "mean"
	ReduceMedian     ReducerKind = "median"
	ReduceMinMax     ReducerKind = "minMax"
	ReducePercentile ReducerKind = "percentile"
	ReduceFirst      ReducerKind = "first"
)

// Reducer configures a ReduceRegion aggregation.
type Reducer struct {
	Kind        ReducerKind
	Percentiles []float64
}

// Num is a numeric literal.
func Num(v float64) Expr { return Literal{Value: v} }

// Image references a single catalog image.
func Image(id string) Expr { return Asset{ID: id} }

// Collection references a catalog image collection.
func Collection(id string) Expr { return Asset{ID: id, Collection: true} }

// Region embeds a polygonal region.
func Region(p geom.Polygonal) Expr { return Geometry{Shape: p} }

// Point embeds a point given in (lng, lat) order.
func Point(lng, lat float64) Expr { return Geometry{Shape: geom.Point{X: lng, Y: lat}} }

func Add(a, b Expr) Expr        { return Binary{Op: OpAdd, Left: a, Right: b} }
func Sub(a, b Expr) Expr        { return Binary{Op: OpSub, Left: a, Right: b} }
func Mul(a, b Expr) Expr        { return Binary{Op: OpMul, Left: a, Right: b} }
func Div(a, b Expr) Expr        { return Binary{Op: OpDiv, Left: a, Right: b} }
func Pow(a, b Expr) Expr        { return Binary{Op: OpPow, Left: a, Right: b} }
func Min(a, b Expr) Expr        { return Binary{Op: OpMin, Left: a, Right: b} }
func Max(a, b Expr) Expr        { return Binary{Op: OpMax, Left: a, Right: b} }
func Lt(a, b Expr) Expr         { return Binary{Op: OpLt, Left: a, Right: b} }
func Lte(a, b Expr) Expr        { return Binary{Op: OpLte, Left: a, Right: b} }
func Gt(a, b Expr) Expr         { return Binary{Op: OpGt, Left: a, Right: b} }
func Gte(a, b Expr) Expr        { return Binary{Op: OpGte, Left: a, Right: b} }
func Eq(a, b Expr) Expr         { return Binary{Op: OpEq, Left: a, Right: b} }
func And(a, b Expr) Expr        { return Binary{Op: OpAnd, Left: a, Right: b} }
func Or(a, b Expr) Expr         { return Binary{Op: OpOr, Left: a, Right: b} }
func BitwiseAnd(a, b Expr) Expr { return Binary{Op: OpBitwiseAnd, Left: a, Right: b} }
func Not(a Expr) Expr           { return Unary{Op: OpNot, Operand: a} }
func Abs(a Expr) Expr           { return Unary{Op: OpAbs, Operand: a} }
func DayStart(a Expr) Expr      { return Unary{Op: OpDayStart, Operand: a} }

// Clamp limits an expression to [lo, hi].
func Clamp(a Expr, lo, hi float64) Expr { return Min(Max(a, Num(lo)), Num(hi)) }

// BitClear is true where bit n of a is unset.
func BitClear(a Expr, n uint) Expr {
	return Eq(BitwiseAnd(a, Num(float64(uint(1)<<n))), Num(0))
}

// BitSet is true where bit n of a is set.
func BitSet(a Expr, n uint) Expr {
	return Not(BitClear(a, n))
}

// Band selects one band of an image.
func Band(img Expr, name string) Expr { return Select{Image: img, Bands: []string{name}} }

// TimeStart reads the acquisition time of an image in epoch millis.
func TimeStart(img Expr) Expr { return Property{Image: img, Name: "system:time_start"} }
