package graph

import "github.com/ctessum/geom"

// Expr is a node of a lazily evaluated raster-algebra graph. Building an Expr
// computes nothing; an Engine materializes it at a terminal evaluation.
//
// The set of node types is closed: every variant lives in this file.
type Expr interface {
	isExpr()
}

// --- sources ---

// Literal is a constant scalar, string, bool, or []float64 value.
type Literal struct{ Value any }

// Asset references a catalog dataset by its stable identifier.
type Asset struct {
	ID         string
	Collection bool
}

// Constant is a single-band image whose every pixel equals Value (a number expression).
type Constant struct{ Value Expr }

// Geometry embeds a polygonal region or a point.
type Geometry struct{ Shape geom.Geom }

// Var is the per-element placeholder bound inside a Map body.
type Var struct{ Name string }

// --- collections ---

// FilterDate keeps images whose time_start is in [Start, End) (epoch millis).
type FilterDate struct{ Collection, Start, End Expr }

// FilterBounds keeps images that intersect Region.
type FilterBounds struct{ Collection, Region Expr }

// FilterProperty keeps images whose numeric metadata property satisfies Cmp Value.
type FilterProperty struct {
	Collection Expr
	Property   string
	Cmp        BinaryOp
	Value      float64
}

// SortLimit orders a collection by a metadata property and keeps the first Limit images.
type SortLimit struct {
	Collection Expr
	Property   string
	Ascending  bool
	Limit      int
}

// Nearest orders a collection by |time_start - Time|, records the distance in
// the DateDist property, and keeps the first Limit images.
type Nearest struct {
	Collection Expr
	Time       Expr
	Limit      int
}

// Map applies Body to every image of Collection with Param bound to the image.
type Map struct {
	Collection Expr
	Param      string
	Body       Expr
}

// Combine joins two collections image-by-image on time_start, adding the
// Secondary bands to the matching Primary image.
type Combine struct{ Primary, Secondary Expr }

// Reduce collapses a collection into one image, pixel-wise.
type Reduce struct {
	Collection Expr
	Reducer    ReducerKind
}

// First is the first image of a collection.
type First struct{ Collection Expr }

// Size is the number of images in a collection.
type Size struct{ Collection Expr }

// At is the image at Index of a collection.
type At struct {
	Collection Expr
	Index      int
}

// --- images ---

// Select keeps the named bands, in order.
type Select struct {
	Image Expr
	Bands []string
}

// Rename renames the bands of an image, positionally.
type Rename struct {
	Image Expr
	Names []string
}

// AddBands copies the bands of Bands into Image, replacing bands of the same name.
type AddBands struct{ Image, Bands Expr }

// Clip masks every pixel outside Region.
type Clip struct{ Image, Region Expr }

// Binary is an element-wise operation; operands may be images or numbers.
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

// Unary is an element-wise single-operand operation.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Where replaces pixels of Image with Value wherever Test is non-zero.
type Where struct{ Image, Test, Value Expr }

// UpdateMask masks pixels of Image where Mask is zero or masked.
type UpdateMask struct{ Image, Mask Expr }

// UnitScale maps [Low, High] linearly onto [0, 1] without clamping.
type UnitScale struct{ Image, Low, High Expr }

// Interpolate maps [FromLow, FromHigh] linearly onto [ToLow, ToHigh],
// clamping to the output range when Clamp is set.
type Interpolate struct {
	Image         Expr
	FromLow       Expr
	FromHigh      Expr
	ToLow, ToHigh float64
	Clamp         bool
}

// Remap replaces each value in From with the value at the same index in To.
// Unmatched pixels take Default, or are masked when Default is nil.
type Remap struct {
	Image   Expr
	From    []float64
	To      []float64
	Default *float64
}

// Resample sets the interpolation used when the image is reprojected.
type Resample struct {
	Image  Expr
	Method string
}

// NeighborhoodMean is the mean over a square kernel of the given pixel radius.
// Each output band is named after its input with a "_mean" suffix.
type NeighborhoodMean struct {
	Image     Expr
	Radius    int
	Normalize bool
}

// NormalizedDifference computes (A - B) / (A + B) as band "nd".
type NormalizedDifference struct {
	Image Expr
	A, B  string
}

// Property reads a numeric metadata property of an image.
type Property struct {
	Image Expr
	Name  string
}

// --- reductions ---

// ReduceRegion reduces every band of Image over Region to a dictionary keyed
// "<band>" (first), "<band>_min"/"<band>_max" (minMax), "<band>_p<N>" (percentile),
// or "<band>_<reducer>" otherwise.
type ReduceRegion struct {
	Image   Expr
	Reducer Reducer
	Region  Expr
	Scale   float64
}

// Get reads a key from a dictionary; a missing key yields null.
type Get struct {
	Dict Expr
	Key  string
}

// --- control ---

// Branch selects Then when Cond is truthy and Else otherwise. The choice is
// made by the engine at evaluation time; a null Cond selects Else.
type Branch struct{ Cond, Then, Else Expr }

func (Literal) isExpr()              {}
func (Asset) isExpr()                {}
func (Constant) isExpr()             {}
func (Geometry) isExpr()             {}
func (Var) isExpr()                  {}
func (FilterDate) isExpr()           {}
func (FilterBounds) isExpr()         {}
func (FilterProperty) isExpr()       {}
func (SortLimit) isExpr()            {}
func (Nearest) isExpr()              {}
func (Map) isExpr()                  {}
func (Combine) isExpr()              {}
func (Reduce) isExpr()               {}
func (First) isExpr()                {}
func (Size) isExpr()                 {}
func (At) isExpr()                   {}
func (Select) isExpr()               {}
func (Rename) isExpr()               {}
func (AddBands) isExpr()             {}
func (Clip) isExpr()                 {}
func (Binary) isExpr()               {}
func (Unary) isExpr()                {}
func (Where) isExpr()                {}
func (UpdateMask) isExpr()           {}
func (UnitScale) isExpr()            {}
func (Interpolate) isExpr()          {}
func (Remap) isExpr()                {}
func (Resample) isExpr()             {}
func (NeighborhoodMean) isExpr()     {}
func (NormalizedDifference) isExpr() {}
func (Property) isExpr()             {}
func (ReduceRegion) isExpr()         {}
func (Get) isExpr()                  {}
func (Branch) isExpr()               {}
