package graph

import (
	"context"
	"fmt"
)

// VisParams controls how a single-band expression is rendered to map tiles.
type VisParams struct {
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Palette []string `json:"palette,omitempty"`
}

// Engine materializes expressions. Both methods are terminal: they are the
// only points at which computation happens.
type Engine interface {
	// Evaluate computes the value of a scalar, dictionary, or geometry
	// expression. Numbers come back as float64, masked values as nil.
	Evaluate(ctx context.Context, e Expr) (any, error)
	// GetMap registers an image expression for tiled rendering and returns its map id.
	GetMap(ctx context.Context, e Expr, vis VisParams) (string, error)
}

// AsFloat converts an evaluated value to a number. A nil value means the
// pixel or reduction was masked and yields (nil, nil).
func AsFloat(v any) (*float64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &n, nil
	case float32:
		f := float64(n)
		return &f, nil
	case int:
		f := float64(n)
		return &f, nil
	case int64:
		f := float64(n)
		return &f, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", v)
	}
}
