// Package local evaluates graph expressions in-process over in-memory rasters
// that share one pixel grid. It backs the test suites and can stand in for the
// remote engine during development.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// Engine is an in-process graph.Engine over a fixed catalog.
type Engine struct {
	grid   Grid
	logger *slog.Logger

	mu          sync.RWMutex
	images      map[string]*Raster
	collections map[string][]*Raster
	maps        map[string]Rendered
}

// Rendered is an image registered through GetMap.
type Rendered struct {
	Image *Raster
	Vis   graph.VisParams
}

// New creates an empty engine on the given grid.
func New(grid Grid, logger *slog.Logger) *Engine {
	return &Engine{
		grid:        grid,
		logger:      logger,
		images:      make(map[string]*Raster),
		collections: make(map[string][]*Raster),
		maps:        make(map[string]Rendered),
	}
}

// Grid returns the pixel lattice shared by the catalog.
func (e *Engine) Grid() Grid { return e.grid }

// AddImage registers a single image under a catalog id.
func (e *Engine) AddImage(id string, r *Raster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[id] = r
}

// AddCollection appends images to a catalog collection.
func (e *Engine) AddCollection(id string, rs ...*Raster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections[id] = append(e.collections[id], rs...)
}

// Evaluate implements graph.Engine.
func (e *Engine) Evaluate(ctx context.Context, x graph.Expr) (any, error) {
	ev := &evaluator{ctx: ctx, eng: e}
	v, err := ev.eval(x, nil)
	if err != nil {
		return nil, fault(ctx, "evaluate", err)
	}
	return v, nil
}

// GetMap implements graph.Engine. The map id can be resolved with Map.
func (e *Engine) GetMap(ctx context.Context, x graph.Expr, vis graph.VisParams) (string, error) {
	ev := &evaluator{ctx: ctx, eng: e}
	img, err := ev.image(x, nil)
	if err != nil {
		return "", fault(ctx, "getMap", err)
	}
	if len(img.Bands) == 0 {
		return "", &domain.EvaluationFault{Op: "getMap", Message: "image has no bands"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := fmt.Sprintf("local-%d", len(e.maps)+1)
	e.maps[id] = Rendered{Image: img, Vis: vis}
	e.logger.Debug("map registered", "map_id", id, "bands", img.bandNames())
	return id, nil
}

// Map returns the image registered under a map id.
func (e *Engine) Map(id string) (Rendered, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.maps[id]
	return r, ok
}

// fault reports evaluation failures as engine faults; cancellation passes through.
func fault(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &domain.EvaluationFault{Op: op, Message: err.Error()}
}

func (e *Engine) asset(a graph.Asset) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if a.Collection {
		coll, ok := e.collections[a.ID]
		if !ok {
			return nil, fmt.Errorf("collection %q not found", a.ID)
		}
		return slices.Clone(coll), nil
	}
	img, ok := e.images[a.ID]
	if !ok {
		return nil, fmt.Errorf("image %q not found", a.ID)
	}
	return img, nil
}
