// Package pipeline runs the request-level flows of the service: resolve the
// region, build the layer graphs, run the terminal evaluation and announce
// exported maps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
	"github.com/couchcryptid/malaria-risk-index/internal/index"
	"github.com/couchcryptid/malaria-risk-index/internal/observability"
)

// CompositeLayer is the name under which the index itself is exported.
const CompositeLayer = "index"

const (
	exportQueueSize    = 64
	maxPublishAttempts = 4
	initialBackoff     = 200 * time.Millisecond
	maxBackoff         = 5 * time.Second
)

// ExportPublisher announces exported maps.
type ExportPublisher interface {
	Publish(ctx context.Context, event domain.MapExportEvent) error
}

// Pipeline serves map, point and center requests for named regions.
type Pipeline struct {
	resolver  domain.RegionResolver
	engine    graph.Engine
	providers index.Providers
	opts      index.Options
	publisher ExportPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	timeout   time.Duration

	exports chan domain.MapExportEvent
	ready   atomic.Bool
}

// New creates a Pipeline. publisher may be nil to disable export events. A
// zero timeout leaves terminal evaluations bounded only by the caller's context.
func New(
	resolver domain.RegionResolver,
	engine graph.Engine,
	providers index.Providers,
	opts index.Options,
	publisher ExportPublisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
	timeout time.Duration,
) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		engine:    engine,
		providers: providers,
		opts:      opts,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		timeout:   timeout,
		exports:   make(chan domain.MapExportEvent, exportQueueSize),
	}
}

// MarkReady flags the pipeline as able to serve requests.
func (p *Pipeline) MarkReady() {
	p.ready.Store(true)
	p.metrics.EngineReady.Set(1)
}

// CheckReadiness returns nil once the engine session is established.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("engine session not established")
	}
	return nil
}

// MapID returns the tile map id of the composite index for a region.
func (p *Pipeline) MapID(ctx context.Context, state string) (string, error) {
	return p.LayerMapID(ctx, state, CompositeLayer)
}

// LayerMapID returns the tile map id of a source layer, or of the composite
// when name is CompositeLayer.
func (p *Pipeline) LayerMapID(ctx context.Context, state, name string) (string, error) {
	dr, l, err := p.build(ctx, state)
	if err != nil {
		return "", err
	}

	var layer domain.Layer
	if name == CompositeLayer {
		layer = index.Composite(l, p.opts)
	} else {
		var ok bool
		if layer, ok = l.Layer(name); !ok {
			return "", fmt.Errorf("%w: %q", domain.ErrLayerNotFound, name)
		}
	}

	var id string
	err = p.evaluate(ctx, "map_export", func(ctx context.Context) error {
		var err error
		id, err = index.MapToken(ctx, p.engine, layer)
		return err
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("map exported", "region", state, "layer", name, "map_id", id)
	p.enqueue(domain.MapExportEvent{
		ID:         uuid.NewString(),
		Region:     state,
		Layer:      name,
		MapID:      id,
		Vis:        layer.Vis,
		RangeStart: dr.Start,
		RangeEnd:   dr.End,
		ExportedAt: domain.Now(),
	})
	return id, nil
}

// PointQuery samples the source layers and the index at a coordinate.
func (p *Pipeline) PointQuery(ctx context.Context, state string, at domain.Coordinate) (domain.PointValues, error) {
	_, l, err := p.build(ctx, state)
	if err != nil {
		return domain.PointValues{}, err
	}
	composite := index.Composite(l, p.opts)

	var values domain.PointValues
	err = p.evaluate(ctx, "point_query", func(ctx context.Context) error {
		var err error
		values, err = index.PointQuery(ctx, p.engine, l, composite, at)
		return err
	})
	return values, err
}

// Center returns the centroid of a region.
func (p *Pipeline) Center(ctx context.Context, state string) (domain.Coordinate, error) {
	region, err := p.resolver.Resolve(ctx, state)
	if err != nil {
		return domain.Coordinate{}, err
	}
	return region.Centroid()
}

func (p *Pipeline) build(ctx context.Context, state string) (domain.DateRange, index.Layers, error) {
	region, err := p.resolver.Resolve(ctx, state)
	if err != nil {
		return domain.DateRange{}, index.Layers{}, err
	}
	dr := domain.NewDateRange()
	return dr, p.providers.Build(dr, region), nil
}

// evaluate runs a terminal operation under the configured timeout and records it.
func (p *Pipeline) evaluate(ctx context.Context, op string, fn func(context.Context) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	p.metrics.EvaluationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.EvaluationErrors.WithLabelValues(op).Inc()
		p.logger.Error("evaluation failed", "op", op, "error", err)
	}
	return err
}

// enqueue hands an export event to Run without blocking the request.
func (p *Pipeline) enqueue(event domain.MapExportEvent) {
	if p.publisher == nil {
		return
	}
	select {
	case p.exports <- event:
	default:
		p.metrics.ExportEvents.WithLabelValues("dropped").Inc()
		p.logger.Warn("export queue full, dropping event", "region", event.Region, "layer", event.Layer)
	}
}

// Run publishes queued export events until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.publisher == nil {
		<-ctx.Done()
		return nil
	}
	p.logger.Info("export publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export publisher stopping", "reason", ctx.Err(), "pending", len(p.exports))
			return nil
		case event := <-p.exports:
			p.publish(ctx, event)
		}
	}
}

// publish retries with exponential backoff. Events that still fail are logged
// and dropped; map ids have already been returned to the caller.
func (p *Pipeline) publish(ctx context.Context, event domain.MapExportEvent) {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := p.publisher.Publish(ctx, event)
		if err == nil {
			p.metrics.ExportEvents.WithLabelValues("success").Inc()
			return
		}
		if ctx.Err() != nil || attempt == maxPublishAttempts {
			p.metrics.ExportEvents.WithLabelValues("error").Inc()
			p.logger.Error("publish export event failed", "error", err, "id", event.ID, "attempts", attempt)
			return
		}
		p.logger.Warn("publish export event failed, retrying", "error", err, "id", event.ID, "attempt", attempt)
		if !sleepWithContext(ctx, backoff) {
			p.metrics.ExportEvents.WithLabelValues("error").Inc()
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
