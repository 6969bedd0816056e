package regions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
)

// ShapefileResolver resolves regions from a boundary shapefile loaded into
// memory at start-up. Every feature whose name field matches is merged into
// the region.
type ShapefileResolver struct {
	regions map[string]domain.Region
}

// LoadShapefile reads all features of path, grouping them by nameField.
func LoadShapefile(path, nameField string, logger *slog.Logger) (*ShapefileResolver, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open boundary shapefile: %w", err)
	}
	defer dec.Close()

	parts := make(map[string]geom.MultiPolygon)
	var skipped int
	for {
		g, fields, more := dec.DecodeRowFields(nameField)
		if !more {
			break
		}
		name := cleanField(fields[nameField])
		poly, ok := g.(geom.Polygonal)
		if name == "" || !ok {
			skipped++
			continue
		}
		parts[name] = append(parts[name], poly.Polygons()...)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode boundary shapefile: %w", err)
	}

	r := &ShapefileResolver{regions: make(map[string]domain.Region, len(parts))}
	for name, mp := range parts {
		r.regions[name] = domain.Region{Name: name, Geometry: simplify(mp)}
	}
	logger.Info("boundary shapefile loaded", "path", path, "regions", len(r.regions), "skipped", skipped)
	return r, nil
}

// Resolve implements domain.RegionResolver.
func (r *ShapefileResolver) Resolve(_ context.Context, name string) (domain.Region, error) {
	region, ok := r.regions[name]
	if !ok {
		return domain.Region{}, fmt.Errorf("%w: %q", domain.ErrRegionNotFound, name)
	}
	return region, nil
}

// Len returns the number of distinct regions loaded.
func (r *ShapefileResolver) Len() int { return len(r.regions) }

// DBF text fields are space and NUL padded.
func cleanField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

func simplify(mp geom.MultiPolygon) geom.Polygonal {
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}
