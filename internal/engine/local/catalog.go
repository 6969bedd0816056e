package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Catalog is the file form of an engine's datasets. Every band holds one
// value per grid pixel in row-major order.
type Catalog struct {
	Grid        Grid                   `json:"grid"`
	Images      map[string]RasterDoc   `json:"images,omitempty"`
	Collections map[string][]RasterDoc `json:"collections,omitempty"`
}

// RasterDoc is one image of a catalog.
type RasterDoc struct {
	Properties map[string]float64 `json:"properties,omitempty"`
	Bands      []BandDoc          `json:"bands"`
}

// BandDoc is one band of a catalog image. Masked lists the indices of
// masked pixels.
type BandDoc struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Masked []int     `json:"masked,omitempty"`
}

// NewCatalog creates an empty catalog on grid.
func NewCatalog(grid Grid) *Catalog {
	return &Catalog{
		Grid:        grid,
		Images:      make(map[string]RasterDoc),
		Collections: make(map[string][]RasterDoc),
	}
}

// AddImage stores r under a catalog id.
func (c *Catalog) AddImage(id string, r *Raster) {
	c.Images[id] = rasterDoc(r)
}

// AddCollection appends images to a catalog collection.
func (c *Catalog) AddCollection(id string, rs ...*Raster) {
	for _, r := range rs {
		c.Collections[id] = append(c.Collections[id], rasterDoc(r))
	}
}

// Engine validates the catalog and loads it into a new engine.
func (c *Catalog) Engine(logger *slog.Logger) (*Engine, error) {
	if c.Grid.W <= 0 || c.Grid.H <= 0 || c.Grid.Dx <= 0 || c.Grid.Dy <= 0 {
		return nil, fmt.Errorf("invalid catalog grid %+v", c.Grid)
	}
	e := New(c.Grid, logger)
	for id, doc := range c.Images {
		r, err := doc.raster(c.Grid.Len())
		if err != nil {
			return nil, fmt.Errorf("image %q: %w", id, err)
		}
		e.AddImage(id, r)
	}
	for id, docs := range c.Collections {
		rs := make([]*Raster, len(docs))
		for i, doc := range docs {
			r, err := doc.raster(c.Grid.Len())
			if err != nil {
				return nil, fmt.Errorf("collection %q image %d: %w", id, i, err)
			}
			rs[i] = r
		}
		e.AddCollection(id, rs...)
	}
	return e, nil
}

// IDs returns the sorted image and collection ids of the catalog.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Images)+len(c.Collections))
	for id := range c.Images {
		ids = append(ids, id)
	}
	for id := range c.Collections {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func rasterDoc(r *Raster) RasterDoc {
	doc := RasterDoc{Bands: make([]BandDoc, len(r.Bands))}
	if len(r.Props) > 0 {
		doc.Properties = maps.Clone(r.Props)
	}
	for i, b := range r.Bands {
		bd := BandDoc{Name: b.Name, Values: b.Data}
		for j, ok := range b.Valid {
			if !ok {
				bd.Masked = append(bd.Masked, j)
			}
		}
		doc.Bands[i] = bd
	}
	return doc
}

func (d RasterDoc) raster(n int) (*Raster, error) {
	if len(d.Bands) == 0 {
		return nil, errors.New("no bands")
	}
	bands := make([]Band, len(d.Bands))
	for i, bd := range d.Bands {
		if len(bd.Values) != n {
			return nil, fmt.Errorf("band %q has %d values, grid has %d pixels", bd.Name, len(bd.Values), n)
		}
		b := NewBand(bd.Name, bd.Values)
		for _, j := range bd.Masked {
			if j < 0 || j >= n {
				return nil, fmt.Errorf("band %q masks pixel %d outside the grid", bd.Name, j)
			}
			b.Valid[j] = false
		}
		bands[i] = b
	}
	return NewRaster(d.Properties, bands...), nil
}

// ReadCatalog decodes a JSON catalog.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

// WriteCatalog encodes c as JSON.
func WriteCatalog(w io.Writer, c *Catalog) error {
	return json.NewEncoder(w).Encode(c)
}

func compressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zst")
}

// OpenCatalog reads a catalog file. Files ending in .zst are zstd-compressed.
func OpenCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return ReadCatalog(r)
}

// SaveCatalog writes c to path, compressing it when path ends in .zst.
func SaveCatalog(path string, c *Catalog) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	defer f.Close()

	if !compressed(path) {
		if err := WriteCatalog(f, c); err != nil {
			return fmt.Errorf("write catalog: %w", err)
		}
		return f.Close()
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	if err := WriteCatalog(enc, c); err != nil {
		enc.Close()
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return f.Close()
}
