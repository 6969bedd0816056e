// Command genfixture writes a synthetic engine catalog for running the
// service with ENGINE=local. The extent comes from -bbox, or from a region of
// the boundary shapefile padded by -pad degrees.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  -shapefile data/gaul_level2.shp -region Nairobi \
//	  -out data/fixtures/nairobi.json.zst
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/malaria-risk-index/internal/adapter/regions"
	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/engine/local"
	"github.com/couchcryptid/malaria-risk-index/internal/fixture"
	"github.com/couchcryptid/malaria-risk-index/internal/lst"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("genfixture", flag.ContinueOnError)
	out := fs.String("out", "", "output catalog path (.json or .json.zst)")
	bbox := fs.String("bbox", "", "extent as minLng,minLat,maxLng,maxLat")
	shapefile := fs.String("shapefile", "", "boundary shapefile to take the extent from")
	nameField := fs.String("name-field", "ADM1_NAME", "shapefile field holding region names")
	region := fs.String("region", "", "region name in the shapefile")
	pad := fs.Float64("pad", 0.05, "degrees added around a shapefile region")
	size := fs.Int("size", 64, "grid width and height in pixels")
	sensor := fs.String("sensor", "L8", "Landsat sensor (L4, L5, L7, L8)")
	end := fs.String("end", "", "newest acquisition date, YYYY-MM-DD (default today)")
	seed := fs.Uint64("seed", 1, "noise seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *out == "" {
		fs.Usage()
		return errors.New("missing required flag: -out")
	}

	bounds, err := extent(*bbox, *shapefile, *nameField, *region, *pad)
	if err != nil {
		return err
	}

	opts := fixture.DefaultOptions(bounds)
	opts.Width, opts.Height = *size, *size
	opts.Seed = *seed
	if opts.Sensor, err = lst.ParseSensor(*sensor); err != nil {
		return err
	}
	if *end != "" {
		t, err := time.Parse(time.DateOnly, *end)
		if err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
		opts.End = t
	}

	catalog, err := fixture.Build(opts)
	if err != nil {
		return err
	}
	if err := local.SaveCatalog(*out, catalog); err != nil {
		return err
	}

	printStats(stdout, *out, opts, catalog)
	return nil
}

// extent resolves the grid bounds from either a bbox or a shapefile region.
func extent(bbox, shapefile, nameField, region string, pad float64) (*geom.Bounds, error) {
	switch {
	case bbox != "" && shapefile != "":
		return nil, errors.New("use either -bbox or -shapefile, not both")
	case bbox != "":
		return parseBBox(bbox)
	case shapefile != "" && region != "":
		resolver, err := regions.LoadShapefile(shapefile, nameField, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err != nil {
			return nil, err
		}
		r, err := resolver.Resolve(context.Background(), region)
		if err != nil {
			return nil, err
		}
		b := r.Geometry.Bounds()
		return &geom.Bounds{
			Min: geom.Point{X: b.Min.X - pad, Y: b.Min.Y - pad},
			Max: geom.Point{X: b.Max.X + pad, Y: b.Max.Y + pad},
		}, nil
	default:
		return nil, errors.New("missing extent: set -bbox, or -shapefile with -region")
	}
}

func parseBBox(s string) (*geom.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid -bbox %q: want minLng,minLat,maxLng,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid -bbox %q: %w", s, err)
		}
		v[i] = f
	}
	return &geom.Bounds{Min: geom.Point{X: v[0], Y: v[1]}, Max: geom.Point{X: v[2], Y: v[3]}}, nil
}

func printStats(w io.Writer, path string, opts fixture.Options, c *local.Catalog) {
	fmt.Fprintf(w, "wrote catalog: %s\n", path)
	fmt.Fprintf(w, "grid: %d x %d, pixel %.5f x %.5f deg, origin (%.4f, %.4f)\n",
		c.Grid.W, c.Grid.H, c.Grid.Dx, c.Grid.Dy, c.Grid.X0, c.Grid.Y0)
	fmt.Fprintf(w, "sensor: %s, newest acquisition %s, lookback %d months\n",
		opts.Sensor, opts.End.Format(time.DateOnly), domain.LookbackMonths)
	for _, id := range c.IDs() {
		if _, ok := c.Images[id]; ok {
			fmt.Fprintf(w, "  %-45s image\n", id)
			continue
		}
		fmt.Fprintf(w, "  %-45s %d images\n", id, len(c.Collections[id]))
	}
}
