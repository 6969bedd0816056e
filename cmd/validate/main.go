// Command validate runs the malaria risk index end to end on a local engine
// catalog and checks the results: every dataset is present, each source layer
// stays in its value range, the composite spans [0, 1], and point samples
// agree with the rendered maps.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -catalog data/fixtures/nairobi.json.zst \
//	  -shapefile data/gaul_level2.shp -region Nairobi
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/ctessum/geom"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/malaria-risk-index/internal/adapter/regions"
	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/engine/local"
	"github.com/couchcryptid/malaria-risk-index/internal/fixture"
	"github.com/couchcryptid/malaria-risk-index/internal/index"
	"github.com/couchcryptid/malaria-risk-index/internal/lst"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	catalog       string
	shapefile     string
	nameField     string
	region        string
	sensor        lst.Sensor
	useNDVI       bool
	normalizeNDVI bool
	asOf          time.Time
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	// ── Load catalog and region ──
	fmt.Fprintln(stdout, "=== Malaria Risk Index Validation ===")
	fmt.Fprintln(stdout)

	catalog, err := local.OpenCatalog(opts.catalog)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	eng, err := catalog.Engine(logger)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: load catalog: %v\n", err)
		return 1
	}
	region, err := resolveRegion(opts, catalog.Grid, logger)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	if opts.asOf.IsZero() {
		opts.asOf = latestAcquisition(catalog).Add(24 * time.Hour)
	}
	domain.SetClock(clockwork.NewFakeClockAt(opts.asOf))
	defer domain.SetClock(nil)
	dr := domain.NewDateRange()

	fmt.Fprintf(stdout, "Region %q, %s to %s, sensor %s\n",
		region.Name, dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly), opts.sensor)

	providers := index.DefaultProviders(lst.Options{Sensor: opts.sensor, UseNDVI: opts.useNDVI}, opts.normalizeNDVI)
	l := providers.Build(dr, region)
	composite := index.Composite(l, index.DefaultOptions())

	// ── Run validation phases ──
	ctx := context.Background()
	phases := []*phase{
		validateCatalog(catalog, opts.sensor),
		validateLayers(ctx, eng, l, opts.normalizeNDVI),
		validateComposite(ctx, eng, composite),
		validatePointQuery(ctx, eng, l, composite),
	}

	// ── Report results ──
	fmt.Fprintln(stdout)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(stdout, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(stdout, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(stdout, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(stdout, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(stdout, "\nValidation FAILED.")
	return 1
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	catalog := fs.String("catalog", "", "local engine catalog (.json or .json.zst)")
	shapefile := fs.String("shapefile", "", "boundary shapefile; the catalog extent is used when empty")
	nameField := fs.String("name-field", "ADM1_NAME", "shapefile field holding region names")
	region := fs.String("region", "", "region name in the shapefile")
	sensor := fs.String("sensor", "L8", "Landsat sensor (L4, L5, L7, L8)")
	useNDVI := fs.Bool("use-ndvi", true, "derive emissivity from NDVI")
	normalizeNDVI := fs.Bool("normalize-ndvi", false, "unit-scale the vegetation layer")
	asOf := fs.String("as-of", "", "date the lookback window ends, YYYY-MM-DD (default: day after newest acquisition)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *catalog == "" {
		fs.Usage()
		return options{}, errors.New("missing required flag: -catalog")
	}
	if (*shapefile == "") != (*region == "") {
		return options{}, errors.New("-shapefile and -region go together")
	}

	opts := options{
		catalog:       *catalog,
		shapefile:     *shapefile,
		nameField:     *nameField,
		region:        *region,
		useNDVI:       *useNDVI,
		normalizeNDVI: *normalizeNDVI,
	}
	var err error
	if opts.sensor, err = lst.ParseSensor(*sensor); err != nil {
		return options{}, err
	}
	if *asOf != "" {
		if opts.asOf, err = time.Parse(time.DateOnly, *asOf); err != nil {
			return options{}, fmt.Errorf("invalid -as-of: %w", err)
		}
	}
	return opts, nil
}

func resolveRegion(opts options, grid local.Grid, logger *slog.Logger) (domain.Region, error) {
	if opts.shapefile == "" {
		b := grid.Bounds()
		return domain.Region{Name: "catalog extent", Geometry: geom.Polygon{{
			b.Min, {X: b.Max.X, Y: b.Min.Y}, b.Max, {X: b.Min.X, Y: b.Max.Y}, b.Min,
		}}}, nil
	}
	resolver, err := regions.LoadShapefile(opts.shapefile, opts.nameField, logger)
	if err != nil {
		return domain.Region{}, err
	}
	return resolver.Resolve(context.Background(), opts.region)
}

// latestAcquisition is the newest time stamp of any catalog image.
func latestAcquisition(c *local.Catalog) time.Time {
	var latest float64
	for _, docs := range c.Collections {
		for _, doc := range docs {
			latest = math.Max(latest, doc.Properties[local.TimeStart])
		}
	}
	return time.UnixMilli(int64(latest)).UTC()
}

// ── Phase 1: Catalog datasets ──

func validateCatalog(c *local.Catalog, sensor lst.Sensor) *phase {
	p := &phase{name: "Catalog datasets"}
	for _, id := range fixture.DatasetIDs(sensor) {
		_, image := c.Images[id]
		if !image && len(c.Collections[id]) == 0 {
			p.errorf("dataset %s: missing", id)
		}
	}
	return p
}

// ── Phase 2: Source layer ranges ──

func validateLayers(ctx context.Context, eng *local.Engine, l index.Layers, normalizeNDVI bool) *phase {
	p := &phase{name: "Source layer ranges"}
	for _, layer := range l.All() {
		b, err := evalBand(ctx, eng, layer)
		if err != nil {
			p.errorf("%s: %v", layer.Name, err)
			continue
		}
		floor := 0.0
		if layer.Name == "ndvi" && !normalizeNDVI {
			floor = -1
		}
		lo, hi, n := validRange(b)
		switch {
		case n == 0:
			p.errorf("%s: no valid pixels", layer.Name)
		case lo < floor || hi > 1:
			p.errorf("%s: values span [%.4f, %.4f], want within [%v, 1]", layer.Name, lo, hi, floor)
		}
	}
	return p
}

// ── Phase 3: Composite index ──

func validateComposite(ctx context.Context, eng *local.Engine, composite domain.Layer) *phase {
	p := &phase{name: "Composite index"}
	b, err := evalBand(ctx, eng, composite)
	if err != nil {
		p.errorf("evaluate: %v", err)
		return p
	}
	if b.Name != index.Band {
		p.errorf("band name: got %q, want %q", b.Name, index.Band)
	}
	lo, hi, n := validRange(b)
	if n == 0 {
		p.errorf("no valid pixels")
		return p
	}
	if math.Abs(lo) > 1e-9 || math.Abs(hi-1) > 1e-9 {
		p.errorf("values span [%.6f, %.6f], want [0, 1]", lo, hi)
	}

	id, err := index.MapToken(ctx, eng, composite)
	switch {
	case err != nil:
		p.errorf("map: %v", err)
	case id == "":
		p.errorf("map: empty map id")
	}
	return p
}

// ── Phase 4: Point query vs rendered maps ──

func validatePointQuery(ctx context.Context, eng *local.Engine, l index.Layers, composite domain.Layer) *phase {
	p := &phase{name: "Point query vs rendered maps"}
	at, err := l.Region.Centroid()
	if err != nil {
		p.errorf("centroid: %v", err)
		return p
	}
	pixel := eng.Grid().Index(geom.Point{X: at.Lng, Y: at.Lat})
	if pixel < 0 {
		p.errorf("centroid (%.5f, %.5f) is off the catalog grid", at.Lng, at.Lat)
		return p
	}

	got, err := index.PointQuery(ctx, eng, l, composite, at)
	if err != nil {
		p.errorf("point query: %v", err)
		return p
	}

	checks := []struct {
		layer  domain.Layer
		sample *float64
	}{
		{l.SurfaceTemperature, got.LST},
		{l.Rainfall, got.Rainfall},
		{l.Vegetation, got.NDVI},
		{l.Population, got.Population},
		{l.LandCover, got.CanopyCover},
		{composite, got.MalariaIndex},
	}
	for _, c := range checks {
		id, err := index.MapToken(ctx, eng, c.layer)
		if err != nil {
			p.errorf("%v", err)
			continue
		}
		rendered, ok := eng.Map(id)
		if !ok || len(rendered.Image.Bands) == 0 {
			p.errorf("%s: map %s not registered", c.layer.Name, id)
			continue
		}
		b := rendered.Image.Bands[0]
		switch {
		case !b.Valid[pixel] && c.sample != nil:
			p.errorf("%s: sampled %.6f where the map is masked", c.layer.Name, *c.sample)
		case b.Valid[pixel] && c.sample == nil:
			p.errorf("%s: sample is null where the map has %.6f", c.layer.Name, b.Data[pixel])
		case c.sample != nil && math.Abs(*c.sample-b.Data[pixel]) > 1e-9:
			p.errorf("%s: sampled %.6f, map has %.6f", c.layer.Name, *c.sample, b.Data[pixel])
		}
	}
	return p
}

func evalBand(ctx context.Context, eng *local.Engine, l domain.Layer) (local.Band, error) {
	v, err := eng.Evaluate(ctx, l.Band)
	if err != nil {
		return local.Band{}, err
	}
	r, ok := v.(*local.Raster)
	if !ok || len(r.Bands) != 1 {
		return local.Band{}, fmt.Errorf("expected a single-band image, got %T", v)
	}
	return r.Bands[0], nil
}

func validRange(b local.Band) (lo, hi float64, n int) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for i, ok := range b.Valid {
		if ok {
			lo, hi = math.Min(lo, b.Data[i]), math.Max(hi, b.Data[i])
			n++
		}
	}
	return lo, hi, n
}
