package regions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
)

// The boundaries table holds the GAUL level-2 features with their ADM1 name.
const unionQuery = `
	SELECT ST_AsGeoJSON(ST_Multi(ST_Union(geom)))
	FROM boundaries
	WHERE adm1_name = $1`

// PostGISResolver resolves regions by dissolving the matching boundary rows
// in PostGIS.
type PostGISResolver struct {
	db *sqlx.DB
}

// NewPostGISResolver wraps an open connection.
func NewPostGISResolver(db *sqlx.DB) *PostGISResolver {
	return &PostGISResolver{db: db}
}

// OpenPostGIS connects to the database at dsn.
func OpenPostGIS(ctx context.Context, dsn string) (*PostGISResolver, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgis: %w", err)
	}
	return NewPostGISResolver(db), nil
}

// Resolve implements domain.RegionResolver.
func (r *PostGISResolver) Resolve(ctx context.Context, name string) (domain.Region, error) {
	var doc sql.NullString
	if err := r.db.GetContext(ctx, &doc, unionQuery, name); err != nil {
		return domain.Region{}, fmt.Errorf("query boundary %q: %w", name, err)
	}
	// ST_Union over no rows is NULL.
	if !doc.Valid {
		return domain.Region{}, fmt.Errorf("%w: %q", domain.ErrRegionNotFound, name)
	}

	g, err := graph.UnmarshalPolygonal([]byte(doc.String))
	if err != nil {
		return domain.Region{}, fmt.Errorf("boundary %q: %w", name, err)
	}
	return domain.Region{Name: name, Geometry: g}, nil
}

// Ping reports whether the database is reachable.
func (r *PostGISResolver) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the connection pool.
func (r *PostGISResolver) Close() error {
	return r.db.Close()
}
