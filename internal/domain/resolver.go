package domain

import "context"

// RegionResolver looks up administrative boundaries by name.
type RegionResolver interface {
	// Resolve returns the region whose ADM1 name matches exactly, or
	// ErrRegionNotFound.
	Resolve(ctx context.Context, name string) (Region, error)
}
