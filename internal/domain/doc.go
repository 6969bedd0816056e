// Package domain models the inputs and outputs of the Malaria Risk Index.
//
// # Regions
//
// A [Region] is a first-level administrative area (a state or province) taken
// from the FAO GAUL simplified 500 m boundaries, level 2, and filtered by the
// ADM1_NAME attribute. All level-2 districts that share the ADM1 name are
// merged into one multipolygon. Regions are resolved by name and never change
// once resolved, which is what makes them safe to cache.
//
// # Dates
//
// Every request covers a [DateRange] that ends now and starts six calendar
// months earlier. "Now" comes from a package-level clock so tests can freeze it
// via [SetClock].
//
// # Values
//
// Raster values are normalized to [0, 1] before they are composed:
//
//	Rainfall:    CHIRPS pentad sum, min-max normalized over the region
//	Population:  GPWv4.11 density, min-max normalized over the region
//	Land cover:  ESA WorldCover class remapped to a risk weight
//	Temperature: Landsat LST mean, min-max normalized over the region
//	Vegetation:  Sentinel-2 NDVI, raw in [-1, 1] unless NDVI_NORMALIZE is set
//
// A masked pixel is "no data", never zero. [PointValues] carries masked
// samples as null JSON fields.
//
// # Errors
//
// [ErrUpstreamAuth] is fatal at start-up. [*EvaluationFault] means the engine
// rejected a terminal evaluation and is surfaced to the caller as a bad
// gateway. [ErrRegionNotFound] maps to 404.
package domain
