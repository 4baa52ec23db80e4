package core

import "context"

// SearchQuery carries everything the place-search collaborator needs.
// Filters are passed as an opaque, already-validated parameter set so that
// core does not depend on the filter store.
type SearchQuery struct {
	Query       string
	Center      Coordinates
	Category    string
	Subcategory string
	// RadiusMeters bounds the search area around Center
	RadiusMeters float64
	Limit        int
}

// PlaceSearcher finds candidate places around a center point.
// Implementations may fail; callers treat an error as a failed search.
type PlaceSearcher interface {
	Search(ctx context.Context, q SearchQuery) ([]SearchResult, error)
}

// Router computes a travel route between two points for a transport mode.
type Router interface {
	Route(ctx context.Context, origin, destination Coordinates, mode string) (RouteData, error)
}

// Geolocator resolves the caller's current position.
// Cancellation and timeouts are carried by ctx.
type Geolocator interface {
	RequestLocation(ctx context.Context) (LocationFix, error)
}

// Navigator receives navigation requests produced by the URL synchronizer.
type Navigator interface {
	Navigate(url string)
}
