// Package geojson builds the FeatureCollection payloads handed to map clients.
package geojson

import (
	"placemap/internal/core"
	"placemap/internal/routing"
)

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON Feature.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is a Point or LineString geometry.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// ResultsCollection renders search results as Point features. Features keep
// the order of results; a nil or empty slice yields an empty collection.
func ResultsCollection(results []core.SearchResult) FeatureCollection {
	features := make([]Feature, 0, len(results))
	for i, r := range results {
		props := map[string]any{
			"id":    r.ID,
			"name":  r.Name,
			"index": i,
		}
		if r.Address != "" {
			props["address"] = r.Address
		}
		if r.Category != "" {
			props["category"] = r.Category
		}
		if r.Distance != nil {
			props["distance"] = *r.Distance
		}
		if r.Duration != nil {
			props["duration"] = *r.Duration
		}
		features = append(features, Feature{
			Type:       "Feature",
			ID:         r.ID,
			Geometry:   point(r.Coordinates),
			Properties: props,
		})
	}
	return collection(features)
}

// RoutesCollection renders planned routes as LineString features.
func RoutesCollection(routes []routing.PlannedRoute) FeatureCollection {
	features := make([]Feature, 0, len(routes))
	for i, r := range routes {
		line := make([][2]float64, len(r.Route.Geometry))
		for j, c := range r.Route.Geometry {
			line[j] = [2]float64(c)
		}
		features = append(features, Feature{
			Type:     "Feature",
			ID:       "route-" + r.Destination.ID,
			Geometry: Geometry{Type: "LineString", Coordinates: line},
			Properties: map[string]any{
				"destination_id":   r.Destination.ID,
				"destination_name": r.Destination.Name,
				"mode":             r.Mode,
				"distance":         r.Route.DistanceMeters,
				"duration":         r.Route.DurationSeconds,
				"cached":           r.Cached,
				"index":            i,
			},
		})
	}
	return collection(features)
}

func point(c core.Coordinates) Geometry {
	return Geometry{Type: "Point", Coordinates: [2]float64(c)}
}

func collection(features []Feature) FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}
