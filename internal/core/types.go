package core

import (
	"fmt"
	"math"
)

// Coordinates is a [lng, lat] pair in decimal degrees, the order GeoJSON uses.
type Coordinates [2]float64

// NewCoordinates builds a Coordinates value from longitude and latitude.
func NewCoordinates(lng, lat float64) Coordinates {
	return Coordinates{lng, lat}
}

// Lng returns the longitude.
func (c Coordinates) Lng() float64 { return c[0] }

// Lat returns the latitude.
func (c Coordinates) Lat() float64 { return c[1] }

// Validate reports whether the pair is a finite point on the globe.
func (c Coordinates) Validate() error {
	lng, lat := c[0], c[1]
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("coordinates must be finite numbers")
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lng)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	return nil
}

// SearchResult is a single place returned by the place-search collaborator.
// Results are treated as immutable once stored.
type SearchResult struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Address     string      `json:"address,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	Category    string      `json:"category,omitempty"`
	// Distance from the search center in meters, when known
	Distance *float64 `json:"distance,omitempty"`
	// Duration of travel in seconds, when known
	Duration *float64 `json:"duration,omitempty"`
}

// CloneResults returns a copy of results that shares no pointers with the input.
func CloneResults(results []SearchResult) []SearchResult {
	if results == nil {
		return nil
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = r
		if r.Distance != nil {
			d := *r.Distance
			out[i].Distance = &d
		}
		if r.Duration != nil {
			d := *r.Duration
			out[i].Duration = &d
		}
	}
	return out
}

// RouteData is a computed travel route between two points.
type RouteData struct {
	// Geometry is the route polyline as a list of [lng, lat] points
	Geometry        []Coordinates `json:"geometry"`
	DurationSeconds float64       `json:"duration_seconds"`
	DistanceMeters  float64       `json:"distance_meters"`
}

// Valid reports whether the route is structurally usable. Non-finite values
// and a route with neither geometry nor duration are corrupt. A zero or
// negative distance is kept: it is bad upstream data, not a broken entry.
func (r RouteData) Valid() bool {
	for _, v := range []float64{r.DistanceMeters, r.DurationSeconds} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return len(r.Geometry) > 0 || r.DurationSeconds != 0
}

// LocationFix is the outcome of a geolocation request.
type LocationFix struct {
	Coordinates Coordinates `json:"coordinates"`
	// AccuracySource names where the fix came from (gps, network, manual, ip)
	AccuracySource string `json:"accuracy_source"`
	// Quality is a coarse rating of the fix (high, medium, low)
	Quality string `json:"quality"`
}
