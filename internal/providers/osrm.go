package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"placemap/internal/core"
)

// DefaultOSRMURL is the public OSRM demo server.
const DefaultOSRMURL = "https://router.project-osrm.org"

// OSRMRouter is a core.Router backed by an OSRM-compatible /route/v1 API.
type OSRMRouter struct {
	client *Client
}

// NewOSRMRouter creates a router over client.
func NewOSRMRouter(client *Client) *OSRMRouter {
	return &OSRMRouter{client: client}
}

// Profile maps a transport mode to an OSRM profile. Unknown modes walk.
func Profile(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "cycling", "bike", "bicycle":
		return "bike"
	case "driving", "driving-traffic", "car":
		return "driving"
	default:
		return "foot"
	}
}

// Route returns the first route OSRM proposes between origin and destination.
func (r *OSRMRouter) Route(ctx context.Context, origin, destination core.Coordinates, mode string) (core.RouteData, error) {
	path := RoutePath(mode, origin, destination)
	params := url.Values{}
	params.Set("overview", "full")
	params.Set("geometries", "geojson")

	body, err := r.client.Get(ctx, path, params)
	if err != nil {
		return core.RouteData{}, err
	}
	if !gjson.ValidBytes(body) {
		return core.RouteData{}, core.NewUpstreamError("routing returned malformed JSON", nil)
	}
	if code := gjson.GetBytes(body, "code").String(); code != "Ok" {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = code
		}
		return core.RouteData{}, core.NewUpstreamError("routing failed: "+msg, nil)
	}

	route := gjson.GetBytes(body, "routes.0")
	if !route.Exists() {
		return core.RouteData{}, core.NewUpstreamError("routing returned no route", nil)
	}

	points := route.Get("geometry.coordinates").Array()
	geometry := make([]core.Coordinates, 0, len(points))
	for _, p := range points {
		pair := p.Array()
		if len(pair) < 2 {
			continue
		}
		geometry = append(geometry, core.NewCoordinates(pair[0].Float(), pair[1].Float()))
	}

	return core.RouteData{
		Geometry:        geometry,
		DistanceMeters:  route.Get("distance").Float(),
		DurationSeconds: route.Get("duration").Float(),
	}, nil
}

// RoutePath builds the /route/v1 path for a trip between two points.
func RoutePath(mode string, origin, destination core.Coordinates) string {
	return "/route/v1/" + Profile(mode) + "/" + fmtPair(origin) + ";" + fmtPair(destination)
}

func fmtPair(c core.Coordinates) string {
	return fmtCoord(c.Lng()) + "," + fmtCoord(c.Lat())
}
