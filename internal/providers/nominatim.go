package providers

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"placemap/internal/core"
	"placemap/internal/geo"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	metersPerDegree    = 111_320.0
)

// NominatimSearcher is a core.PlaceSearcher backed by a Nominatim-compatible
// /search endpoint.
type NominatimSearcher struct {
	client *Client
}

// NewNominatimSearcher creates a searcher over client.
func NewNominatimSearcher(client *Client) *NominatimSearcher {
	return &NominatimSearcher{client: client}
}

// Search asks the upstream for places inside the bounding box of the search
// circle, then keeps those within RadiusMeters of the center, nearest first.
// Without a free-text query the subcategory, then the category, is searched.
func (s *NominatimSearcher) Search(ctx context.Context, q core.SearchQuery) ([]core.SearchResult, error) {
	params, err := SearchParams(q)
	if err != nil {
		return nil, err
	}

	body, err := s.client.Get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, core.NewUpstreamError("place search returned malformed JSON", nil)
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, core.NewUpstreamError("place search returned an unexpected payload", nil)
	}

	results := make([]core.SearchResult, 0, len(root.Array()))
	root.ForEach(func(_, place gjson.Result) bool {
		r, ok := parsePlace(place, q)
		if ok {
			results = append(results, r)
		}
		return true
	})

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Distance < *results[j].Distance
	})
	return results, nil
}

// SearchParams builds the /search query string for q.
func SearchParams(q core.SearchQuery) (url.Values, error) {
	term := searchTerm(q)
	if term == "" {
		return nil, core.NewInvalidRequestError("a query or category is required to search", nil)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	params := url.Values{}
	params.Set("q", term)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	if q.RadiusMeters > 0 {
		params.Set("viewbox", viewbox(q.Center, q.RadiusMeters))
		params.Set("bounded", "1")
	}
	return params, nil
}

func searchTerm(q core.SearchQuery) string {
	for _, s := range []string{q.Query, q.Subcategory, q.Category} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// viewbox renders the box around the circle as "left,top,right,bottom".
func viewbox(center core.Coordinates, radius float64) string {
	dLat := radius / metersPerDegree
	dLng := radius / (metersPerDegree * math.Max(math.Cos(center.Lat()*math.Pi/180), 0.01))
	left := math.Max(center.Lng()-dLng, -180)
	right := math.Min(center.Lng()+dLng, 180)
	top := math.Min(center.Lat()+dLat, 90)
	bottom := math.Max(center.Lat()-dLat, -90)
	return strings.Join([]string{fmtCoord(left), fmtCoord(top), fmtCoord(right), fmtCoord(bottom)}, ",")
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func parsePlace(place gjson.Result, q core.SearchQuery) (core.SearchResult, bool) {
	// Nominatim encodes coordinates as strings
	lat, err := strconv.ParseFloat(place.Get("lat").String(), 64)
	if err != nil {
		return core.SearchResult{}, false
	}
	lng, err := strconv.ParseFloat(place.Get("lon").String(), 64)
	if err != nil {
		return core.SearchResult{}, false
	}
	coords := core.NewCoordinates(lng, lat)
	if coords.Validate() != nil {
		return core.SearchResult{}, false
	}

	distance := geo.Haversine(q.Center, coords)
	if q.RadiusMeters > 0 && distance > q.RadiusMeters {
		return core.SearchResult{}, false
	}

	address := place.Get("display_name").String()
	name := place.Get("name").String()
	if name == "" {
		name, _, _ = strings.Cut(address, ",")
	}
	id := place.Get("place_id").String()
	if id == "" {
		id = place.Get("osm_type").String() + "/" + place.Get("osm_id").String()
	}
	category := place.Get("type").String()
	if category == "" {
		category = place.Get("category").String()
	}

	return core.SearchResult{
		ID:          id,
		Name:        name,
		Address:     address,
		Coordinates: coords,
		Category:    category,
		Distance:    &distance,
	}, true
}
