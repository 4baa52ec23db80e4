package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placemap/internal/core"
)

const nominatimBody = `[
  {"place_id": 101, "lat": "48.8600", "lon": "2.3530", "name": "Far Bakery", "display_name": "Far Bakery, Paris", "category": "shop", "type": "bakery"},
  {"place_id": 102, "lat": "48.8570", "lon": "2.3525", "name": "", "display_name": "Boulangerie Près, Rue X, Paris", "category": "shop", "type": "bakery"},
  {"place_id": 103, "lat": "49.9000", "lon": "2.3525", "name": "Out of range", "display_name": "Amiens"},
  {"place_id": 104, "lat": "not-a-number", "lon": "2.35", "name": "Broken"}
]`

func newNominatimServer(t *testing.T, body string, seen *url.Values) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		if seen != nil {
			*seen = r.URL.Query()
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNominatimSearcher_Search(t *testing.T) {
	var seen url.Values
	server := newNominatimServer(t, nominatimBody, &seen)
	searcher := NewNominatimSearcher(NewClient(testClientConfig(server.URL), nil))

	center := core.NewCoordinates(2.3522, 48.8566)
	results, err := searcher.Search(context.Background(), core.SearchQuery{
		Query:        "boulangerie",
		Center:       center,
		RadiusMeters: 5000,
	})
	require.NoError(t, err)

	assert.Equal(t, "boulangerie", seen.Get("q"))
	assert.Equal(t, "jsonv2", seen.Get("format"))
	assert.Equal(t, "1", seen.Get("bounded"))
	assert.NotEmpty(t, seen.Get("viewbox"))
	assert.Equal(t, "20", seen.Get("limit"))

	require.Len(t, results, 2, "out of range and unparsable places are dropped")
	assert.Equal(t, "102", results[0].ID, "nearest first")
	assert.Equal(t, "Boulangerie Près", results[0].Name, "name falls back to the first address part")
	assert.Equal(t, "bakery", results[0].Category)
	require.NotNil(t, results[0].Distance)
	assert.Less(t, *results[0].Distance, *results[1].Distance)
	assert.Equal(t, "Far Bakery", results[1].Name)
}

func TestNominatimSearcher_CategoryFallback(t *testing.T) {
	var seen url.Values
	server := newNominatimServer(t, `[]`, &seen)
	searcher := NewNominatimSearcher(NewClient(testClientConfig(server.URL), nil))

	results, err := searcher.Search(context.Background(), core.SearchQuery{
		Center:      core.NewCoordinates(2.35, 48.85),
		Category:    "food",
		Subcategory: "bakery",
		Limit:       500,
	})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, "bakery", seen.Get("q"))
	assert.Equal(t, "50", seen.Get("limit"))
	assert.Empty(t, seen.Get("viewbox"), "no radius means no bounding box")
}

func TestNominatimSearcher_Errors(t *testing.T) {
	searcher := NewNominatimSearcher(NewClient(testClientConfig("http://127.0.0.1:1"), nil))
	_, err := searcher.Search(context.Background(), core.SearchQuery{Center: core.NewCoordinates(0, 0)})
	assert.Error(t, err, "nothing to search for")

	for name, body := range map[string]string{
		"malformed": `[{"lat":`,
		"object":    `{"error":"Unable to geocode"}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := newNominatimServer(t, body, nil)
			s := NewNominatimSearcher(NewClient(testClientConfig(server.URL), nil))
			_, err := s.Search(context.Background(), core.SearchQuery{Query: "x", Center: core.NewCoordinates(0, 0)})
			assert.Error(t, err)
		})
	}
}

func TestViewbox(t *testing.T) {
	assert.Equal(t, "1.991016,1.008983,2.008984,0.991017", viewbox(core.NewCoordinates(2, 1), 1000))
	// clamped at the antimeridian and the pole
	assert.Equal(t, "178.193378,90.000000,180.000000,89.977034", viewbox(core.NewCoordinates(179.99, 89.995), 2000))
}

func TestSearchParams(t *testing.T) {
	params, err := SearchParams(core.SearchQuery{Category: "food", Subcategory: " bakery ", Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, "bakery", params.Get("q"), "subcategory wins over category")
	assert.Equal(t, "50", params.Get("limit"), "limit is capped")
	assert.Equal(t, "jsonv2", params.Get("format"))
	assert.Empty(t, params.Get("bounded"))

	params, err = SearchParams(core.SearchQuery{Query: "pain", Center: core.NewCoordinates(2, 1), RadiusMeters: 1000})
	require.NoError(t, err)
	assert.Equal(t, "20", params.Get("limit"))
	assert.Equal(t, "1", params.Get("bounded"))
	assert.Equal(t, "1.991016,1.008983,2.008984,0.991017", params.Get("viewbox"))

	_, err = SearchParams(core.SearchQuery{Query: "   "})
	assert.Error(t, err)
}
