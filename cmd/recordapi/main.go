// Package main provides a CLI tool to record real upstream responses for
// provider fixtures.
// Usage:
//
//	go run ./cmd/recordapi \
//	  -provider=nominatim \
//	  -query=boulangerie -lat=48.8566 -lng=2.3522 \
//	  -output=internal/providers/testdata/nominatim_search.json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"placemap/internal/core"
	"placemap/internal/providers"
)

// Provider configurations
var providerConfigs = map[string]struct {
	baseURL string
	envURL  string
}{
	"nominatim": {
		baseURL: providers.DefaultNominatimURL,
		envURL:  "SEARCH_PROVIDER_URL",
	},
	"osrm": {
		baseURL: providers.DefaultOSRMURL,
		envURL:  "ROUTING_PROVIDER_URL",
	},
}

func main() {
	provider := flag.String("provider", "nominatim", "Provider to record (nominatim, osrm)")
	output := flag.String("output", "", "Output file path (required)")
	query := flag.String("query", "cafe", "Search text (nominatim)")
	lat := flag.Float64("lat", 48.8566, "Origin or search center latitude")
	lng := flag.Float64("lng", 2.3522, "Origin or search center longitude")
	toLat := flag.Float64("to-lat", 48.8606, "Destination latitude (osrm)")
	toLng := flag.Float64("to-lng", 2.3376, "Destination longitude (osrm)")
	mode := flag.String("mode", "walking", "Transport mode (osrm)")
	radius := flag.Float64("radius", 2000, "Search radius in meters (nominatim)")
	flag.Parse()

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output flag is required")
		flag.Usage()
		os.Exit(1)
	}

	pConfig, ok := providerConfigs[*provider]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown provider %q\n", *provider)
		os.Exit(1)
	}
	baseURL := pConfig.baseURL
	if v := os.Getenv(pConfig.envURL); v != "" {
		baseURL = v
	}

	origin := core.NewCoordinates(*lng, *lat)
	if err := origin.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var (
		path   string
		params url.Values
	)
	switch *provider {
	case "nominatim":
		path = "/search"
		var err error
		params, err = providers.SearchParams(core.SearchQuery{
			Query:        *query,
			Center:       origin,
			RadiusMeters: *radius,
			Limit:        10,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "osrm":
		dest := core.NewCoordinates(*toLng, *toLat)
		path = providers.RoutePath(*mode, origin, dest)
		params = url.Values{"overview": {"full"}, "geometries": {"geojson"}}
	}

	cfg := providers.DefaultClientConfig(*provider, baseURL)
	cfg.MaxRetries = 0
	client := providers.NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("Sending request to %s%s...\n", baseURL, path)
	body, err := client.Get(ctx, path, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}

	// Pretty print JSON
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err != nil {
		fmt.Fprintf(os.Stderr, "Error: response is not JSON: %v\n", err)
		os.Exit(1)
	}
	if err := writeOutput(*output, prettyJSON.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Response saved to %s\n", *output)

	// Print response summary
	parsed := gjson.ParseBytes(body)
	switch *provider {
	case "nominatim":
		fmt.Printf("Places: %d\n", len(parsed.Array()))
	case "osrm":
		fmt.Printf("Code: %s, distance: %.0fm, duration: %.0fs\n",
			parsed.Get("code").String(),
			parsed.Get("routes.0.distance").Float(),
			parsed.Get("routes.0.duration").Float())
	}
}

// writeOutput writes data to the output file, creating directories as needed.
func writeOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
