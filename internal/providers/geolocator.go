package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"

	"placemap/internal/core"
)

// DefaultLocateTimeout bounds a geolocation request when the caller gives none.
const DefaultLocateTimeout = 10 * time.Second

// Accuracy sources reported in core.LocationFix.
const (
	SourceGPS     = "gps"
	SourceNetwork = "network"
	SourceManual  = "manual"
	SourceIP      = "ip"
)

// ErrLocationUnavailable is returned when no position can be resolved.
var ErrLocationUnavailable = errors.New("location unavailable")

// StaticGeolocator answers with a position the client already reported.
type StaticGeolocator struct {
	Fix core.LocationFix
}

// NewStaticGeolocator builds a geolocator for a client-reported position.
// An empty source is treated as manual entry.
func NewStaticGeolocator(c core.Coordinates, source string) StaticGeolocator {
	if source == "" {
		source = SourceManual
	}
	return StaticGeolocator{Fix: core.LocationFix{
		Coordinates:    c,
		AccuracySource: source,
		Quality:        QualityFor(source),
	}}
}

// RequestLocation implements core.Geolocator.
func (g StaticGeolocator) RequestLocation(ctx context.Context) (core.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return core.LocationFix{}, err
	}
	if err := g.Fix.Coordinates.Validate(); err != nil {
		return core.LocationFix{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return g.Fix, nil
}

// QualityFor rates how far a fix from source can be trusted.
func QualityFor(source string) string {
	switch source {
	case SourceGPS, SourceManual:
		return "high"
	case SourceNetwork:
		return "medium"
	default:
		return "low"
	}
}

// GeoIP resolves client addresses against a MaxMind City database.
type GeoIP struct {
	reader *geoip2.Reader
}

// OpenGeoIP opens the database at path.
func OpenGeoIP(path string) (*GeoIP, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &GeoIP{reader: reader}, nil
}

// Locate looks up ip. Private and unknown addresses are unavailable.
func (g *GeoIP) Locate(ip net.IP) (core.LocationFix, error) {
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return core.LocationFix{}, ErrLocationUnavailable
	}
	city, err := g.reader.City(ip)
	if err != nil {
		return core.LocationFix{}, fmt.Errorf("geoip lookup failed: %w", err)
	}
	c := core.NewCoordinates(city.Location.Longitude, city.Location.Latitude)
	if (c == core.Coordinates{}) || c.Validate() != nil {
		return core.LocationFix{}, ErrLocationUnavailable
	}
	return core.LocationFix{Coordinates: c, AccuracySource: SourceIP, Quality: QualityFor(SourceIP)}, nil
}

// ForIP binds a lookup of ip to the core.Geolocator interface.
func (g *GeoIP) ForIP(ip net.IP) core.Geolocator {
	return ipGeolocator{db: g, ip: ip}
}

// Close releases the database.
func (g *GeoIP) Close() error {
	return g.reader.Close()
}

type ipGeolocator struct {
	db *GeoIP
	ip net.IP
}

func (l ipGeolocator) RequestLocation(ctx context.Context) (core.LocationFix, error) {
	if err := ctx.Err(); err != nil {
		return core.LocationFix{}, err
	}
	return l.db.Locate(l.ip)
}

// RequestLocation asks g for a fix, giving up after timeout or when ctx is
// cancelled. A non-positive timeout uses DefaultLocateTimeout.
func RequestLocation(ctx context.Context, g core.Geolocator, timeout time.Duration) (core.LocationFix, error) {
	if timeout <= 0 {
		timeout = DefaultLocateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		fix core.LocationFix
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		fix, err := g.RequestLocation(ctx)
		done <- outcome{fix, err}
	}()

	select {
	case o := <-done:
		return o.fix, o.err
	case <-ctx.Done():
		return core.LocationFix{}, ctx.Err()
	}
}
