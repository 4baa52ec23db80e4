package routecache

import (
	"testing"
	"time"

	"placemap/internal/core"
	"placemap/internal/ttlcache"
)

func TestTTLFor(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     time.Duration
	}{
		{"short route", 4000, time.Hour},
		{"medium route", 15000, 30 * time.Minute},
		{"long route", 30000, 10 * time.Minute},
		{"just below 5km", 4999.9, time.Hour},
		{"exactly 5km", 5000, 30 * time.Minute},
		{"just below 20km", 19999.9, 30 * time.Minute},
		{"exactly 20km", 20000, 10 * time.Minute},
		{"zero distance defaults to longest life", 0, time.Hour},
		{"negative distance defaults to longest life", -12, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TTLFor(tt.distance); got != tt.want {
				t.Errorf("TTLFor(%v) = %v, want %v", tt.distance, got, tt.want)
			}
		})
	}
	if TTLFor(4000).Milliseconds() != 3600000 {
		t.Errorf("short tier should be 3600000ms")
	}
	if TTLFor(15000).Milliseconds() != 1800000 {
		t.Errorf("medium tier should be 1800000ms")
	}
	if TTLFor(30000).Milliseconds() != 600000 {
		t.Errorf("long tier should be 600000ms")
	}
}

func TestKeyRounding(t *testing.T) {
	dest := core.NewCoordinates(2.2945, 48.8584)

	a := Key(core.NewCoordinates(2.3522, 48.85660), dest, "walking")
	b := Key(core.NewCoordinates(2.3522, 48.85664), dest, "walking")
	if a != b {
		t.Errorf("origins within rounding precision should share a key: %q vs %q", a, b)
	}

	c := Key(core.NewCoordinates(2.3522, 48.85760), dest, "walking")
	if a == c {
		t.Errorf("origins 0.001 apart should not share a key: %q", a)
	}

	if Key(core.NewCoordinates(2.3522, 48.8566), dest, "driving") == a {
		t.Error("different modes must not share a key")
	}
}

func TestCache_HitAndMiss(t *testing.T) {
	c := New()
	dest := core.NewCoordinates(2.2945, 48.8584)
	route := core.RouteData{
		Geometry:        []core.Coordinates{{2.3522, 48.8566}, {2.2945, 48.8584}},
		DurationSeconds: 600,
		DistanceMeters:  4200,
	}

	c.Set(core.NewCoordinates(2.3522, 48.85660), dest, "walking", route)

	got, ok := c.Get(core.NewCoordinates(2.3522, 48.85664), dest, "walking")
	if !ok {
		t.Fatal("expected hit for origin within rounding precision")
	}
	if got.DistanceMeters != 4200 {
		t.Errorf("DistanceMeters = %v, want 4200", got.DistanceMeters)
	}

	if _, ok := c.Get(core.NewCoordinates(2.3522, 48.85760), dest, "walking"); ok {
		t.Fatal("expected miss for origin 0.001 degrees away")
	}
}

func TestCache_DistanceScaledExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	c := New(ttlcache.WithClock(func() time.Time { return now }))
	origin := core.NewCoordinates(2.35, 48.85)
	near := core.NewCoordinates(2.36, 48.86)
	far := core.NewCoordinates(2.9, 49.2)

	c.Set(origin, near, "driving", core.RouteData{DistanceMeters: 1200, DurationSeconds: 180})
	c.Set(origin, far, "driving", core.RouteData{DistanceMeters: 52000, DurationSeconds: 2700})

	now = now.Add(15 * time.Minute)
	if _, ok := c.Get(origin, far, "driving"); ok {
		t.Error("long route should expire after 10 minutes")
	}
	if _, ok := c.Get(origin, near, "driving"); !ok {
		t.Error("short route should still be cached after 15 minutes")
	}

	now = now.Add(time.Hour)
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired removed %d, want 1", removed)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCache_MalformedEntryIsMiss(t *testing.T) {
	c := New()
	a, b := core.NewCoordinates(1, 1), core.NewCoordinates(2, 2)
	c.Set(a, b, "cycling", core.RouteData{})

	if _, ok := c.Get(a, b, "cycling"); ok {
		t.Fatal("empty route should be treated as a miss")
	}
	if c.Len() != 0 {
		t.Errorf("malformed entry should be dropped, Len=%d", c.Len())
	}
}

func TestCache_DegenerateDistanceIsKept(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	c := New(ttlcache.WithClock(func() time.Time { return now }))
	a, b := core.NewCoordinates(2.3522, 48.8566), core.NewCoordinates(2.2945, 48.8584)
	route := core.RouteData{Geometry: []core.Coordinates{a, b}, DurationSeconds: 120, DistanceMeters: -1}

	c.Set(a, b, "walking", route)
	got, ok := c.Get(a, b, "walking")
	if !ok {
		t.Fatal("negative distance route should be served from cache")
	}
	if got.DistanceMeters != -1 {
		t.Errorf("DistanceMeters = %v, want -1", got.DistanceMeters)
	}

	now = now.Add(59 * time.Minute)
	if _, ok := c.Get(a, b, "walking"); !ok {
		t.Error("degenerate distance should live for an hour")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(a, b, "walking"); ok {
		t.Error("degenerate distance should expire after an hour")
	}
}
