// Package geo holds coordinate helpers shared by the caches: fixed-precision
// rounding for cache keys, great-circle distance and geohash grid cells.
package geo

import (
	"math"
	"strconv"

	"placemap/internal/core"
)

// KeyPrecision is the number of decimal places kept in cache keys (about 11m).
const KeyPrecision = 4

const earthRadiusMeters = 6371000

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// FormatKey formats v rounded to KeyPrecision with a fixed number of digits.
// Negative zero is normalized so -0.00001 and 0.00001 share a key.
func FormatKey(v float64) string {
	r := Round(v, KeyPrecision)
	if r == 0 {
		r = 0
	}
	return strconv.FormatFloat(r, 'f', KeyPrecision, 64)
}

// PointKey formats a coordinate pair as "lng,lat" with KeyPrecision digits.
func PointKey(c core.Coordinates) string {
	return FormatKey(c.Lng()) + "," + FormatKey(c.Lat())
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(a, b core.Coordinates) float64 {
	φ1 := a.Lat() * math.Pi / 180
	φ2 := b.Lat() * math.Pi / 180
	Δφ := (b.Lat() - a.Lat()) * math.Pi / 180
	Δλ := (b.Lng() - a.Lng()) * math.Pi / 180
	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// MetersPerUnit converts a distance unit name to meters. Unknown units are kilometers.
func MetersPerUnit(unit string) float64 {
	if unit == "mi" {
		return 1609.344
	}
	return 1000
}
