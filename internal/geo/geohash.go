package geo

import (
	"strings"

	"placemap/internal/core"
)

// geohash base32 alphabet
const ghChars = "0123456789bcdefghjkmnpqrstuvwxyz"

// Cell is a geohash grid cell.
type Cell struct {
	Hash           string
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Center returns the cell center.
func (c Cell) Center() core.Coordinates {
	return core.NewCoordinates((c.MinLng+c.MaxLng)/2, (c.MinLat+c.MaxLat)/2)
}

// EncodeGeohash encodes a point into a geohash of the given precision.
func EncodeGeohash(p core.Coordinates, precision int) string {
	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0
	var sb strings.Builder
	sb.Grow(precision)
	bits, hashVal := 0, 0
	even := true

	for sb.Len() < precision {
		if even {
			mid := (minLng + maxLng) / 2
			if p.Lng() >= mid {
				hashVal = hashVal<<1 | 1
				minLng = mid
			} else {
				hashVal <<= 1
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if p.Lat() >= mid {
				hashVal = hashVal<<1 | 1
				minLat = mid
			} else {
				hashVal <<= 1
				maxLat = mid
			}
		}
		even = !even
		bits++
		if bits == 5 {
			sb.WriteByte(ghChars[hashVal])
			bits, hashVal = 0, 0
		}
	}
	return sb.String()
}

// DecodeGeohash returns the bounding cell of a geohash.
// Characters outside the alphabet stop decoding early.
func DecodeGeohash(hash string) Cell {
	c := Cell{Hash: hash, MinLat: -90, MaxLat: 90, MinLng: -180, MaxLng: 180}
	even := true
	for i := 0; i < len(hash); i++ {
		idx := strings.IndexByte(ghChars, hash[i])
		if idx < 0 {
			break
		}
		for mask := 16; mask > 0; mask >>= 1 {
			if even {
				mid := (c.MinLng + c.MaxLng) / 2
				if idx&mask != 0 {
					c.MinLng = mid
				} else {
					c.MaxLng = mid
				}
			} else {
				mid := (c.MinLat + c.MaxLat) / 2
				if idx&mask != 0 {
					c.MinLat = mid
				} else {
					c.MaxLat = mid
				}
			}
			even = !even
		}
	}
	return c
}

// CellAround returns the cell that contains p at the given precision.
func CellAround(p core.Coordinates, precision int) Cell {
	return DecodeGeohash(EncodeGeohash(p, precision))
}

// Neighbors returns the eight cells surrounding the cell that contains p.
// Cells that would cross a pole are skipped; longitude wraps around.
func Neighbors(p core.Coordinates, precision int) []Cell {
	center := CellAround(p, precision)
	height := center.MaxLat - center.MinLat
	width := center.MaxLng - center.MinLng
	mid := center.Center()

	out := make([]Cell, 0, 8)
	seen := map[string]bool{center.Hash: true}
	for _, dLat := range []float64{-1, 0, 1} {
		for _, dLng := range []float64{-1, 0, 1} {
			if dLat == 0 && dLng == 0 {
				continue
			}
			lat := mid.Lat() + dLat*height
			if lat > 90 || lat < -90 {
				continue
			}
			lng := wrapLng(mid.Lng() + dLng*width)
			cell := CellAround(core.NewCoordinates(lng, lat), precision)
			if seen[cell.Hash] {
				continue
			}
			seen[cell.Hash] = true
			out = append(out, cell)
		}
	}
	return out
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
