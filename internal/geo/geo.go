package geo

import (
	"errors"
	"math"
	"strings"
)

// base32 is the standard geohash alphabet (no a, i, l, o).
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

const earthRadiusKm = 6371.0

var (
	ErrInvalidCoordinate = errors.New("latitude must be in [-90,90] and longitude in [-180,180]")
	ErrInvalidGeohash    = errors.New("invalid geohash")
)

// Point is a decoded geohash cell center with half-widths.
type Point struct {
	Lat      float64
	Lng      float64
	LatError float64
	LngError float64
}

// Box is a geohash cell's bounding box.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Haversine returns the great-circle distance in kilometers between two
// points. Symmetric, zero for identical points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Encode returns the geohash of a coordinate at the given precision.
// Longitude is bisected on even bit indexes, latitude on odd ones, packing
// five bits per output character.
func Encode(lat, lng float64, precision int) (string, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", ErrInvalidCoordinate
	}
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}

	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0

	var sb strings.Builder
	bit := 0
	ch := 0
	even := true

	for sb.Len() < precision {
		if even {
			mid := (lngMin + lngMax) / 2
			if lng >= mid {
				ch = ch<<1 | 1
				lngMin = mid
			} else {
				ch <<= 1
				lngMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch <<= 1
				latMax = mid
			}
		}
		even = !even

		bit++
		if bit == 5 {
			sb.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}

	return sb.String(), nil
}

// Bounds returns the bounding box of a geohash cell.
func Bounds(hash string) (Box, error) {
	if hash == "" {
		return Box{}, ErrInvalidGeohash
	}

	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0
	even := true

	for _, c := range strings.ToLower(hash) {
		idx := strings.IndexRune(base32, c)
		if idx < 0 {
			return Box{}, ErrInvalidGeohash
		}

		for mask := 16; mask > 0; mask >>= 1 {
			if even {
				mid := (lngMin + lngMax) / 2
				if idx&mask != 0 {
					lngMin = mid
				} else {
					lngMax = mid
				}
			} else {
				mid := (latMin + latMax) / 2
				if idx&mask != 0 {
					latMin = mid
				} else {
					latMax = mid
				}
			}
			even = !even
		}
	}

	return Box{MinLat: latMin, MaxLat: latMax, MinLng: lngMin, MaxLng: lngMax}, nil
}

// Decode returns the center of a geohash cell with its half-widths.
func Decode(hash string) (Point, error) {
	b, err := Bounds(hash)
	if err != nil {
		return Point{}, err
	}
	return Point{
		Lat:      (b.MinLat + b.MaxLat) / 2,
		Lng:      (b.MinLng + b.MaxLng) / 2,
		LatError: (b.MaxLat - b.MinLat) / 2,
		LngError: (b.MaxLng - b.MinLng) / 2,
	}, nil
}

// Neighbors returns the eight adjacent cells keyed by compass direction
// (n, ne, e, se, s, sw, w, nw). Each neighbor is derived by shifting the
// decoded center one box-width and re-encoding at the same precision.
func Neighbors(hash string) (map[string]string, error) {
	center, err := Decode(hash)
	if err != nil {
		return nil, err
	}

	precision := len(hash)
	dirs := map[string][2]float64{
		"n":  {1, 0},
		"ne": {1, 1},
		"e":  {0, 1},
		"se": {-1, 1},
		"s":  {-1, 0},
		"sw": {-1, -1},
		"w":  {0, -1},
		"nw": {1, -1},
	}

	neighbors := make(map[string]string, len(dirs))
	for dir, d := range dirs {
		lat := center.Lat + d[0]*2*center.LatError
		lng := center.Lng + d[1]*2*center.LngError

		// Wrap longitude, clamp latitude at the poles.
		lng = math.Mod(lng+540, 360) - 180
		if lat > 90 {
			lat = 90
		}
		if lat < -90 {
			lat = -90
		}

		h, err := Encode(lat, lng, precision)
		if err != nil {
			return nil, err
		}
		neighbors[dir] = h
	}

	return neighbors, nil
}

// precisionErrors maps geohash precision to the approximate cell
// half-width in kilometers.
var precisionErrors = [...]float64{
	1: 2500,
	2: 630,
	3: 78,
	4: 20,
	5: 2.4,
	6: 0.61,
	7: 0.076,
	8: 0.019,
	9: 0.0024,
}

// PrecisionForAccuracy returns the smallest precision whose cell error is
// within the requested accuracy in kilometers, saturating at 9.
func PrecisionForAccuracy(km float64) int {
	for p := 1; p <= 9; p++ {
		if precisionErrors[p] <= km {
			return p
		}
	}
	return 9
}

// Contains reports whether child lies inside parent's cell, i.e. child
// starts with parent (case-insensitive).
func Contains(parent, child string) bool {
	return strings.HasPrefix(strings.ToLower(child), strings.ToLower(parent))
}
