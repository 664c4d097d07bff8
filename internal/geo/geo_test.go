package geo

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestHaversine_IdenticalPoints(t *testing.T) {
	if d := Haversine(0.3476, 32.5825, 0.3476, 32.5825); d != 0 {
		t.Errorf("distance for identical points = %v, want 0", d)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	d1 := Haversine(0.3476, 32.5825, 0.0512, 32.4637)
	d2 := Haversine(0.0512, 32.4637, 0.3476, 32.5825)
	if d1 != d2 {
		t.Errorf("distance not symmetric: %v vs %v", d1, d2)
	}
}

func TestHaversine_KampalaToEntebbe(t *testing.T) {
	// Kampala city center to Entebbe, reference distance ~35.5 km.
	d := Haversine(0.3476, 32.5825, 0.0512, 32.4637)
	const want = 35.5
	if math.Abs(d-want)/want > 0.005 {
		t.Errorf("Kampala-Entebbe distance = %v, want %v within 0.5%%", d, want)
	}
}

func TestEncode_InvalidCoordinate(t *testing.T) {
	cases := [][2]float64{
		{91, 0},
		{-91, 0},
		{0, 181},
		{0, -181},
	}
	for _, c := range cases {
		if _, err := Encode(c[0], c[1], 6); !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("Encode(%v, %v) error = %v, want ErrInvalidCoordinate", c[0], c[1], err)
		}
	}
}

func TestEncode_KnownValue(t *testing.T) {
	// Kampala falls in the s8 cell.
	h, err := Encode(0.3476, 32.5825, 6)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if len(h) != 6 {
		t.Fatalf("Encode length = %d, want 6", len(h))
	}
	if !strings.HasPrefix(h, "s8") {
		t.Errorf("Encode(Kampala) = %q, want s8 prefix", h)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	points := [][2]float64{
		{0.3476, 32.5825},
		{-33.8688, 151.2093},
		{51.5074, -0.1278},
		{0, 0},
		{-89.9, 179.9},
	}
	for _, pt := range points {
		for precision := 1; precision <= 9; precision++ {
			h, err := Encode(pt[0], pt[1], precision)
			if err != nil {
				t.Fatalf("Encode(%v, %v, %d) returned error: %v", pt[0], pt[1], precision, err)
			}
			decoded, err := Decode(h)
			if err != nil {
				t.Fatalf("Decode(%q) returned error: %v", h, err)
			}
			if math.Abs(decoded.Lat-pt[0]) > decoded.LatError {
				t.Errorf("Decode(%q).Lat = %v, want within %v of %v", h, decoded.Lat, decoded.LatError, pt[0])
			}
			if math.Abs(decoded.Lng-pt[1]) > decoded.LngError {
				t.Errorf("Decode(%q).Lng = %v, want within %v of %v", h, decoded.Lng, decoded.LngError, pt[1])
			}
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, h := range []string{"", "abc!", "ailo"} {
		if _, err := Decode(h); !errors.Is(err, ErrInvalidGeohash) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidGeohash", h, err)
		}
	}
}

func TestBounds_ContainCenter(t *testing.T) {
	h, err := Encode(0.3476, 32.5825, 7)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	b, err := Bounds(h)
	if err != nil {
		t.Fatalf("Bounds returned error: %v", err)
	}
	if 0.3476 < b.MinLat || 0.3476 > b.MaxLat {
		t.Errorf("latitude 0.3476 outside bounds [%v, %v]", b.MinLat, b.MaxLat)
	}
	if 32.5825 < b.MinLng || 32.5825 > b.MaxLng {
		t.Errorf("longitude 32.5825 outside bounds [%v, %v]", b.MinLng, b.MaxLng)
	}
}

func TestNeighbors(t *testing.T) {
	h, err := Encode(0.3476, 32.5825, 6)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	neighbors, err := Neighbors(h)
	if err != nil {
		t.Fatalf("Neighbors returned error: %v", err)
	}
	if len(neighbors) != 8 {
		t.Fatalf("Neighbors returned %d cells, want 8", len(neighbors))
	}
	seen := map[string]bool{h: true}
	for dir, n := range neighbors {
		if len(n) != len(h) {
			t.Errorf("neighbor %s has precision %d, want %d", dir, len(n), len(h))
		}
		if seen[n] {
			t.Errorf("neighbor %s = %q duplicates another cell", dir, n)
		}
		seen[n] = true
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		parent, child string
		want          bool
	}{
		{"s0x", "s0x4fj", true},
		{"S0X", "s0x4fj", true},
		{"s0x", "S0X4FJ", true},
		{"s0x4fj", "s0x", false},
		{"s0y", "s0x4fj", false},
		{"s0x", "s0x", true},
	}
	for _, tt := range tests {
		if got := Contains(tt.parent, tt.child); got != tt.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}

func TestPrecisionForAccuracy(t *testing.T) {
	tests := []struct {
		km   float64
		want int
	}{
		{5000, 1},
		{700, 2},
		{100, 3},
		{21, 4},
		{3, 5},
		{1, 6},
		{0.1, 7},
		{0.02, 8},
		{0.003, 9},
		{0.0001, 9},
	}
	for _, tt := range tests {
		if got := PrecisionForAccuracy(tt.km); got != tt.want {
			t.Errorf("PrecisionForAccuracy(%v) = %d, want %d", tt.km, got, tt.want)
		}
	}
}

func TestPrecisionForAccuracy_Monotonic(t *testing.T) {
	prev := PrecisionForAccuracy(10000)
	for km := 5000.0; km > 0.0001; km /= 2 {
		p := PrecisionForAccuracy(km)
		if p < prev {
			t.Fatalf("precision decreased from %d to %d at accuracy %v", prev, p, km)
		}
		prev = p
	}
}
