package geo

import (
	"math"
	"testing"

	"github.com/mmcloughlin/geohash"
)

// haversineMeters returns the great-circle distance between two points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeter * math.Asin(math.Sqrt(a))
}

func TestInCellOrNeighbor_SelfCell(t *testing.T) {
	lat, lon := 37.7749, -122.4194
	cell := Encode(lat, lon, CellPrecision)

	ok, err := InCellOrNeighbor(lat, lon, cell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected point to be in its own cell %q", cell)
	}
}

func TestInCellOrNeighbor_Neighbor(t *testing.T) {
	target := "9q8yyk1m" // precision-8 San Francisco cell
	neighbors := Neighbors(target)
	if len(neighbors) != 8 {
		t.Fatalf("expected 8 neighbors, got %d", len(neighbors))
	}
	for _, n := range neighbors {
		nLat, nLon := geohash.DecodeCenter(n)
		ok, err := InCellOrNeighbor(nLat, nLon, target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Errorf("expected center of neighbor cell %q to be accepted for target %q", n, target)
		}
	}
}

func TestInCellOrNeighbor_WrongPrecision(t *testing.T) {
	_, err := InCellOrNeighbor(0, 0, "short")
	if err == nil {
		t.Fatal("expected error for non-precision-8 target cell")
	}
}

func TestInCellOrNeighbor_Distant(t *testing.T) {
	target := Encode(37.7749, -122.4194, CellPrecision)
	ok, err := InCellOrNeighbor(37.7800, -122.4100, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected distant point to be rejected")
	}
}

func TestDisplayOffset_WithinFogCircle(t *testing.T) {
	lat, lon := 37.7749, -122.4194
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		cell, err := DisplayOffset(lat, lon)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cell) != DisplayPrecision {
			t.Fatalf("display cell %q has length %d, want %d", cell, len(cell), DisplayPrecision)
		}
		cLat, cLon := geohash.DecodeCenter(cell)
		if d := haversineMeters(lat, lon, cLat, cLon); d > 1000 {
			t.Fatalf("display cell %q center is %.0fm from the true location, want at most 1000m", cell, d)
		}
		seen[cell] = true
	}
	if len(seen) < 10 {
		t.Errorf("expected at least half of 20 samples to be distinct, got %d", len(seen))
	}
}

func TestRandFloat_Bounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		v, err := randFloat(750)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v < 0 || v >= 750 {
			t.Fatalf("randFloat(750) = %v, want in [0, 750)", v)
		}
	}
}
