// Package geo implements the geohash-cell proximity test spec §4.3 uses in
// place of a metric distance check, plus the display-location offset used to
// publish an obfuscated location for the public discovery map.
//
// Grounded on lessucettes-strchat-tui/internal/client/georelays.go, the
// pack's only mmcloughlin/geohash consumer, and on
// original_source/.../libraries/display_location.rs for the exact
// destination-point formula.
package geo

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"

	"github.com/mmcloughlin/geohash"
)

const (
	// CellPrecision is the geohash length used for the proximity test (g tag).
	CellPrecision = 8
	// DisplayPrecision is the geohash length used for the public dg tag.
	DisplayPrecision = 9

	maxOffsetMeters  = 750.0
	earthRadiusMeter = 6_371_000.0
)

// Encode returns the base32 geohash cell for (lat, lon) at the given precision.
func Encode(lat, lon float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lon, precision)
}

// Neighbors returns the 8 cells adjacent to cell, in N, NE, E, SE, S, SW, W,
// NW order, matching the library's own ordering.
func Neighbors(cell string) []string {
	return geohash.Neighbors(cell)
}

// InCellOrNeighbor implements spec §4.3: true iff the user's point, encoded
// at precision 8, equals targetCell or one of its 8 neighbors.
func InCellOrNeighbor(userLat, userLon float64, targetCell string) (bool, error) {
	if len(targetCell) != CellPrecision {
		return false, fmt.Errorf("geo: target cell must be precision %d, got %d", CellPrecision, len(targetCell))
	}
	userCell := Encode(userLat, userLon, CellPrecision)
	if userCell == targetCell {
		return true, nil
	}
	for _, n := range Neighbors(targetCell) {
		if userCell == n {
			return true, nil
		}
	}
	return false, nil
}

// DisplayOffset samples a bearing uniformly in [0, 2pi) and a distance
// uniformly in [0, 750m], computes the destination point on a sphere of
// radius 6,371,000m, and encodes it at precision 9. The sampled point is at
// most 750m from the true location and the returned cell's center is within
// a few meters of that point, so the true location stays well within the
// 1km "fog circle" the public discovery map advertises.
func DisplayOffset(lat, lon float64) (string, error) {
	bearing, err := randFloat(2 * math.Pi)
	if err != nil {
		return "", fmt.Errorf("geo: sample bearing: %w", err)
	}
	distance, err := randFloat(maxOffsetMeters)
	if err != nil {
		return "", fmt.Errorf("geo: sample distance: %w", err)
	}

	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	angular := distance / earthRadiusMeter

	newLatRad := math.Asin(math.Sin(latRad)*math.Cos(angular) +
		math.Cos(latRad)*math.Sin(angular)*math.Cos(bearing))
	newLonRad := lonRad + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(latRad),
		math.Cos(angular)-math.Sin(latRad)*math.Sin(newLatRad),
	)

	displayLat := newLatRad * 180 / math.Pi
	displayLon := newLonRad * 180 / math.Pi

	return Encode(displayLat, displayLon, DisplayPrecision), nil
}

// randFloat returns a cryptographically random float64 uniformly distributed
// in [0, max).
func randFloat(max float64) (float64, error) {
	const resolution = 1 << 53
	n, err := rand.Int(rand.Reader, big.NewInt(resolution))
	if err != nil {
		return 0, err
	}
	return (float64(n.Int64()) / float64(resolution)) * max, nil
}
