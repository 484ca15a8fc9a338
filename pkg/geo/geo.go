// Package geo computes great-circle distances between coordinates.
package geo

import (
	"math"

	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// EarthRadius is the mean Earth radius in meters used by Distance.
const EarthRadius = 6372797.560856

// Distance returns the haversine distance in meters between a and b.
// Endpoints are ordered before computing so the result is bit-for-bit symmetric.
func Distance(a, b models.Coordinates) float64 {
	if less(b, a) {
		a, b = b, a
	}
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadius * math.Asin(math.Sqrt(math.Min(1, h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func less(a, b models.Coordinates) bool {
	if a.Latitude != b.Latitude {
		return a.Latitude < b.Latitude
	}
	return a.Longitude < b.Longitude
}
