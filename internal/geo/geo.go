// Package geo provides the distance helpers the dispatcher relies on.
//
// Route ordering uses planar degree-space distance, matching the flat map the
// operator works with at city scale. Arrival detection converts to meters via
// an equirectangular approximation. Haversine is kept for ETA estimates where
// the extra accuracy is worth the trig.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/example/haulite/internal/dispatch/domain"
)

const (
	metersPerDegreeLat = 110574.0
	metersPerDegreeLng = 111320.0
	earthRadiusM       = 6371000.0
)

func toOrb(p domain.GeoPoint) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Distance returns the planar Euclidean distance between two points in
// degrees. Not geodesic; only comparisons between nearby points are meaningful.
func Distance(a, b domain.GeoPoint) float64 {
	return planar.Distance(toOrb(a), toOrb(b))
}

// DistanceMeters approximates the ground distance between two nearby points.
func DistanceMeters(a, b domain.GeoPoint) float64 {
	midLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	dy := (b.Lat - a.Lat) * metersPerDegreeLat
	dx := (b.Lng - a.Lng) * metersPerDegreeLng * math.Cos(midLat)
	return math.Sqrt(dx*dx + dy*dy)
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dlat / 2)
	sinLng := math.Sin(dlng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
