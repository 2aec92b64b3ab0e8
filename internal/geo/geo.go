// Package geo provides the distance and bounding-box math used by the
// snapshot store and the viewport filter.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used for haversine distances.
const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// HaversineKm returns the great-circle distance between two points in
// kilometers. The result is always non-negative.
func HaversineKm(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*sinLng*sinLng
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Region is a map viewport: a center point plus half-extent deltas in
// degrees, mirroring the shape map SDKs report on pan/zoom.
type Region struct {
	Center   Point
	LatDelta float64
	LngDelta float64
}

// Expanded returns a copy of the region with both deltas scaled by factor.
// A factor above 1 adds a buffer margin around the visible viewport.
func (r Region) Expanded(factor float64) Region {
	return Region{
		Center:   r.Center,
		LatDelta: r.LatDelta * factor,
		LngDelta: r.LngDelta * factor,
	}
}

// Contains reports whether p falls inside the region. Edges are inclusive:
// a point exactly on the bounding box boundary counts as inside.
func (r Region) Contains(p Point) bool {
	halfLat := r.LatDelta / 2
	halfLng := r.LngDelta / 2
	return p.Lat >= r.Center.Lat-halfLat && p.Lat <= r.Center.Lat+halfLat &&
		p.Lng >= r.Center.Lng-halfLng && p.Lng <= r.Center.Lng+halfLng
}
