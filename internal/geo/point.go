// Package geo holds coordinates, distance math and the location
// collaborators: postcode geocoding and radius queries.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371008.8

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Bounds returns a lat/lng rectangle that contains every point within
// radius meters of center. It over-covers near the poles.
func Bounds(center Point, radius float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := degrees(radius / earthRadiusMeters)
	minLat = math.Max(-90, center.Lat-dLat)
	maxLat = math.Min(90, center.Lat+dLat)

	cos := math.Cos(radians(center.Lat))
	if cos < 1e-6 || maxLat >= 90 || minLat <= -90 {
		return minLat, maxLat, -180, 180
	}
	dLng := degrees(radius / (earthRadiusMeters * cos))
	return minLat, maxLat, center.Lng - dLng, center.Lng + dLng
}

// FormatKm renders a distance the way listings show it, e.g. "1.2km away".
func FormatKm(meters float64) string {
	return fmt.Sprintf("%.1fkm away", meters/1000)
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
