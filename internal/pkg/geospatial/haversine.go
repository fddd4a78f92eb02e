package geospatial

import "math"

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance in meters between two points
// given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	sinLat := math.Sin(toRad(lat2-lat1) / 2)
	sinLon := math.Sin(toRad(lon2-lon1) / 2)

	a := sinLat*sinLat + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Extent returns the smallest box containing every point. ok is false for an
// empty input.
func Extent[T any](points []T, coord func(T) (lat, lon float64)) (minLat, minLon, maxLat, maxLon float64, ok bool) {
	if len(points) == 0 {
		return 0, 0, 0, 0, false
	}
	minLat, minLon = coord(points[0])
	maxLat, maxLon = minLat, minLon
	for _, p := range points[1:] {
		lat, lon := coord(p)
		minLat, maxLat = math.Min(minLat, lat), math.Max(maxLat, lat)
		minLon, maxLon = math.Min(minLon, lon), math.Max(maxLon, lon)
	}
	return minLat, minLon, maxLat, maxLon, true
}
