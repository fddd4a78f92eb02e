package geospatial

import "math"

// Simplify reduces a polyline while keeping its order and rough shape.
// Consecutive points closer than toleranceMeters to the last kept point are
// dropped, then a Ramer-Douglas-Peucker pass removes vertices that deviate
// less than toleranceMeters from the chord between their neighbours.
// The first and last points always survive. coord extracts lat/lon in degrees.
func Simplify[T any](points []T, toleranceMeters float64, coord func(T) (lat, lon float64)) []T {
	if len(points) <= 2 || toleranceMeters <= 0 {
		return append([]T(nil), points...)
	}

	thinned := dropClose(points, toleranceMeters, coord)
	if len(thinned) <= 2 {
		return thinned
	}

	keep := make([]bool, len(thinned))
	keep[0], keep[len(thinned)-1] = true, true

	type span struct{ first, last int }
	stack := []span{{0, len(thinned) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		aLat, aLon := coord(thinned[s.first])
		bLat, bLon := coord(thinned[s.last])

		dmax, index := 0.0, -1
		for i := s.first + 1; i < s.last; i++ {
			lat, lon := coord(thinned[i])
			if d := crossTrackMeters(lat, lon, aLat, aLon, bLat, bLon); d > dmax {
				dmax, index = d, i
			}
		}
		if index < 0 || dmax <= toleranceMeters {
			continue
		}
		keep[index] = true
		stack = append(stack, span{s.first, index}, span{index, s.last})
	}

	out := make([]T, 0, len(thinned))
	for i, p := range thinned {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func dropClose[T any](points []T, toleranceMeters float64, coord func(T) (lat, lon float64)) []T {
	out := make([]T, 0, len(points))
	out = append(out, points[0])
	lastLat, lastLon := coord(points[0])

	for i := 1; i < len(points)-1; i++ {
		lat, lon := coord(points[i])
		if Haversine(lastLat, lastLon, lat, lon) < toleranceMeters {
			continue
		}
		out = append(out, points[i])
		lastLat, lastLon = lat, lon
	}
	return append(out, points[len(points)-1])
}

// crossTrackMeters is the distance from p to segment a-b on a local
// equirectangular projection centred on a. Accurate enough for the short
// segments of a vehicle track.
func crossTrackMeters(lat, lon, aLat, aLon, bLat, bLon float64) float64 {
	k := math.Cos(toRad(aLat))
	project := func(la, lo float64) (x, y float64) {
		return toRad(lo-aLon) * k * earthRadiusMeters, toRad(la-aLat) * earthRadiusMeters
	}

	px, py := project(lat, lon)
	bx, by := project(bLat, bLon)

	segLen2 := bx*bx + by*by
	if segLen2 == 0 {
		return math.Hypot(px, py)
	}

	t := (px*bx + py*by) / segLen2
	switch {
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}
	return math.Hypot(px-t*bx, py-t*by)
}
