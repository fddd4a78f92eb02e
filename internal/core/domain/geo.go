package domain

// LonLat is a path vertex in [longitude, latitude] order, matching the
// GeoJSON coordinate layout map renderers expect.
type LonLat [2]float64

// Lon returns the longitude.
func (p LonLat) Lon() float64 { return p[0] }

// Lat returns the latitude.
func (p LonLat) Lat() float64 { return p[1] }

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}
