// Package geo holds the small amount of spherical math the feed needs:
// distances, bounding boxes and human readable proximity labels.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKm is the mean earth radius used for haversine distances.
const EarthRadiusKm = 6371.0088

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a usable coordinate. (0,0) is treated as
// missing because feeds emit it for incidents without a location.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return false
	}
	return p.Lat != 0 || p.Lng != 0
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Centroid returns the mean of the valid points. ok is false when none are valid.
func Centroid(points []Point) (Point, bool) {
	var sumLat, sumLng float64
	n := 0
	for _, p := range points {
		if !p.Valid() {
			continue
		}
		sumLat += p.Lat
		sumLng += p.Lng
		n++
	}
	if n == 0 {
		return Point{}, false
	}
	return Point{Lat: sumLat / float64(n), Lng: sumLng / float64(n)}, true
}

// BBox is a west/south/east/north box. West > East means the box crosses
// the antimeridian.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// World covers every coordinate.
var World = BBox{West: -180, South: -90, East: 180, North: 90}

func (b BBox) Contains(p Point) bool {
	if p.Lat < b.South || p.Lat > b.North {
		return false
	}
	if b.West <= b.East {
		return p.Lng >= b.West && p.Lng <= b.East
	}
	return p.Lng >= b.West || p.Lng <= b.East
}

// ParseBBox parses "west,south,east,north".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox value %q: %w", part, err)
		}
		v[i] = f
	}
	b := BBox{West: v[0], South: v[1], East: v[2], North: v[3]}
	if b.South > b.North {
		return BBox{}, fmt.Errorf("bbox south %.4f is above north %.4f", b.South, b.North)
	}
	if b.South < -90 || b.North > 90 || b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
		return BBox{}, fmt.Errorf("bbox out of range")
	}
	return b, nil
}

// BoundsAround returns the smallest box that contains every point within
// radiusKm of center, for use as a prefilter before Haversine.
func BoundsAround(center Point, radiusKm float64) BBox {
	d := radiusKm / EarthRadiusKm
	if d >= math.Pi {
		return World
	}
	dLat := d * 180 / math.Pi
	south := math.Max(-90, center.Lat-dLat)
	north := math.Min(90, center.Lat+dLat)
	if south == -90 || north == 90 {
		// the circle covers a pole
		return BBox{West: -180, South: south, East: 180, North: north}
	}

	ratio := math.Sin(d) / math.Cos(radians(center.Lat))
	if d >= math.Pi/2 || ratio >= 1 {
		return BBox{West: -180, South: south, East: 180, North: north}
	}
	dLng := math.Asin(ratio) * 180 / math.Pi
	return BBox{
		West:  wrapLng(center.Lng - dLng),
		South: south,
		East:  wrapLng(center.Lng + dLng),
		North: north,
	}
}

func wrapLng(lng float64) float64 {
	for lng < -180 {
		lng += 360
	}
	for lng > 180 {
		lng -= 360
	}
	return lng
}

// ProximityLabel renders a distance the way the feed cards show it.
func ProximityLabel(km float64) string {
	if km < 0.1 {
		return "Right here"
	}
	if m := math.Round(km*1000/50) * 50; m < 1000 {
		return fmt.Sprintf("%dm away", int(m))
	}
	if tenths := math.Round(km * 10); tenths < 100 {
		return fmt.Sprintf("%.1fkm away", tenths/10)
	}
	return fmt.Sprintf("%dkm away", int(math.Round(km)))
}
