package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	brisbaneCBD = Point{Lat: -27.4698, Lng: 153.0251}
	goldCoast   = Point{Lat: -28.0167, Lng: 153.4000}
)

func TestHaversine(t *testing.T) {
	d := Haversine(brisbaneCBD, goldCoast)
	assert.InDelta(t, 71.0, d, 2.0)
	assert.InDelta(t, 0, Haversine(brisbaneCBD, brisbaneCBD), 1e-9)
	assert.InDelta(t, d, Haversine(goldCoast, brisbaneCBD), 1e-9)
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"brisbane", brisbaneCBD, true},
		{"null island", Point{}, false},
		{"lat too high", Point{Lat: 91, Lng: 10}, false},
		{"lng too low", Point{Lat: 10, Lng: -181}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Valid())
		})
	}
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("152.5,-28.2,153.6,-27.0")
	require.NoError(t, err)
	assert.True(t, b.Contains(brisbaneCBD))
	assert.True(t, b.Contains(goldCoast))
	assert.False(t, b.Contains(Point{Lat: -19.26, Lng: 146.82}))

	_, err = ParseBBox("1,2,3")
	assert.Error(t, err)
	_, err = ParseBBox("152,-27,153,-28")
	assert.Error(t, err, "south above north")
	_, err = ParseBBox("a,b,c,d")
	assert.Error(t, err)
}

func TestBBoxAntimeridian(t *testing.T) {
	b := BBox{West: 170, South: -50, East: -170, North: -10}
	assert.True(t, b.Contains(Point{Lat: -20, Lng: 175}))
	assert.True(t, b.Contains(Point{Lat: -20, Lng: -175}))
	assert.False(t, b.Contains(Point{Lat: -20, Lng: 0}))
}

func TestBoundsAroundContainsRadius(t *testing.T) {
	b := BoundsAround(brisbaneCBD, 10)
	assert.True(t, b.Contains(brisbaneCBD))
	north := Point{Lat: brisbaneCBD.Lat + 0.08, Lng: brisbaneCBD.Lng}
	require.Less(t, Haversine(brisbaneCBD, north), 10.0)
	assert.True(t, b.Contains(north))
	assert.False(t, b.Contains(goldCoast))
}

func TestBoundsAroundIsTight(t *testing.T) {
	tests := []struct {
		name     string
		center   Point
		radiusKm float64
	}{
		{"brisbane 25km", brisbaneCBD, 25},
		{"high latitude", Point{Lat: 70, Lng: 20}, 500},
		{"southern 2000km", Point{Lat: -45, Lng: 150}, 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BoundsAround(tt.center, tt.radiusKm)
			// the widest point of the circle sits on its east and west edges
			lat := math.Asin(math.Sin(radians(tt.center.Lat))/math.Cos(tt.radiusKm/EarthRadiusKm)) * 180 / math.Pi
			east := Point{Lat: lat, Lng: b.East}
			assert.InDelta(t, tt.radiusKm, Haversine(tt.center, east), tt.radiusKm*1e-6)
			assert.True(t, b.Contains(Point{Lat: lat, Lng: b.West}))
		})
	}
}

func TestBoundsAroundEdges(t *testing.T) {
	// crossing the antimeridian wraps west past east
	b := BoundsAround(Point{Lat: -17, Lng: 179.9}, 50)
	assert.Greater(t, b.West, b.East)
	assert.True(t, b.Contains(Point{Lat: -17, Lng: -179.9}))

	// a circle over the pole spans every longitude
	b = BoundsAround(Point{Lat: -89.5, Lng: 10}, 100)
	assert.Equal(t, -90.0, b.South)
	assert.Equal(t, -180.0, b.West)
	assert.Equal(t, 180.0, b.East)

	assert.Equal(t, World, BoundsAround(brisbaneCBD, 30000))
}

func TestCentroid(t *testing.T) {
	c, ok := Centroid([]Point{{Lat: -27, Lng: 153}, {Lat: -28, Lng: 152}, {}})
	require.True(t, ok)
	assert.InDelta(t, -27.5, c.Lat, 1e-9)
	assert.InDelta(t, 152.5, c.Lng, 1e-9)

	_, ok = Centroid(nil)
	assert.False(t, ok)
}

func TestProximityLabel(t *testing.T) {
	tests := []struct {
		km   float64
		want string
	}{
		{0.05, "Right here"},
		{0.34, "350m away"},
		{0.97, "950m away"},
		{0.98, "1.0km away"},
		{0.99, "1.0km away"},
		{0.999, "1.0km away"},
		{2.54, "2.5km away"},
		{9.97, "10km away"},
		{70.9, "71km away"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProximityLabel(tt.km), "%v km", tt.km)
	}
}
