package cluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
)

func brisbanePoints() []Point {
	return []Point{
		{ID: "a", Location: geo.Point{Lat: -27.47, Lng: 153.020}, Category: incident.CategoryTraffic, Severity: incident.SeverityLow},
		{ID: "b", Location: geo.Point{Lat: -27.47, Lng: 153.030}, Category: incident.CategoryTraffic, Severity: incident.SeverityHigh},
		{ID: "c", Location: geo.Point{Lat: -27.47, Lng: 153.025}, Category: incident.CategoryFire, Severity: incident.SeverityMedium},
		{ID: "gc", Location: geo.Point{Lat: -28.00, Lng: 153.430}, Category: incident.CategoryCrime, Severity: incident.SeverityCritical},
	}
}

func TestClusterGroupsNearbyPoints(t *testing.T) {
	c := New(DefaultOptions())
	markers := c.Cluster(brisbanePoints(), 10, geo.World)
	require.Len(t, markers, 2)

	cl := markers[0]
	assert.True(t, cl.Cluster)
	assert.Equal(t, "c10:a", cl.ID)
	assert.Equal(t, 3, cl.Count)
	assert.Equal(t, []string{"a", "b", "c"}, cl.Members)
	assert.Equal(t, incident.SeverityHigh, cl.MaxSeverity)
	if diff := cmp.Diff(map[incident.Category]int{incident.CategoryTraffic: 2, incident.CategoryFire: 1}, cl.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 153.025, cl.Location.Lng, 1e-9)
	assert.InDelta(t, -27.47, cl.Location.Lat, 1e-9)

	single := markers[1]
	assert.False(t, single.Cluster)
	assert.Equal(t, "gc", single.PointID)
	assert.Equal(t, 1, single.Count)
	assert.Equal(t, incident.SeverityCritical, single.MaxSeverity)
}

func TestClusterExpansionZoom(t *testing.T) {
	c := New(DefaultOptions())
	pts := brisbanePoints()[:2]
	markers := c.Cluster(pts, 10, geo.World)
	require.Len(t, markers, 1)
	// 0.01 degrees of longitude is ~58px at zoom 13 and ~116px at zoom 14.
	assert.Equal(t, 14, markers[0].ExpansionZoom)

	split := c.Cluster(pts, 14, geo.World)
	assert.Len(t, split, 2)
}

func TestClusterBeyondMaxZoomReturnsSingles(t *testing.T) {
	c := New(DefaultOptions())
	markers := c.Cluster(brisbanePoints(), 17, geo.World)
	require.Len(t, markers, 4)
	for _, m := range markers {
		assert.False(t, m.Cluster)
	}
}

func TestClusterFiltersByBBoxAndValidity(t *testing.T) {
	c := New(DefaultOptions())
	pts := append(brisbanePoints(), Point{ID: "nowhere"})
	bbox := geo.BBox{West: 152.9, South: -27.6, East: 153.1, North: -27.3}
	markers := c.Cluster(pts, 5, bbox)
	require.Len(t, markers, 1)
	assert.Equal(t, 3, markers[0].Count)

	assert.Empty(t, c.Cluster(nil, 5, geo.World))
}

func TestClusterMinPoints(t *testing.T) {
	c := New(Options{MinPoints: 4})
	markers := c.Cluster(brisbanePoints(), 10, geo.World)
	require.Len(t, markers, 4)
	for _, m := range markers {
		assert.False(t, m.Cluster)
	}
}

func TestClusterZoomIsClamped(t *testing.T) {
	c := New(DefaultOptions())
	markers := c.Cluster(brisbanePoints(), -3, geo.World)
	require.Len(t, markers, 1)
	assert.Equal(t, "c0:a", markers[0].ID)
	assert.Equal(t, 4, markers[0].Count)
}
