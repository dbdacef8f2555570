package feeds

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
)

func decodeGeometry(t *testing.T, s string) *geometry {
	t.Helper()
	var g geometry
	require.NoError(t, json.Unmarshal([]byte(s), &g))
	return &g
}

func TestRepresentativePoint(t *testing.T) {
	tests := []struct {
		name string
		geom string
		want geo.Point
		ok   bool
	}{
		{"point", `{"type":"Point","coordinates":[153.02,-27.47]}`, geo.Point{Lat: -27.47, Lng: 153.02}, true},
		{"line mean", `{"type":"LineString","coordinates":[[153.0,-27.0],[153.2,-27.2]]}`, geo.Point{Lat: -27.1, Lng: 153.1}, true},
		{"polygon mean", `{"type":"Polygon","coordinates":[[[152,-27],[154,-27],[154,-29],[152,-29]]]}`, geo.Point{Lat: -28, Lng: 153}, true},
		{"collection prefers point", `{"type":"GeometryCollection","geometries":[
			{"type":"LineString","coordinates":[[150,-20],[151,-21]]},
			{"type":"Point","coordinates":[145.77,-16.92]}]}`, geo.Point{Lat: -16.92, Lng: 145.77}, true},
		{"multipoint mean", `{"type":"MultiPoint","coordinates":[[146,-19],[148,-21]]}`, geo.Point{Lat: -20, Lng: 147}, true},
		{"null island", `{"type":"Point","coordinates":[0,0]}`, geo.Point{}, false},
		{"empty", `{"type":"LineString","coordinates":[]}`, geo.Point{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := representativePoint(decodeGeometry(t, tt.geom))
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lng, got.Lng, 1e-9)
		})
	}

	_, ok := representativePoint(nil)
	assert.False(t, ok)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 1, 3, 5, 5, 47, 0, time.UTC)
	assert.True(t, want.Equal(parseTime("2026-01-03T15:05:47+10:00")))
	assert.True(t, want.Equal(parseTime("2026-01-03T15:05:47")))
	assert.True(t, want.Equal(parseTime("2026/01/03 15:05:47")))
	assert.True(t, want.Equal(parseTime(flexString("1767416747000"))))
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("yesterday").IsZero())
}

const trafficFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [153.0251, -27.4698]},
      "properties": {
        "id": 1201,
        "event_type": "Crash",
        "event_subtype": "Multi-vehicle",
        "event_priority": "High",
        "description": "Two vehicles involved.",
        "advice": "Expect delays.",
        "road_summary": {"road_name": "Ann Street", "locality": "Fortitude Valley"},
        "status": "Published",
        "published": "2026-01-03T14:00:00+10:00",
        "last_updated": "2026-01-03T14:30:00+10:00",
        "web_link": "https://qldtraffic.qld.gov.au/event/1201"
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "MultiLineString", "coordinates": [[[153.4, -28.0], [153.42, -28.02]]]},
      "properties": {
        "id": "rw-77",
        "event_type": "Roadworks",
        "event_priority": "Red Alert",
        "road_summary": {"road_name": "Gold Coast Highway", "locality": "Burleigh Heads"},
        "status": "Closed",
        "published": "2026-01-02T08:00:00+10:00"
      }
    },
    {
      "type": "Feature",
      "geometry": null,
      "properties": {"id": 9, "event_type": "Hazard"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [146.8, -19.26]},
      "properties": {"id": 10, "event_type": "Flooding", "event_priority": "Low", "status": "Published"}
    }
  ]
}`

func TestParseTraffic(t *testing.T) {
	b, err := ParseTraffic([]byte(trafficFixture))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Skipped)
	require.Len(t, b.Incidents, 3)

	crash := b.Incidents[0]
	want := incident.Incident{
		ID:          "traffic:1201",
		Source:      incident.SourceTraffic,
		SourceID:    "1201",
		Title:       "Crash (Multi-vehicle): Ann Street",
		Description: "Two vehicles involved.\n\nExpect delays.",
		Category:    incident.CategoryTraffic,
		Severity:    incident.SeverityHigh,
		Status:      "Published",
		Location:    geo.Point{Lat: -27.4698, Lng: 153.0251},
		Address:     "Ann Street, Fortitude Valley",
		Suburb:      "Fortitude Valley",
		PublishedAt: time.Date(2026, 1, 3, 4, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 1, 3, 4, 30, 0, 0, time.UTC),
		Active:      true,
		URL:         "https://qldtraffic.qld.gov.au/event/1201",
	}
	if diff := cmp.Diff(want, crash); diff != "" {
		t.Errorf("crash incident mismatch (-want +got):\n%s", diff)
	}

	works := b.Incidents[1]
	assert.Equal(t, "traffic:rw-77", works.ID)
	assert.Equal(t, incident.CategoryRoadworks, works.Category)
	assert.Equal(t, incident.SeverityCritical, works.Severity)
	assert.False(t, works.Active)
	assert.Equal(t, works.PublishedAt, works.UpdatedAt)

	flood := b.Incidents[2]
	assert.Equal(t, incident.CategoryFlood, flood.Category)
	assert.Equal(t, incident.SeverityLow, flood.Severity)
	assert.Equal(t, "Flooding", flood.Title)
}

func TestParseTrafficRejectsGarbage(t *testing.T) {
	_, err := ParseTraffic([]byte(`not json`))
	assert.Error(t, err)
	_, err = ParseTraffic([]byte(`{"type":"Feature"}`))
	assert.Error(t, err)
}

const emergencyFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [152.95, -27.38]},
      "properties": {
        "UniqueID": "QF-1", "GroupedType": "Vegetation Fire", "Location": "12 Ridge Rd",
        "Locality": "The Gap", "CurrentStatus": "Going", "VehiclesAssigned": 2,
        "Response_Date": "2026-01-03T13:00:00+10:00", "LastUpdate": "2026-01-03T13:20:00+10:00"
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [153.1, -27.5]},
      "properties": {"UniqueID": "QF-2", "GroupedType": "Rescue", "CurrentStatus": "Returned", "VehiclesAssigned": 6}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [153.2, -27.6]},
      "properties": {"OBJECTID": 55, "GroupedType": "Swiftwater Rescue", "CurrentStatus": "Contained", "VehiclesAssigned": "7"}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [0, 0]},
      "properties": {"UniqueID": "QF-4", "GroupedType": "Medical"}
    }
  ]
}`

func TestParseEmergency(t *testing.T) {
	b, err := ParseEmergency([]byte(emergencyFixture))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Skipped)
	require.Len(t, b.Incidents, 2)

	fire := b.Incidents[0]
	assert.Equal(t, "emergency:QF-1", fire.ID)
	assert.Equal(t, "Vegetation Fire, The Gap", fire.Title)
	assert.Equal(t, incident.CategoryFire, fire.Category)
	assert.Equal(t, incident.SeverityHigh, fire.Severity)
	assert.Equal(t, "Status: Going. 2 vehicles assigned.", fire.Description)
	assert.Equal(t, "12 Ridge Rd", fire.Address)
	assert.True(t, fire.Active)
	assert.True(t, fire.UpdatedAt.After(fire.PublishedAt))

	swift := b.Incidents[1]
	assert.Equal(t, "emergency:55", swift.ID)
	assert.Equal(t, incident.CategoryFlood, swift.Category)
	assert.Equal(t, incident.SeverityMedium, swift.Severity)
}

func TestEmergencySeverity(t *testing.T) {
	tests := []struct {
		vehicles int
		status   string
		want     incident.Severity
	}{
		{0, "", incident.SeverityMedium},
		{3, "", incident.SeverityHigh},
		{5, "", incident.SeverityCritical},
		{1, "Going", incident.SeverityHigh},
		{6, "Going", incident.SeverityCritical},
		{6, "Patrolled", incident.SeverityMedium},
		{1, "Contained", incident.SeverityMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, emergencySeverity(tt.vehicles, tt.status), "%d vehicles, %q", tt.vehicles, tt.status)
	}
}
