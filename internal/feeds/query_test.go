package feeds

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidandcat/communityconnect/internal/aging"
	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/regions"
)

func TestParseQuery(t *testing.T) {
	table := regions.Default()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	q, err := ParseQuery(url.Values{}, table, now)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Nil(t, q.Region)

	q, err = ParseQuery(url.Values{
		"region":          {"gold-coast"},
		"categories":      {"fire,flood", "lost-found"},
		"sources":         {"traffic"},
		"min_severity":    {"HIGH"},
		"bbox":            {"152,-29,154,-27"},
		"near":            {"-28.0,153.4"},
		"include_expired": {"1"},
		"limit":           {"5000"},
	}, table, now)
	require.NoError(t, err)
	require.NotNil(t, q.Region)
	assert.Equal(t, "gold-coast", q.Region.Slug)
	assert.Equal(t, []incident.Category{incident.CategoryFire, incident.CategoryFlood, incident.CategoryLostFound}, q.Categories)
	assert.Equal(t, []incident.Source{incident.SourceTraffic}, q.Sources)
	assert.Equal(t, incident.SeverityHigh, q.MinSeverity)
	require.NotNil(t, q.BBox)
	require.NotNil(t, q.Near)
	assert.Equal(t, DefaultRadiusKm, q.RadiusKm)
	assert.True(t, q.IncludeExpired)
	assert.Equal(t, MaxLimit, q.Limit)

	q, err = ParseQuery(url.Values{"since": {"6h"}, "near": {"-27.5,153"}, "radius_km": {"3"}}, table, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-6*time.Hour), q.Since)
	assert.Equal(t, 3.0, q.RadiusKm)

	q, err = ParseQuery(url.Values{"since": {"2026-03-01T00:00:00Z"}}, table, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), q.Since)

	for _, bad := range []url.Values{
		{"region": {"atlantis"}},
		{"categories": {"dragons"}},
		{"sources": {"rumour"}},
		{"min_severity": {"apocalyptic"}},
		{"near": {"nowhere"}},
		{"near": {"0,0"}},
		{"radius_km": {"-1"}},
		{"since": {"last week"}},
		{"limit": {"0"}},
		{"include_expired": {"maybe"}},
	} {
		_, err := ParseQuery(bad, table, now)
		assert.Error(t, err, "%v", bad)
	}
}

func fixtureIncidents(now time.Time) []incident.Incident {
	return []incident.Incident{
		{
			ID: "traffic:1", Source: incident.SourceTraffic, Category: incident.CategoryTraffic,
			Severity: incident.SeverityHigh, Suburb: "Fortitude Valley", Region: "brisbane",
			Location: geo.Point{Lat: -27.457, Lng: 153.034}, Active: true,
			PublishedAt: now.Add(-3 * time.Hour), UpdatedAt: now.Add(-10 * time.Minute),
		},
		{
			ID: "emergency:1", Source: incident.SourceEmergency, Category: incident.CategoryFire,
			Severity: incident.SeverityCritical, Suburb: "Burleigh Heads", Region: "gold-coast",
			Location: geo.Point{Lat: -28.09, Lng: 153.45}, Active: true,
			PublishedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
		},
		{
			ID: "user:1", Source: incident.SourceUser, Category: incident.CategoryPets,
			Severity: incident.SeverityLow, Suburb: "New Farm", Region: "brisbane",
			Location: geo.Point{Lat: -27.467, Lng: 153.05}, Active: true,
			PublishedAt: now.Add(-30 * time.Minute), UpdatedAt: now.Add(-30 * time.Minute),
		},
		{
			// long gone: a week old low severity post
			ID: "user:2", Source: incident.SourceUser, Category: incident.CategoryCommunity,
			Severity: incident.SeverityLow, Suburb: "Toowong", Region: "brisbane",
			Location: geo.Point{Lat: -27.485, Lng: 152.99}, Active: true,
			PublishedAt: now.Add(-7 * 24 * time.Hour), UpdatedAt: now.Add(-7 * 24 * time.Hour),
		},
		{
			ID: "traffic:2", Source: incident.SourceTraffic, Category: incident.CategoryRoadworks,
			Severity: incident.SeverityMedium, Suburb: "Toowong", Region: "brisbane",
			Location: geo.Point{Lat: -27.485, Lng: 152.99}, Active: false,
			PublishedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
		},
	}
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFilterDefaultsHideExpiredAndOrderByRecency(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	items := Filter(fixtureIncidents(now), Query{}, aging.Default(), regions.Default(), now)

	// traffic:1 ages from its last update, so it sorts first
	assert.Equal(t, []string{"traffic:1", "user:1", "emergency:1"}, ids(items))
	assert.Equal(t, "10 minutes ago", items[0].Age)
	assert.True(t, items[0].Aging.Fresh)
	assert.Nil(t, items[0].DistanceKm)

	all := Filter(fixtureIncidents(now), Query{IncludeExpired: true}, aging.Default(), regions.Default(), now)
	assert.Len(t, all, 5)
}

func TestFilterBySelectors(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	table := regions.Default()
	incs := fixtureIncidents(now)
	run := func(q Query) []string {
		return ids(Filter(incs, q, aging.Default(), table, now))
	}

	assert.Equal(t, []string{"emergency:1"}, run(Query{Region: table.Get("gold-coast")}))
	assert.Equal(t, []string{"traffic:1", "user:1"}, run(Query{Region: table.Get("brisbane")}))
	assert.Equal(t, []string{"user:1"}, run(Query{Sources: []incident.Source{incident.SourceUser}}))
	assert.Equal(t, []string{"emergency:1"}, run(Query{Categories: []incident.Category{incident.CategoryFire}}))
	assert.Equal(t, []string{"traffic:1", "emergency:1"}, run(Query{MinSeverity: incident.SeverityHigh}))
	assert.Equal(t, []string{"traffic:1", "user:1"}, run(Query{Since: now.Add(-45 * time.Minute)}))

	box := geo.BBox{West: 153.0, South: -27.5, East: 153.1, North: -27.4}
	assert.Equal(t, []string{"traffic:1", "user:1"}, run(Query{BBox: &box}))
}

func TestFilterNearSortsByDistance(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	newFarm := geo.Point{Lat: -27.467, Lng: 153.05}

	items := Filter(fixtureIncidents(now), Query{Near: &newFarm, RadiusKm: 10}, aging.Default(), regions.Default(), now)
	require.Equal(t, []string{"user:1", "traffic:1"}, ids(items))
	require.NotNil(t, items[0].DistanceKm)
	assert.InDelta(t, 0, *items[0].DistanceKm, 1e-9)
	assert.Equal(t, "Right here", items[0].Proximity)
	assert.Less(t, *items[0].DistanceKm, *items[1].DistanceKm)
}

func TestFilterNearRadiusBoundary(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	newFarm := geo.Point{Lat: -27.467, Lng: 153.05}
	incs := fixtureIncidents(now)
	gold := geo.Haversine(newFarm, incs[1].Location)

	run := func(radius float64) []string {
		return ids(Filter(incs, Query{Near: &newFarm, RadiusKm: radius}, aging.Default(), regions.Default(), now))
	}
	assert.Equal(t, []string{"user:1", "traffic:1", "emergency:1"}, run(gold+0.01))
	assert.Equal(t, []string{"user:1", "traffic:1"}, run(gold-0.01))
	// no radius: distance sorting only
	assert.Equal(t, []string{"user:1", "traffic:1", "emergency:1"}, run(0))
}

func TestAggregatorQuery(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	incs := fixtureIncidents(now)
	feed := &fakeFeed{src: incident.SourceTraffic}
	feed.set(Batch{Incidents: []incident.Incident{incs[0], incs[4]}}, nil)

	a := New([]Fetcher{feed}, Options{
		Now: func() time.Time { return now },
		Posts: func(context.Context, time.Time) ([]incident.Incident, error) {
			return []incident.Incident{incs[2], incs[3]}, nil
		},
	})
	require.NoError(t, a.Refresh(context.Background()))

	res, err := a.Query(context.Background(), Query{Limit: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"traffic:1"}, ids(res.Incidents))

	all, err := a.Select(context.Background(), Query{Limit: 1}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"traffic:1", "user:1"}, ids(all))
	assert.Equal(t, map[incident.Source]int{
		incident.SourceTraffic: 1, incident.SourceEmergency: 0, incident.SourceUser: 1,
	}, res.Counts)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 2, res.Sources[0].Count)
}

func TestFromPost(t *testing.T) {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	p := &db.Post{
		ID: 42, UserID: 7, Title: "Snake on path", Category: "Wildlife", Severity: "nope",
		Status: db.PostActive, Lat: -16.92, Lng: 145.77, LocationText: "Esplanade, Cairns",
		CreatedAt: created, UpdatedAt: created,
	}
	inc := FromPost(p, regions.Default())
	assert.Equal(t, "user:42", inc.ID)
	assert.Equal(t, incident.CategoryWildlife, inc.Category)
	assert.Equal(t, incident.SeverityMedium, inc.Severity)
	assert.Equal(t, "cairns", inc.Region)
	assert.Equal(t, int64(7), inc.AuthorID)
	assert.True(t, inc.Active)
	assert.Equal(t, "/posts/42", inc.URL)
}
