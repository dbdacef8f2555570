package feeds

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kidandcat/communityconnect/internal/aging"
	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/regions"
	"github.com/kidandcat/communityconnect/internal/render"
)

const (
	DefaultLimit    = 200
	MaxLimit        = 1000
	DefaultRadiusKm = 25.0
)

// Query selects incidents for a feed or map view. Zero values mean no
// filter.
type Query struct {
	Region         *regions.Region
	Categories     []incident.Category
	Sources        []incident.Source
	MinSeverity    incident.Severity
	BBox           *geo.BBox
	Near           *geo.Point
	RadiusKm       float64
	Since          time.Time
	IncludeExpired bool
	Limit          int
}

// ParseQuery reads query parameters: region, categories, sources,
// min_severity, bbox, near, radius_km, since, include_expired and limit.
// A relative since such as "6h" counts back from now.
func ParseQuery(v url.Values, table *regions.Table, now time.Time) (Query, error) {
	q := Query{Limit: DefaultLimit}

	if s := strings.TrimSpace(v.Get("region")); s != "" && s != "all" {
		r := table.Get(s)
		if r == nil {
			return q, fmt.Errorf("unknown region %q", s)
		}
		q.Region = r
	}
	for _, s := range splitParam(v, "categories", "category") {
		c, ok := incident.ParseCategory(s)
		if !ok {
			return q, fmt.Errorf("unknown category %q", s)
		}
		q.Categories = append(q.Categories, c)
	}
	for _, s := range splitParam(v, "sources", "source") {
		src, ok := incident.ParseSource(s)
		if !ok {
			return q, fmt.Errorf("unknown source %q", s)
		}
		q.Sources = append(q.Sources, src)
	}
	if s := v.Get("min_severity"); s != "" {
		sev, ok := incident.ParseSeverity(s)
		if !ok {
			return q, fmt.Errorf("unknown severity %q", s)
		}
		q.MinSeverity = sev
	}
	if s := v.Get("bbox"); s != "" {
		b, err := geo.ParseBBox(s)
		if err != nil {
			return q, err
		}
		q.BBox = &b
	}
	if s := v.Get("near"); s != "" {
		p, err := parsePoint(s)
		if err != nil {
			return q, err
		}
		q.Near = &p
		q.RadiusKm = DefaultRadiusKm
	}
	if s := v.Get("radius_km"); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil || r <= 0 {
			return q, fmt.Errorf("invalid radius_km %q", s)
		}
		q.RadiusKm = r
	}
	if s := v.Get("since"); s != "" {
		t, err := parseSince(s, now)
		if err != nil {
			return q, err
		}
		q.Since = t
	}
	if s := v.Get("include_expired"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("invalid include_expired %q", s)
		}
		q.IncludeExpired = b
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		q.Limit = min(n, MaxLimit)
	}
	return q, nil
}

func splitParam(v url.Values, names ...string) []string {
	var out []string
	for _, name := range names {
		for _, raw := range v[name] {
			for _, s := range strings.Split(raw, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func parsePoint(s string) (geo.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Point{}, fmt.Errorf("invalid point %q: want lat,lng", s)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	p := geo.Point{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || !p.Valid() {
		return geo.Point{}, fmt.Errorf("invalid point %q", s)
	}
	return p, nil
}

// parseSince accepts RFC 3339 or a duration back from now such as "6h".
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q", s)
}

// Item is an incident annotated for display.
type Item struct {
	incident.Incident
	Aging      aging.State `json:"aging"`
	Age        string      `json:"age"`
	DistanceKm *float64    `json:"distance_km,omitempty"`
	Proximity  string      `json:"proximity,omitempty"`
}

type Result struct {
	Incidents []Item                  `json:"incidents"`
	Total     int                     `json:"total"`
	Counts    map[incident.Source]int `json:"counts"`
	Sources   []SourceStatus          `json:"sources"`
	// Region echoes the region filter, if any.
	Region      string    `json:"region,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Select returns every incident matching q in display order. q.Limit is
// ignored.
func (a *Aggregator) Select(ctx context.Context, q Query, now time.Time) ([]Item, error) {
	all, err := a.Incidents(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(all, q, a.Policy(), a.opts.Regions, now), nil
}

// Query filters the merged incidents and annotates them with aging state
// as of now.
func (a *Aggregator) Query(ctx context.Context, q Query, now time.Time) (*Result, error) {
	items, err := a.Select(ctx, q, now)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Total:       len(items),
		Counts:      make(map[incident.Source]int, len(incident.Sources)),
		Sources:     a.Status(),
		GeneratedAt: now.UTC(),
	}
	for _, src := range incident.Sources {
		res.Counts[src] = 0
	}
	for _, it := range items {
		res.Counts[it.Source]++
	}
	if q.Region != nil {
		res.Region = q.Region.Slug
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	res.Incidents = items
	return res, nil
}

// Filter applies q to incs and returns the matches in display order:
// nearest first when q.Near is set, otherwise most recent first.
func Filter(incs []incident.Incident, q Query, policy *aging.Policy, table *regions.Table, now time.Time) []Item {
	cats := make(map[incident.Category]bool, len(q.Categories))
	for _, c := range q.Categories {
		cats[c] = true
	}
	srcs := make(map[incident.Source]bool, len(q.Sources))
	for _, s := range q.Sources {
		srcs[s] = true
	}

	var near *geo.BBox
	if q.Near != nil && q.RadiusKm > 0 {
		b := geo.BoundsAround(*q.Near, q.RadiusKm)
		near = &b
	}

	items := []Item{}
	for _, inc := range incs {
		if len(srcs) > 0 && !srcs[inc.Source] {
			continue
		}
		if len(cats) > 0 && !cats[inc.Category] {
			continue
		}
		if q.MinSeverity != "" && inc.Severity.Rank() < q.MinSeverity.Rank() {
			continue
		}
		if q.BBox != nil && !q.BBox.Contains(inc.Location) {
			continue
		}
		if near != nil && !near.Contains(inc.Location) {
			continue
		}
		ref := inc.ReferenceTime()
		if !q.Since.IsZero() && ref.Before(q.Since) {
			continue
		}
		if q.Region != nil && !regionMatch(table, q.Region, &inc) {
			continue
		}

		st := policy.EvaluateIncident(&inc, now)
		if !q.IncludeExpired && (!st.Visible || !inc.Active) {
			continue
		}

		it := Item{Incident: inc, Aging: st, Age: render.Ago(ref, now)}
		if q.Near != nil {
			if !inc.Location.Valid() {
				continue
			}
			d := geo.Haversine(*q.Near, inc.Location)
			if q.RadiusKm > 0 && d > q.RadiusKm {
				continue
			}
			it.DistanceKm = &d
			it.Proximity = geo.ProximityLabel(d)
		}
		items = append(items, it)
	}

	if q.Near != nil {
		sort.SliceStable(items, func(i, j int) bool {
			return *items[i].DistanceKm < *items[j].DistanceKm
		})
	} else {
		sort.SliceStable(items, func(i, j int) bool {
			ti, tj := items[i].ReferenceTime(), items[j].ReferenceTime()
			if ti.Equal(tj) {
				return items[i].ID < items[j].ID
			}
			return ti.After(tj)
		})
	}
	return items
}

func regionMatch(table *regions.Table, r *regions.Region, inc *incident.Incident) bool {
	if inc.Region == r.Slug {
		return true
	}
	return table.Match(r, inc.Suburb, inc.Address+" "+inc.Title, inc.Location)
}
