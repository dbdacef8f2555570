package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kidandcat/communityconnect/internal/cluster"
	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/feeds"
	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/regions"
)

// feedEntry is one slot of the interleaved feed: an incident or a
// sponsored placement.
type feedEntry struct {
	Type     string      `json:"type"`
	Incident *feeds.Item `json:"incident,omitempty"`
	Ad       *db.Ad      `json:"ad,omitempty"`
}

type unifiedResponse struct {
	*feeds.Result
	Feed []feedEntry `json:"feed,omitempty"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) (*feeds.Result, feeds.Query, bool) {
	q, err := feeds.ParseQuery(r.URL.Query(), s.regions, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, q, false
	}
	return s.run(w, r, q)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, q feeds.Query) (*feeds.Result, feeds.Query, bool) {
	res, err := s.agg.Query(r.Context(), q, s.now())
	if err != nil {
		s.fail(w, r, "query incidents", err)
		return nil, q, false
	}
	return res, q, true
}

func (s *Server) handleUnified(w http.ResponseWriter, r *http.Request) {
	res, q, ok := s.query(w, r)
	if !ok {
		return
	}
	out := unifiedResponse{Result: res}

	if v := r.URL.Query().Get("with_ads"); v == "1" || v == "true" {
		region := ""
		if q.Region != nil {
			region = q.Region.Slug
		}
		feed, err := s.interleave(r, res.Incidents, region)
		if err != nil {
			s.fail(w, r, "pick placements", err)
			return
		}
		out.Feed = feed
	}
	writeJSON(w, http.StatusOK, out)
}

// interleave places one sponsored item after every ads.interval
// incidents, for as long as placements last.
func (s *Server) interleave(r *http.Request, items []feeds.Item, region string) ([]feedEntry, error) {
	every := s.cfg.Ads.Interval
	if every <= 0 {
		every = 5
	}
	ads, err := db.PickPlacements(r.Context(), region, len(items)/every)
	if err != nil {
		return nil, err
	}

	feed := make([]feedEntry, 0, len(items)+len(ads))
	next := 0
	for i := range items {
		feed = append(feed, feedEntry{Type: "incident", Incident: &items[i]})
		if (i+1)%every == 0 && next < len(ads) {
			feed = append(feed, feedEntry{Type: "ad", Ad: &ads[next]})
			next++
		}
	}
	return feed, nil
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	zoom, err := strconv.Atoi(v.Get("zoom"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "zoom required")
		return
	}
	q, err := feeds.ParseQuery(v, s.regions, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// every match is clustered; limit only applies to list views
	items, err := s.agg.Select(r.Context(), q, s.now())
	if err != nil {
		s.fail(w, r, "query incidents", err)
		return
	}

	bbox := geo.World
	if q.BBox != nil {
		bbox = *q.BBox
	}
	points := make([]cluster.Point, 0, len(items))
	for _, it := range items {
		points = append(points, cluster.Point{
			ID:       it.ID,
			Location: it.Location,
			Category: it.Category,
			Severity: it.Severity,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zoom":    zoom,
		"total":   len(items),
		"markers": s.cluster.Cluster(points, zoom, bbox),
	})
}

// handleNearby accepts either near=lat,lng or separate lat and lng.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	if v.Get("near") == "" && v.Get("lat") != "" {
		v.Set("near", v.Get("lat")+","+v.Get("lng"))
	}
	q, err := feeds.ParseQuery(v, s.regions, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Near == nil {
		writeError(w, http.StatusBadRequest, "location required")
		return
	}
	res, _, ok := s.run(w, r, q)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type regionSummary struct {
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	Center   geo.Point `json:"center"`
	RadiusKm float64   `json:"radius_km"`
	Suburbs  int       `json:"suburbs"`
}

func summarize(r *regions.Region) regionSummary {
	return regionSummary{
		Slug:     r.Slug,
		Name:     r.Name,
		Center:   r.Center,
		RadiusKm: r.RadiusKm,
		Suburbs:  len(r.Suburbs),
	}
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	all := s.regions.All()
	out := make([]regionSummary, 0, len(all))
	for _, reg := range all {
		out = append(out, summarize(reg))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRegionLookup resolves a region from suburb, free text or
// coordinates, in that order of preference.
func (s *Server) handleRegionLookup(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	suburb := strings.TrimSpace(v.Get("suburb"))
	text := strings.TrimSpace(v.Get("q"))

	var p geo.Point
	if v.Get("lat") != "" || v.Get("lng") != "" {
		lat, err1 := strconv.ParseFloat(v.Get("lat"), 64)
		lng, err2 := strconv.ParseFloat(v.Get("lng"), 64)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "invalid coordinates")
			return
		}
		p = geo.Point{Lat: lat, Lng: lng}
	}
	if suburb == "" && text == "" && !p.Valid() {
		writeError(w, http.StatusBadRequest, "suburb, q or lat/lng required")
		return
	}

	reg := s.regions.Resolve(suburb, text, p)
	if reg == nil {
		writeError(w, http.StatusNotFound, "no matching region")
		return
	}
	writeJSON(w, http.StatusOK, summarize(reg))
}

func (s *Server) handleFeedStatus(w http.ResponseWriter, r *http.Request) {
	policy := s.agg.Policy()
	lifetimes := make(map[incident.Category]float64, len(incident.Categories))
	for _, c := range incident.Categories {
		lifetimes[c] = policy.Lifetime(c, incident.SeverityMedium).Hours()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sources":        s.agg.Status(),
		"lifetime_hours": lifetimes,
	})
}
