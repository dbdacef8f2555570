package feeds

import (
	"encoding/json"
	"strings"

	"github.com/kidandcat/communityconnect/internal/incident"
)

type trafficProps struct {
	ID            flexString `json:"id"`
	EventType     string     `json:"event_type"`
	EventSubtype  string     `json:"event_subtype"`
	EventPriority string     `json:"event_priority"`
	Description   string     `json:"description"`
	Advice        string     `json:"advice"`
	RoadSummary   struct {
		RoadName string `json:"road_name"`
		Locality string `json:"locality"`
	} `json:"road_summary"`
	Status      string     `json:"status"`
	Published   flexString `json:"published"`
	LastUpdated flexString `json:"last_updated"`
	WebLink     string     `json:"web_link"`
}

func trafficCategory(eventType string) incident.Category {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "roadworks":
		return incident.CategoryRoadworks
	case "flooding":
		return incident.CategoryFlood
	case "special event":
		return incident.CategoryCommunity
	default:
		// Crash, Hazard, Congestion and anything new.
		return incident.CategoryTraffic
	}
}

func trafficSeverity(priority string) incident.Severity {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "red alert":
		return incident.SeverityCritical
	case "high":
		return incident.SeverityHigh
	case "low":
		return incident.SeverityLow
	default:
		return incident.SeverityMedium
	}
}

func trafficActive(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "closed", "expired":
		return false
	}
	return true
}

// ParseTraffic converts a QLD Traffic events GeoJSON document.
func ParseTraffic(data []byte) (Batch, error) {
	fc, err := decodeCollection(data)
	if err != nil {
		return Batch{}, err
	}

	var b Batch
	for _, f := range fc.Features {
		var p trafficProps
		if err := json.Unmarshal(f.Properties, &p); err != nil {
			b.Skipped++
			continue
		}
		if p.ID == "" {
			var fid flexString
			if json.Unmarshal(f.ID, &fid) == nil {
				p.ID = fid
			}
		}
		loc, ok := representativePoint(f.Geometry)
		if !ok || p.ID == "" {
			b.Skipped++
			continue
		}

		title := strings.TrimSpace(p.EventType)
		if p.EventSubtype != "" && !strings.EqualFold(p.EventSubtype, p.EventType) {
			title += " (" + p.EventSubtype + ")"
		}
		if road := strings.TrimSpace(p.RoadSummary.RoadName); road != "" {
			title += ": " + road
		}
		if title == "" {
			title = "Traffic event"
		}

		desc := strings.TrimSpace(p.Description)
		if advice := strings.TrimSpace(p.Advice); advice != "" {
			if desc != "" {
				desc += "\n\n"
			}
			desc += advice
		}

		var address []string
		for _, s := range []string{p.RoadSummary.RoadName, p.RoadSummary.Locality} {
			if s = strings.TrimSpace(s); s != "" {
				address = append(address, s)
			}
		}

		published := parseTime(p.Published)
		updated := parseTime(p.LastUpdated)
		if updated.IsZero() {
			updated = published
		}

		b.Incidents = append(b.Incidents, incident.Incident{
			ID:          incident.MakeID(incident.SourceTraffic, string(p.ID)),
			Source:      incident.SourceTraffic,
			SourceID:    string(p.ID),
			Title:       title,
			Description: desc,
			Category:    trafficCategory(p.EventType),
			Severity:    trafficSeverity(p.EventPriority),
			Status:      p.Status,
			Location:    loc,
			Address:     strings.Join(address, ", "),
			Suburb:      strings.TrimSpace(p.RoadSummary.Locality),
			PublishedAt: published,
			UpdatedAt:   updated,
			Active:      trafficActive(p.Status),
			URL:         p.WebLink,
		})
	}
	return b, nil
}
