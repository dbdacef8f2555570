package feeds

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kidandcat/communityconnect/internal/incident"
)

type emergencyProps struct {
	UniqueID         flexString `json:"UniqueID"`
	ObjectID         flexString `json:"OBJECTID"`
	GroupedType      string     `json:"GroupedType"`
	Location         string     `json:"Location"`
	Locality         string     `json:"Locality"`
	CurrentStatus    string     `json:"CurrentStatus"`
	LastUpdate       flexString `json:"LastUpdate"`
	ResponseDate     flexString `json:"Response_Date"`
	VehiclesAssigned flexInt    `json:"VehiclesAssigned"`
}

func emergencyCategory(groupedType string) incident.Category {
	t := strings.ToLower(groupedType)
	switch {
	case strings.Contains(t, "flood"), strings.Contains(t, "swiftwater"):
		return incident.CategoryFlood
	case strings.Contains(t, "fire"):
		return incident.CategoryFire
	default:
		// Rescue, Medical, Hazmat and unclassified calls.
		return incident.CategoryEmergency
	}
}

// emergencySeverity grades by vehicles assigned, then lets the incident
// status raise or cap it.
func emergencySeverity(vehicles int, status string) incident.Severity {
	sev := incident.SeverityMedium
	switch {
	case vehicles >= 5:
		sev = incident.SeverityCritical
	case vehicles >= 3:
		sev = incident.SeverityHigh
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "going":
		sev = incident.MaxSeverity(sev, incident.SeverityHigh)
	case "patrolled", "contained":
		if sev.Rank() > incident.SeverityMedium.Rank() {
			sev = incident.SeverityMedium
		}
	}
	return sev
}

func emergencyFinished(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "returned", "closed":
		return true
	}
	return false
}

// ParseEmergency converts the QFES current incidents GeoJSON document.
// Incidents crews have returned from are dropped.
func ParseEmergency(data []byte) (Batch, error) {
	fc, err := decodeCollection(data)
	if err != nil {
		return Batch{}, err
	}

	var b Batch
	for _, f := range fc.Features {
		var p emergencyProps
		if err := json.Unmarshal(f.Properties, &p); err != nil {
			b.Skipped++
			continue
		}
		if emergencyFinished(p.CurrentStatus) {
			continue
		}
		id := p.UniqueID
		if id == "" {
			id = p.ObjectID
		}
		loc, ok := representativePoint(f.Geometry)
		if !ok || id == "" {
			b.Skipped++
			continue
		}

		kind := strings.TrimSpace(p.GroupedType)
		if kind == "" {
			kind = "Emergency"
		}
		title := kind
		if locality := strings.TrimSpace(p.Locality); locality != "" {
			title += ", " + locality
		}

		desc := ""
		if p.CurrentStatus != "" {
			desc = "Status: " + p.CurrentStatus + "."
		}
		if p.VehiclesAssigned > 0 {
			if desc != "" {
				desc += " "
			}
			desc += fmt.Sprintf("%d vehicles assigned.", p.VehiclesAssigned)
		}

		published := parseTime(p.ResponseDate)
		updated := parseTime(p.LastUpdate)
		if updated.IsZero() {
			updated = published
		}
		if published.IsZero() {
			published = updated
		}

		b.Incidents = append(b.Incidents, incident.Incident{
			ID:          incident.MakeID(incident.SourceEmergency, string(id)),
			Source:      incident.SourceEmergency,
			SourceID:    string(id),
			Title:       title,
			Description: desc,
			Category:    emergencyCategory(p.GroupedType),
			Severity:    emergencySeverity(int(p.VehiclesAssigned), p.CurrentStatus),
			Status:      p.CurrentStatus,
			Location:    loc,
			Address:     strings.TrimSpace(p.Location),
			Suburb:      strings.TrimSpace(p.Locality),
			PublishedAt: published,
			UpdatedAt:   updated,
			Active:      true,
		})
	}
	return b, nil
}
