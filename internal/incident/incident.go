// Package incident defines the unified incident record that every feed,
// user post and map marker is normalized into.
package incident

import (
	"strings"
	"time"

	"github.com/kidandcat/communityconnect/internal/geo"
)

type Source string

const (
	SourceTraffic   Source = "traffic"
	SourceEmergency Source = "emergency"
	SourceUser      Source = "user"
)

// Sources lists every source in display order.
var Sources = []Source{SourceTraffic, SourceEmergency, SourceUser}

func ParseSource(s string) (Source, bool) {
	for _, src := range Sources {
		if strings.EqualFold(s, string(src)) {
			return src, true
		}
	}
	return "", false
}

type Category string

const (
	CategoryTraffic    Category = "traffic"
	CategoryRoadworks  Category = "roadworks"
	CategoryFire       Category = "fire"
	CategoryFlood      Category = "flood"
	CategoryEmergency  Category = "emergency"
	CategoryCrime      Category = "crime"
	CategorySuspicious Category = "suspicious"
	CategoryWeather    Category = "weather"
	CategoryWildlife   Category = "wildlife"
	CategoryPets       Category = "pets"
	CategoryLostFound  Category = "lost_found"
	CategoryCommunity  Category = "community"
	CategoryOther      Category = "other"
)

var Categories = []Category{
	CategoryTraffic, CategoryRoadworks, CategoryFire, CategoryFlood,
	CategoryEmergency, CategoryCrime, CategorySuspicious, CategoryWeather,
	CategoryWildlife, CategoryPets, CategoryLostFound, CategoryCommunity,
	CategoryOther,
}

// ParseCategory accepts the canonical names plus a few spellings the
// client has historically sent ("lost-found", "Lost & Found").
func ParseCategory(s string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("&", "", "-", "_", " ", "_").Replace(key)
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	for _, c := range Categories {
		if key == string(c) {
			return c, true
		}
	}
	return "", false
}

// NormalizeCategory maps unknown categories to CategoryOther.
func NormalizeCategory(s string) Category {
	if c, ok := ParseCategory(s); ok {
		return c
	}
	return CategoryOther
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities; unknown values rank as medium.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityMedium]
}

func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	_, ok := severityRank[sev]
	return sev, ok
}

func NormalizeSeverity(s string) Severity {
	if sev, ok := ParseSeverity(s); ok {
		return sev
	}
	return SeverityMedium
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type Incident struct {
	ID          string    `json:"id"`
	Source      Source    `json:"source"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Status      string    `json:"status"`
	Location    geo.Point `json:"location"`
	Address     string    `json:"address,omitempty"`
	Suburb      string    `json:"suburb,omitempty"`
	Region      string    `json:"region,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Active is set when an agency feed still reports the incident as live.
	Active   bool   `json:"active"`
	URL      string `json:"url,omitempty"`
	AuthorID int64  `json:"author_id,omitempty"`
}

// MakeID builds the unified id "<source>:<source id>".
func MakeID(src Source, sourceID string) string {
	return string(src) + ":" + sourceID
}

// ReferenceTime is the instant aging is measured from: live agency
// incidents age from their last update, everything else from publication.
func (i *Incident) ReferenceTime() time.Time {
	if i.Active && i.Source != SourceUser && !i.UpdatedAt.IsZero() {
		return i.UpdatedAt
	}
	if i.PublishedAt.IsZero() {
		return i.UpdatedAt
	}
	return i.PublishedAt
}
