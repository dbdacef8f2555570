// Package aging computes how far through its useful life an incident is,
// which drives marker opacity and when an incident drops off the feed.
package aging

import (
	"fmt"
	"time"

	"github.com/kidandcat/communityconnect/internal/incident"
)

const (
	DefaultMinOpacity = 0.3
	StaleProgress     = 0.75
	FreshWindow       = 30 * time.Minute
)

// DefaultHours is the medium-severity lifetime per category.
var DefaultHours = map[incident.Category]float64{
	incident.CategoryTraffic:    4,
	incident.CategoryRoadworks:  72,
	incident.CategoryFire:       12,
	incident.CategoryFlood:      24,
	incident.CategoryEmergency:  6,
	incident.CategoryCrime:      24,
	incident.CategorySuspicious: 12,
	incident.CategoryWeather:    12,
	incident.CategoryWildlife:   24,
	incident.CategoryPets:       72,
	incident.CategoryLostFound:  168,
	incident.CategoryCommunity:  72,
	incident.CategoryOther:      24,
}

var SeverityMultiplier = map[incident.Severity]float64{
	incident.SeverityLow:      0.5,
	incident.SeverityMedium:   1.0,
	incident.SeverityHigh:     1.5,
	incident.SeverityCritical: 2.0,
}

// Policy is immutable once built; swap the whole value to change it.
type Policy struct {
	hours      map[incident.Category]float64
	minOpacity float64
}

// NewPolicy builds a policy from the defaults with per-category overrides
// (in hours). Overrides for unknown categories or non-positive values are
// rejected.
func NewPolicy(overrides map[string]float64, minOpacity float64) (*Policy, error) {
	hours := make(map[incident.Category]float64, len(DefaultHours))
	for c, h := range DefaultHours {
		hours[c] = h
	}
	for name, h := range overrides {
		c, ok := incident.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("aging override for unknown category %q", name)
		}
		if h <= 0 {
			return nil, fmt.Errorf("aging override for %s must be positive, got %v", c, h)
		}
		hours[c] = h
	}
	if minOpacity < 0 || minOpacity > 1 {
		return nil, fmt.Errorf("min opacity must be within [0,1], got %v", minOpacity)
	}
	return &Policy{hours: hours, minOpacity: minOpacity}, nil
}

// Default returns the built-in policy.
func Default() *Policy {
	p, _ := NewPolicy(nil, DefaultMinOpacity)
	return p
}

func (p *Policy) Lifetime(c incident.Category, s incident.Severity) time.Duration {
	h, ok := p.hours[c]
	if !ok {
		h = p.hours[incident.CategoryOther]
	}
	mult, ok := SeverityMultiplier[s]
	if !ok {
		mult = 1
	}
	return time.Duration(h * mult * float64(time.Hour))
}

type State struct {
	Progress  float64   `json:"progress"`
	Opacity   float64   `json:"opacity"`
	Visible   bool      `json:"visible"`
	Stale     bool      `json:"stale"`
	Fresh     bool      `json:"fresh"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Evaluate ages an incident of the given category and severity whose
// clock started at ref. A ref in the future counts as age zero.
func (p *Policy) Evaluate(c incident.Category, s incident.Severity, ref, now time.Time) State {
	life := p.Lifetime(c, s)
	age := now.Sub(ref)
	if age < 0 {
		age = 0
	}

	progress := float64(age) / float64(life)
	if progress > 1 {
		progress = 1
	}

	st := State{
		Progress:  progress,
		Visible:   progress < 1,
		Stale:     progress >= StaleProgress,
		Fresh:     age < FreshWindow,
		ExpiresAt: ref.Add(life),
	}
	if st.Visible {
		st.Opacity = 1 - progress*(1-p.minOpacity)
	}
	return st
}

// EvaluateIncident ages inc from its reference time.
func (p *Policy) EvaluateIncident(inc *incident.Incident, now time.Time) State {
	return p.Evaluate(inc.Category, inc.Severity, inc.ReferenceTime(), now)
}
