// Package regions maps Queensland suburbs and coordinates onto the named
// regions the feed is filtered by.
package regions

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/kidandcat/communityconnect/internal/geo"
)

//go:embed regions.yaml
var defaultTable []byte

type Region struct {
	Slug     string    `yaml:"slug" json:"slug"`
	Name     string    `yaml:"name" json:"name"`
	Center   geo.Point `yaml:"center" json:"center"`
	RadiusKm float64   `yaml:"radius_km" json:"radius_km"`
	Suburbs  []string  `yaml:"suburbs" json:"suburbs"`
}

// Contains reports whether p lies within the region's radius.
func (r *Region) Contains(p geo.Point) bool {
	return p.Valid() && geo.Haversine(r.Center, p) <= r.RadiusKm
}

type Table struct {
	regions  []*Region
	bySlug   map[string]*Region
	bySuburb map[string]*Region
	// suburb names sorted longest first for free-text matching
	names []string
}

// Parse builds a table from YAML. Region order in the document decides
// which region owns a suburb listed more than once.
func Parse(data []byte) (*Table, error) {
	var regions []*Region
	if err := yaml.Unmarshal(data, &regions); err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}
	t := &Table{
		bySlug:   make(map[string]*Region),
		bySuburb: make(map[string]*Region),
	}
	for _, r := range regions {
		if r.Slug == "" {
			return nil, fmt.Errorf("region %q has no slug", r.Name)
		}
		if _, dup := t.bySlug[r.Slug]; dup {
			return nil, fmt.Errorf("duplicate region slug %q", r.Slug)
		}
		if !r.Center.Valid() || r.RadiusKm <= 0 {
			return nil, fmt.Errorf("region %s needs a center and a positive radius", r.Slug)
		}
		t.regions = append(t.regions, r)
		t.bySlug[r.Slug] = r
		for _, s := range r.Suburbs {
			key := normalize(s)
			if key == "" {
				continue
			}
			if _, taken := t.bySuburb[key]; taken {
				continue
			}
			t.bySuburb[key] = r
			t.names = append(t.names, key)
		}
	}
	sort.SliceStable(t.names, func(i, j int) bool { return len(t.names[i]) > len(t.names[j]) })
	return t, nil
}

var (
	defaultOnce sync.Once
	defaultTbl  *Table
)

// Default returns the embedded Queensland table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultTable)
		if err != nil {
			panic(err)
		}
		defaultTbl = t
	})
	return defaultTbl
}

func (t *Table) All() []*Region { return t.regions }

func (t *Table) Get(slug string) *Region { return t.bySlug[strings.ToLower(slug)] }

// FindBySuburb matches a suburb name exactly, ignoring case and spacing.
func (t *Table) FindBySuburb(suburb string) *Region {
	return t.bySuburb[normalize(suburb)]
}

// FindByPoint returns the region whose center is closest to p among those
// whose radius covers it.
func (t *Table) FindByPoint(p geo.Point) *Region {
	if !p.Valid() {
		return nil
	}
	var best *Region
	bestDist := math.Inf(1)
	for _, r := range t.regions {
		d := geo.Haversine(r.Center, p)
		if d <= r.RadiusKm && d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}

// FindInText returns the region of the longest known suburb that appears
// as whole words in free text such as "Bruce Hwy, Kawana Waters".
func (t *Table) FindInText(text string) (*Region, string) {
	hay := " " + normalize(text) + " "
	if strings.TrimSpace(hay) == "" {
		return nil, ""
	}
	for _, name := range t.names {
		if strings.Contains(hay, " "+name+" ") {
			return t.bySuburb[name], name
		}
	}
	return nil, ""
}

// Resolve picks the region for an incident: explicit suburb first, then a
// suburb mentioned in the location text, then the coordinates.
func (t *Table) Resolve(suburb, location string, p geo.Point) *Region {
	if r := t.FindBySuburb(suburb); r != nil {
		return r
	}
	if r, _ := t.FindInText(location); r != nil {
		return r
	}
	return t.FindByPoint(p)
}

// Match reports whether an incident described by suburb, location and p
// belongs to r. Points inside r's radius match even when the text resolves
// elsewhere, so border incidents show up on both sides.
func (t *Table) Match(r *Region, suburb, location string, p geo.Point) bool {
	if r == nil {
		return true
	}
	if got := t.Resolve(suburb, location, p); got != nil && got.Slug == r.Slug {
		return true
	}
	return r.Contains(p)
}

// normalize lower-cases, turns punctuation into spaces and collapses runs
// of whitespace.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
