// Package cluster groups nearby map markers into aggregate markers for a
// given zoom level, the way the map view draws them.
package cluster

import (
	"math"
	"sort"
	"strconv"

	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
)

const (
	MinZoom = 0
	MaxZoom = 22
)

type Options struct {
	// Radius is the cluster radius in pixels at the tile extent.
	Radius    float64
	Extent    float64
	MinPoints int
	// MaxZoom is the last zoom level at which points are clustered.
	MaxZoom int
}

func DefaultOptions() Options {
	return Options{Radius: 60, Extent: 256, MinPoints: 2, MaxZoom: 16}
}

type Point struct {
	ID       string
	Location geo.Point
	Category incident.Category
	Severity incident.Severity
}

type Marker struct {
	ID            string                    `json:"id"`
	Location      geo.Point                 `json:"location"`
	Count         int                       `json:"count"`
	Cluster       bool                      `json:"cluster"`
	PointID       string                    `json:"point_id,omitempty"`
	Members       []string                  `json:"members,omitempty"`
	Categories    map[incident.Category]int `json:"categories"`
	MaxSeverity   incident.Severity         `json:"max_severity"`
	ExpansionZoom int                       `json:"expansion_zoom,omitempty"`
}

type Clusterer struct {
	opts Options
}

func New(opts Options) *Clusterer {
	d := DefaultOptions()
	if opts.Radius <= 0 {
		opts.Radius = d.Radius
	}
	if opts.Extent <= 0 {
		opts.Extent = d.Extent
	}
	if opts.MinPoints < 1 {
		opts.MinPoints = d.MinPoints
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = d.MaxZoom
	}
	return &Clusterer{opts: opts}
}

func clampZoom(z int) int {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// project returns Web Mercator pixel coordinates at zoom z.
func (c *Clusterer) project(p geo.Point, z int) (float64, float64) {
	scale := c.opts.Extent * math.Exp2(float64(z))
	x := (p.Lng + 180) / 360 * scale

	lat := math.Max(-85.05112878, math.Min(85.05112878, p.Lat))
	sin := math.Sin(lat * math.Pi / 180)
	y := (0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi) * scale
	return x, y
}

type cellKey struct{ x, y int64 }

// group partitions points into clusters at zoom z. Each entry holds
// indexes into pts, the first being the point that seeded the group.
func (c *Clusterer) group(pts []Point, z int) [][]int {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	grid := make(map[cellKey][]int)
	cell := c.opts.Radius
	for i, p := range pts {
		xs[i], ys[i] = c.project(p.Location, z)
		k := cellKey{int64(math.Floor(xs[i] / cell)), int64(math.Floor(ys[i] / cell))}
		grid[k] = append(grid[k], i)
	}

	assigned := make([]bool, len(pts))
	r2 := c.opts.Radius * c.opts.Radius
	var groups [][]int
	for i := range pts {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []int{i}
		cx := int64(math.Floor(xs[i] / cell))
		cy := int64(math.Floor(ys[i] / cell))
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for _, j := range grid[cellKey{cx + dx, cy + dy}] {
					if assigned[j] {
						continue
					}
					ddx, ddy := xs[j]-xs[i], ys[j]-ys[i]
					if ddx*ddx+ddy*ddy <= r2 {
						assigned[j] = true
						members = append(members, j)
					}
				}
			}
		}
		// keep members in input order so ids are stable
		sort.Ints(members[1:])
		groups = append(groups, members)
	}
	return groups
}

// Cluster returns the markers for points inside bbox at zoom. Points with
// invalid coordinates are dropped.
func (c *Clusterer) Cluster(points []Point, zoom int, bbox geo.BBox) []Marker {
	zoom = clampZoom(zoom)
	var pts []Point
	for _, p := range points {
		if p.Location.Valid() && bbox.Contains(p.Location) {
			pts = append(pts, p)
		}
	}
	if len(pts) == 0 {
		return []Marker{}
	}

	if zoom > c.opts.MaxZoom {
		markers := make([]Marker, 0, len(pts))
		for _, p := range pts {
			markers = append(markers, single(p))
		}
		return markers
	}

	var markers []Marker
	for _, g := range c.group(pts, zoom) {
		if len(g) < c.opts.MinPoints {
			for _, i := range g {
				markers = append(markers, single(pts[i]))
			}
			continue
		}
		members := make([]Point, len(g))
		for k, i := range g {
			members[k] = pts[i]
		}
		markers = append(markers, c.aggregate(members, zoom))
	}
	return markers
}

func single(p Point) Marker {
	return Marker{
		ID:          p.ID,
		Location:    p.Location,
		Count:       1,
		PointID:     p.ID,
		Categories:  map[incident.Category]int{p.Category: 1},
		MaxSeverity: incident.NormalizeSeverity(string(p.Severity)),
	}
}

func (c *Clusterer) aggregate(members []Point, zoom int) Marker {
	m := Marker{
		ID:          "c" + strconv.Itoa(zoom) + ":" + members[0].ID,
		Count:       len(members),
		Cluster:     true,
		Categories:  make(map[incident.Category]int),
		MaxSeverity: incident.SeverityLow,
	}
	locs := make([]geo.Point, len(members))
	for i, p := range members {
		locs[i] = p.Location
		m.Members = append(m.Members, p.ID)
		m.Categories[p.Category]++
		m.MaxSeverity = incident.MaxSeverity(m.MaxSeverity, incident.NormalizeSeverity(string(p.Severity)))
	}
	m.Location, _ = geo.Centroid(locs)
	m.ExpansionZoom = c.expansionZoom(members, zoom)
	return m
}

// expansionZoom is the first zoom above the current one where members stop
// forming a single group.
func (c *Clusterer) expansionZoom(members []Point, zoom int) int {
	for z := zoom + 1; z <= c.opts.MaxZoom; z++ {
		if len(c.group(members, z)) > 1 {
			return z
		}
	}
	return c.opts.MaxZoom + 1
}
