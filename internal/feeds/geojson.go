package feeds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kidandcat/communityconnect/internal/geo"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	ID         json.RawMessage `json:"id"`
	Geometry   *geometry       `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates any        `json:"coordinates"`
	Geometries  []geometry `json:"geometries"`
}

func decodeCollection(data []byte) (*featureCollection, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode geojson: unexpected type %q", fc.Type)
	}
	return &fc, nil
}

// representativePoint returns the first Point of g, or the mean of all its
// positions when it holds no Point.
func representativePoint(g *geometry) (geo.Point, bool) {
	if g == nil {
		return geo.Point{}, false
	}
	if p, ok := firstPoint(g); ok {
		return p, true
	}
	var all []geo.Point
	collectPositions(g, &all)
	c, ok := geo.Centroid(all)
	if !ok || !c.Valid() {
		return geo.Point{}, false
	}
	return c, true
}

func firstPoint(g *geometry) (geo.Point, bool) {
	switch g.Type {
	case "Point":
		p, ok := position(g.Coordinates)
		return p, ok && p.Valid()
	case "GeometryCollection":
		for i := range g.Geometries {
			if p, ok := firstPoint(&g.Geometries[i]); ok {
				return p, true
			}
		}
	}
	return geo.Point{}, false
}

func collectPositions(g *geometry, out *[]geo.Point) {
	if g.Type == "GeometryCollection" {
		for i := range g.Geometries {
			collectPositions(&g.Geometries[i], out)
		}
		return
	}
	walkCoordinates(g.Coordinates, out)
}

// walkCoordinates descends nested coordinate arrays of any depth and
// appends each valid [lng, lat] position.
func walkCoordinates(c any, out *[]geo.Point) {
	if p, ok := position(c); ok {
		if p.Valid() {
			*out = append(*out, p)
		}
		return
	}
	arr, ok := c.([]any)
	if !ok {
		return
	}
	for _, v := range arr {
		walkCoordinates(v, out)
	}
}

func position(c any) (geo.Point, bool) {
	arr, ok := c.([]any)
	if !ok || len(arr) < 2 {
		return geo.Point{}, false
	}
	lng, ok1 := arr[0].(float64)
	lat, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lng: lng}, true
}

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt decodes a JSON number or numeric string; anything else is zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return nil
	}
	n, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// Queensland does not observe daylight saving.
var brisbane = time.FixedZone("AEST", 10*60*60)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339, a few zone-less local layouts (read as
// Brisbane time) and epoch milliseconds.
func parseTime(s flexString) time.Time {
	v := string(s)
	if v == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		if ms > 1e11 {
			return time.UnixMilli(ms).UTC()
		}
		return time.Unix(ms, 0).UTC()
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, brisbane); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
