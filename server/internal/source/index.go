package source

import (
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/polyview/polyview/pkg/geo"
	"github.com/polyview/polyview/pkg/polygon"
)

type entry struct {
	rec   polygon.Record
	bound geo.BoundingBox
}

// Index holds the polygons of one GeoJSON file. It is read-only after
// construction and safe for concurrent use.
type Index struct {
	entries []entry
	skipped int
}

// Load parses the FeatureCollection at path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: read %q: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("source: parse geojson: %w", err)
	}
	return NewIndex(fc), nil
}

// NewIndex indexes the polygon features of fc. Features with other
// geometries, or without an id, are counted in Skipped.
func NewIndex(fc *geojson.FeatureCollection) *Index {
	idx := &Index{}
	if fc == nil {
		return idx
	}
	for i, f := range fc.Features {
		id := featureID(f)
		if id == "" {
			id = strconv.Itoa(i)
		}
		status := intProp(f.Properties, "status")

		var parts []orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			parts = []orb.Polygon{g}
		case orb.MultiPolygon:
			parts = g
		default:
			idx.skipped++
			continue
		}
		for n, p := range parts {
			if len(p) == 0 || len(p[0]) == 0 {
				idx.skipped++
				continue
			}
			pid := id
			if n > 0 {
				pid = fmt.Sprintf("%s-%d", id, n)
			}
			rec := polygon.NewRecord(pid, status, p[0])
			idx.entries = append(idx.entries, entry{rec: rec, bound: rec.Bounds})
		}
	}
	return idx
}

// Len returns the number of indexed polygons.
func (x *Index) Len() int { return len(x.entries) }

// Skipped returns how many features or parts were not indexed.
func (x *Index) Skipped() int { return x.skipped }

// Query returns the records whose envelope intersects box.
func (x *Index) Query(box geo.BoundingBox) []polygon.Record {
	box = box.Normalize()
	out := make([]polygon.Record, 0)
	for _, e := range x.entries {
		if e.bound.Intersects(box) {
			out = append(out, e.rec)
		}
	}
	return out
}

func featureID(f *geojson.Feature) string {
	switch v := f.ID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	switch v := f.Properties["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func intProp(p geojson.Properties, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
