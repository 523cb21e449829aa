package polygon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrMalformed is wrapped by every Decode error.
var ErrMalformed = errors.New("polygon: malformed response")

// Response is one element of the upstream JSON array:
//
//	{"geometry": {"type": "Polygon", "coordinates": [[[lng, lat], ...]]},
//	 "status": 3, "id": "abc"}
type Response struct {
	Geometry *geojson.Geometry `json:"geometry"`
	Status   int               `json:"status"`
	ID       string            `json:"id"`
}

// Decode reads a JSON array of Response values from r and converts each
// Polygon into a Record. Only the first ring of each polygon is kept.
// Entries whose geometry is missing, is not a Polygon, or has an empty outer
// ring are skipped; they do not fail the whole response.
func Decode(r io.Reader) ([]Record, error) {
	var raw []Response
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	out := make([]Record, 0, len(raw))
	for _, resp := range raw {
		if rec, ok := resp.Record(); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Record converts a single response entry. ok is false when the entry
// carries no usable outer ring.
func (r Response) Record() (Record, bool) {
	if r.Geometry == nil || r.ID == "" {
		return Record{}, false
	}
	poly, ok := r.Geometry.Coordinates.(orb.Polygon)
	if !ok || len(poly) == 0 || len(poly[0]) == 0 {
		return Record{}, false
	}
	return NewRecord(r.ID, r.Status, poly[0]), true
}

// Encode returns the wire form of rec, the inverse of Response.Record.
func Encode(rec Record) Response {
	return Response{
		Geometry: geojson.NewGeometry(orb.Polygon{rec.Ring}),
		Status:   rec.Status,
		ID:       rec.ID,
	}
}
