// Package polygon defines the polygon records fetched for a map session,
// the wire decoder for the upstream response, and the append-only Store
// that owns them.
package polygon

import (
	"github.com/paulmach/orb"

	"github.com/polyview/polyview/pkg/geo"
)

// Record is one fetched polygon. Records are immutable once decoded.
type Record struct {
	ID     string
	Status int

	// Ring is the outer boundary as [lng, lat] points. Holes are not kept.
	Ring orb.Ring

	// Bounds is the envelope of Ring.
	Bounds geo.BoundingBox
}

// NewRecord builds a Record and derives its bounds from ring.
func NewRecord(id string, status int, ring orb.Ring) Record {
	return Record{
		ID:     id,
		Status: status,
		Ring:   ring,
		Bounds: geo.FromBound(ring.Bound()),
	}
}

// IDs returns the ids of recs in order.
func IDs(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
