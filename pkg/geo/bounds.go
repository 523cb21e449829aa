package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// maxLatSpan is the full latitude range of the globe, used by ApproxZoom.
const maxLatSpan = 180.0

// BoundingBox is a geographic rectangle in degrees.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// New returns the normalized box spanning the two corners.
func New(minLat, minLng, maxLat, maxLng float64) BoundingBox {
	return BoundingBox{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}.Normalize()
}

// Normalize swaps any inverted axis so that min <= max on both.
func (b BoundingBox) Normalize() BoundingBox {
	return BoundingBox{
		MinLat: math.Min(b.MinLat, b.MaxLat),
		MaxLat: math.Max(b.MinLat, b.MaxLat),
		MinLng: math.Min(b.MinLng, b.MaxLng),
		MaxLng: math.Max(b.MinLng, b.MaxLng),
	}
}

// LatSpan returns the box height in degrees.
func (b BoundingBox) LatSpan() float64 { return b.MaxLat - b.MinLat }

// LngSpan returns the box width in degrees.
func (b BoundingBox) LngSpan() float64 { return b.MaxLng - b.MinLng }

// Bound converts b into an orb.Bound (X = lng, Y = lat).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLng, b.MinLat},
		Max: orb.Point{b.MaxLng, b.MaxLat},
	}
}

// FromBound converts an orb.Bound back into a BoundingBox.
func FromBound(ob orb.Bound) BoundingBox {
	return New(ob.Min.Lat(), ob.Min.Lon(), ob.Max.Lat(), ob.Max.Lon())
}

// Intersects reports whether the two boxes share any point, edges included.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Bound().Intersects(o.Bound())
}

// Contains reports whether the coordinate lies inside b, edges included.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return b.Bound().Contains(orb.Point{lng, lat})
}

// Within reports whether b lies inside outer once both are truncated to whole
// degrees. Truncation is toward zero, so the check is deliberately coarse:
// a box that pokes a fraction of a degree past outer still counts as inside.
func (b BoundingBox) Within(outer BoundingBox) bool {
	return trunc(b.MinLat) >= trunc(outer.MinLat) &&
		trunc(b.MinLng) >= trunc(outer.MinLng) &&
		trunc(b.MaxLat) <= trunc(outer.MaxLat) &&
		trunc(b.MaxLng) <= trunc(outer.MaxLng)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g,%g → %g,%g]", b.MinLat, b.MinLng, b.MaxLat, b.MaxLng)
}

// ApproxZoom estimates the web-map zoom level showing b: log2(180 / latSpan),
// truncated. A zero or negative span is treated as maximally zoomed in.
func ApproxZoom(b BoundingBox) int {
	span := b.Normalize().LatSpan()
	if span <= 0 {
		return math.MaxInt32
	}
	return int(math.Log2(maxLatSpan / span))
}

func trunc(v float64) int64 { return int64(v) }
