package geo

import "math"

// DefaultDivisions is the division hint used when callers pass no override.
const DefaultDivisions = 3

// Split tiles b into a grid of sub-boxes for parallel fetching.
//
// divisions is a lower-bound hint: the grid is ceil(sqrt(divisions)) cells on
// each axis, so Split always returns ceil(sqrt(divisions))² boxes (4 for the
// default of 3). Boxes are ordered row by row from MinLat, and within a row
// from MinLng. The last row and column end exactly on b's max edges so the
// union of the result is b with no floating-point gap. A box with a
// zero-extent axis yields zero-extent sub-boxes rather than fewer of them.
func Split(b BoundingBox, divisions int) []BoundingBox {
	if divisions < 1 {
		divisions = 1
	}
	b = b.Normalize()
	n := int(math.Ceil(math.Sqrt(float64(divisions))))
	latStep := b.LatSpan() / float64(n)
	lngStep := b.LngSpan() / float64(n)

	out := make([]BoundingBox, 0, n*n)
	for i := 0; i < n; i++ {
		minLat, maxLat := edge(b.MinLat, b.MaxLat, latStep, i, n)
		for j := 0; j < n; j++ {
			minLng, maxLng := edge(b.MinLng, b.MaxLng, lngStep, j, n)
			out = append(out, BoundingBox{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng})
		}
	}
	return out
}

// edge returns the [lo, hi] interval of cell i out of n along one axis,
// clipped to end.
func edge(start, end, step float64, i, n int) (float64, float64) {
	lo := start + float64(i)*step
	hi := math.Min(lo+step, end)
	if i == n-1 {
		hi = end
	}
	return lo, hi
}
