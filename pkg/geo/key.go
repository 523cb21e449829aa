package geo

import (
	"fmt"
	"math"
)

// SpatialKey is the coarse cache bucket for a viewport. Distinct boxes that
// share the same whole-degree envelope map to the same key.
type SpatialKey string

// KeyOf builds the key "floor(minLat),floor(minLng),ceil(maxLat),ceil(maxLng)".
func KeyOf(b BoundingBox) SpatialKey {
	b = b.Normalize()
	return SpatialKey(fmt.Sprintf("%d,%d,%d,%d",
		int64(math.Floor(b.MinLat)),
		int64(math.Floor(b.MinLng)),
		int64(math.Ceil(b.MaxLat)),
		int64(math.Ceil(b.MaxLng)),
	))
}

// Key is shorthand for KeyOf(b).
func (b BoundingBox) Key() SpatialKey { return KeyOf(b) }
