// Package geo holds the bounding-box primitives used by the polygon loader.
//
//   - BoundingBox: {MinLat, MinLng, MaxLat, MaxLng}, normalized so min <= max
//   - SpatialKey: coarse cache bucket: floor(mins), ceil(maxes) in whole degrees
//   - Split: cuts a box into ceil(sqrt(n))² sub-boxes for parallel fetching
//   - ApproxZoom: web-map zoom level estimated from a box's latitude span
//
// Boxes convert to and from orb.Bound. orb points are [lng, lat], so the
// conversion swaps axis order; everything else in this package is lat-first.
package geo
