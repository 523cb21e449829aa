// Package source serves the polygon fetch contract from a GeoJSON file.
//
// Load reads a FeatureCollection and keeps every Polygon and MultiPolygon
// feature. Each polygon part becomes one entry with its envelope; a
// MultiPolygon's parts get ids suffixed "-1", "-2", ... after the first.
// The feature id comes from the GeoJSON id or properties.id, the status from
// properties.status.
//
// Handler answers GET /polygons?minLat=&minLng=&maxLat=&maxLng= with every
// entry whose envelope intersects the box, in file order.
package source
