// Package viewport drives fetch cycles from map viewport signals.
//
// A Controller owns one map session's state: the PolygonStore, the
// PolygonCache sets and LastBounds. ViewportSettled arms a Debouncer; when
// the quiet period elapses the controller runs Load, which walks the cycle:
//
//  1. compute the box and spatial key of the current viewport
//  2. stop if an interaction is in progress
//  3. stop if the approximate zoom is at or below MinZoom
//  4. stop if the key carries a cache marker
//  5. stop if the box lies within LastBounds (integer-truncated)
//  6. stop if the key was already visited
//  7. split the box and fetch every sub-box concurrently, joining all results
//  8. merge into the store, keep records intersecting the viewport current
//     at merge time, and hand them to the batch loader
//  9. after full delivery, mark the key visited, write the cache marker and
//     set LastBounds
//
// The commit in step 9 is skipped when the batch sequence is aborted or a
// sub-box failed, so a later visit fetches the region again.
//
// The has-check in step 4 and the commit in step 9 are not atomic. Two
// cycles for the same key that overlap can both fetch; the store and the
// rendered set deduplicate by id so nothing is drawn twice.
package viewport
