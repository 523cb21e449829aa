// Package ws serves map sessions over WebSocket.
//
// Each connection gets a session id, its own viewport.Controller and its
// own cache and polygon store; the upstream fetcher is shared. The session
// is the controller's display layer: delivered chunks are written back to
// the client as polygons events, in order, by a single write pump.
//
// Client to server, {"event": ..., "data": ...}:
//
//	viewport_settled  {"bounds": {"min_lat", "min_lng", "max_lat", "max_lng"}, "zoom"}
//	interaction       {"active": bool}
//	tap               {"lat", "lng"}
//
// Server to client:
//
//	hello     {"session"}
//	polygons  {"batch": [{"id", "status", "ring": [[lng, lat], ...], "color", "title"}]}
//	tapped    {"id", "status", "title", "color"}, or {} on a miss
//	stats     {"session", "interacting", "cached", "visited", "rendered", "stored", ...}
//	error     {"error"}
//
// Polygon batches block until queued; periodic stats are dropped when a
// client's buffer is full. The upgrader accepts all origins.
package ws
