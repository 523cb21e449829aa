// Package api implements the polyviewd REST API on a chi router.
//
// Routes:
//
//	GET /api/v1/health         process status and session counts
//	GET /api/v1/sessions       every session in the registry, oldest first
//	GET /api/v1/sessions/{id}  one session, 404 if unknown or evicted
//	GET /api/v1/upstream       fetcher result counters and TLS handshake status
//	GET /metrics               Prometheus text exposition
//
// Errors are JSON: {"error": "..."}. Deps.Middleware wraps every route.
package api
