package api

import "github.com/polyview/polyview/pkg/fetch"

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status         string `json:"status"`
	SessionsActive int    `json:"sessions_active"`
	SessionsTotal  int    `json:"sessions_total"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}

// UpstreamResponse is the body of GET /api/v1/upstream. TLS is null for
// plain http endpoints.
type UpstreamResponse struct {
	Endpoint string            `json:"endpoint"`
	Status   string            `json:"status"` // ok | degraded
	Health   fetch.Health      `json:"health"`
	TLS      *fetch.CertStatus `json:"tls"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
