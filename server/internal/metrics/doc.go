// Package metrics counts fetch cycles, sub-box fetches and delivered
// polygons across every session. Collectors live on a private
// prometheus.Registry served by promhttp.
package metrics
