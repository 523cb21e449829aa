// Package store keeps the in-memory registry of map sessions served by
// polyviewd: when each started, its fetch-cycle counts, the last cycle and
// the latest session stats. Ended sessions are evicted after a TTL.
package store
