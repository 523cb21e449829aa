// Package fetch requests polygon geometry for one bounding box at a time and
// joins the per-sub-box results of a fetch cycle.
//
// Fetcher is the contract the viewport controller depends on. HTTP is the
// production implementation: GET {endpoint}?minLat=&minLng=&maxLat=&maxLng=,
// decoded with polygon.Decode. Requests pass through a token-bucket limiter
// (golang.org/x/time/rate) and the shared authRoundTripper, which injects
// apikey, bearer, or basic credentials; mtls is configured on the transport.
//
// All fans one Fetch out per sub-box (bounded by errgroup.SetLimit) and waits
// for every one of them before returning, so the caller sees a join rather
// than a stream. A sub-box that fails with ErrNetwork or ErrDecode is logged
// and contributes zero records. A response that arrives while the
// interaction gate is active is discarded.
//
// HTTP also keeps per-result counters (Health) and can handshake with the
// upstream using its own TLS settings (ProbeTLS) so operators see what the
// loader sees.
package fetch
