// Package config loads and watches the polyview configuration file.
//
// Top-level types:
//   - Config{LogLevel, Server, Upstream, Loader, Source}
//   - ServerConfig: http_port, auth (apikey|none), sessions (ttl, stats_interval)
//   - UpstreamConfig: endpoint, timeout, rate_limit, burst, concurrency, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none); Key(), Token() and
//     Password() resolve secrets from the environment variables named by the
//     *_env fields
//   - LoaderConfig: divisions, min_zoom, debounce, batch_size, settle_delay,
//     batch_interval
//   - SourceConfig: polysource's http_port and data_file
//
// Load(path) reads the YAML file, applies defaults, then validates required
// fields and enums. FetchOptions and Viewport convert sections into the
// option structs of pkg/fetch and pkg/viewport.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file on write and
// re-adds the watch after atomic-save editors replace it.
package config
