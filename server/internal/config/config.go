package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polyview/polyview/pkg/fetch"
	"github.com/polyview/polyview/pkg/viewport"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort       = 8080
	DefaultSourcePort     = 6010
	DefaultSessionTTL     = 10 * time.Minute
	DefaultStatsInterval  = 5 * time.Second
	DefaultUpstreamTimeout = 15 * time.Second
	DefaultConcurrency    = 4
	DefaultAuthHeader     = "X-API-Key"
)

// Config is the full configuration tree shared by polyviewd and polysource.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Loader   LoaderConfig   `yaml:"loader"`
	Source   SourceConfig   `yaml:"source"`
}

// ServerConfig holds polyviewd's listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures how polyviewd authenticates browser and API clients.
	Auth ServerAuthConfig `yaml:"auth"`

	// Sessions controls the session registry.
	Sessions SessionsConfig `yaml:"sessions"`
}

// ServerAuthConfig configures inbound authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the key. Defaults to X-API-Key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name or DefaultAuthHeader.
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// SessionsConfig controls how long ended sessions stay visible and how
// often live sessions push stats to their client.
type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// UpstreamConfig describes the polygon service polyviewd fetches from.
type UpstreamConfig struct {
	// Endpoint is the full polygons URL, e.g. http://localhost:6010/polygons.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one sub-box request.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is requests per second across all sessions; 0 is unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// Concurrency caps parallel sub-box fetches within one cycle.
	Concurrency int `yaml:"concurrency"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies how polyviewd authenticates to the upstream.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header and KeyEnv are used when Mode == "apikey".
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is literal; PasswordEnv names the variable holding the password.
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return lookupEnv(a.PasswordEnv) }

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// TLSConfig holds upstream TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// FetchOptions converts the upstream section into fetch.Options with
// secrets resolved.
func (u UpstreamConfig) FetchOptions() fetch.Options {
	header := u.Auth.Header
	if header == "" {
		header = DefaultAuthHeader
	}
	return fetch.Options{
		Endpoint:  u.Endpoint,
		Timeout:   u.Timeout,
		RateLimit: u.RateLimit,
		Burst:     u.Burst,
		Auth: fetch.Auth{
			Mode:     u.Auth.Mode,
			Header:   header,
			Key:      u.Auth.Key(),
			Token:    u.Auth.Token(),
			Username: u.Auth.Username,
			Password: u.Auth.Password(),
			CertFile: u.Auth.CertFile,
			KeyFile:  u.Auth.KeyFile,
			CAFile:   u.Auth.CAFile,
		},
		InsecureSkipVerify: u.TLS.InsecureSkipVerify,
	}
}

// LoaderConfig tunes the per-session fetch cycle.
type LoaderConfig struct {
	Divisions     int           `yaml:"divisions"`
	MinZoom       int           `yaml:"min_zoom"`
	Debounce      time.Duration `yaml:"debounce"`
	BatchSize     int           `yaml:"batch_size"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	BatchInterval time.Duration `yaml:"batch_interval"`
}

// Viewport converts the loader section into a viewport.Config.
func (c *Config) Viewport() viewport.Config {
	return viewport.Config{
		Divisions:     c.Loader.Divisions,
		MinZoom:       c.Loader.MinZoom,
		Debounce:      c.Loader.Debounce,
		Concurrency:   c.Upstream.Concurrency,
		BatchSize:     c.Loader.BatchSize,
		SettleDelay:   c.Loader.SettleDelay,
		BatchInterval: c.Loader.BatchInterval,
	}
}

// SourceConfig is read by polysource only.
type SourceConfig struct {
	HTTPPort int    `yaml:"http_port"`
	DataFile string `yaml:"data_file"`
}

// SlogLevel maps LogLevel onto a slog.Level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	vp := viewport.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Sessions: SessionsConfig{
				TTL:           DefaultSessionTTL,
				StatsInterval: DefaultStatsInterval,
			},
		},
		Upstream: UpstreamConfig{
			Timeout:     DefaultUpstreamTimeout,
			Concurrency: DefaultConcurrency,
		},
		Loader: LoaderConfig{
			Divisions:     vp.Divisions,
			MinZoom:       vp.MinZoom,
			Debounce:      vp.Debounce,
			BatchSize:     vp.BatchSize,
			SettleDelay:   vp.SettleDelay,
			BatchInterval: vp.BatchInterval,
		},
		Source: SourceConfig{
			HTTPPort: DefaultSourcePort,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log_level %q unknown: want debug|info|warn|error", cfg.LogLevel)
	}
	if err := validPort("server.http_port", cfg.Server.HTTPPort); err != nil {
		return err
	}
	if err := validPort("source.http_port", cfg.Source.HTTPPort); err != nil {
		return err
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Auth.Mode == "apikey" && cfg.Server.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}
	if cfg.Server.Sessions.TTL < 0 {
		return fmt.Errorf("server.sessions.ttl must not be negative")
	}
	if cfg.Server.Sessions.StatsInterval < 0 {
		return fmt.Errorf("server.sessions.stats_interval must not be negative")
	}

	if cfg.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream.endpoint is required")
	}
	u, err := url.Parse(cfg.Upstream.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.endpoint %q must be an http(s) URL", cfg.Upstream.Endpoint)
	}
	if cfg.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.Upstream.RateLimit < 0 {
		return fmt.Errorf("upstream.rate_limit must not be negative")
	}
	if cfg.Upstream.Concurrency <= 0 {
		return fmt.Errorf("upstream.concurrency must be positive")
	}
	switch cfg.Upstream.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("upstream.auth.mode %q unknown: want mtls|apikey|bearer|basic|none", cfg.Upstream.Auth.Mode)
	}
	if cfg.Upstream.Auth.Mode == "mtls" && (cfg.Upstream.Auth.CertFile == "" || cfg.Upstream.Auth.KeyFile == "") {
		return fmt.Errorf("upstream.auth: cert_file and key_file are required for mtls")
	}

	l := cfg.Loader
	if l.Divisions < 1 {
		return fmt.Errorf("loader.divisions must be at least 1")
	}
	if l.Debounce <= 0 {
		return fmt.Errorf("loader.debounce must be positive")
	}
	if l.BatchSize <= 0 {
		return fmt.Errorf("loader.batch_size must be positive")
	}
	if l.SettleDelay < 0 || l.BatchInterval < 0 {
		return fmt.Errorf("loader.settle_delay and loader.batch_interval must not be negative")
	}
	return nil
}

func validPort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s %d is out of range [1, 65535]", field, port)
	}
	return nil
}
