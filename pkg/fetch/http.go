package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/polyview/polyview/pkg/geo"
	"github.com/polyview/polyview/pkg/polygon"
)

const defaultTimeout = 15 * time.Second

// Auth holds resolved upstream credentials. Secrets are already read from
// the environment by the caller.
type Auth struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string

	// Header carries Key when Mode == "apikey".
	Header string
	Key    string

	// Token is sent as "Authorization: Bearer <Token>" when Mode == "bearer".
	Token string

	// Username and Password are used when Mode == "basic".
	Username string
	Password string

	// mTLS files, used when Mode == "mtls".
	CertFile string
	KeyFile  string
	CAFile   string
}

// Options configures an HTTP fetcher.
type Options struct {
	// Endpoint is the full polygons URL, e.g. http://host:6010/polygons.
	Endpoint string

	// Timeout bounds one request. Defaults to 15s.
	Timeout time.Duration

	// RateLimit is the sustained request rate per second; <= 0 is unlimited.
	RateLimit float64

	// Burst is the limiter bucket size; values < 1 become 1.
	Burst int

	Auth Auth

	// InsecureSkipVerify disables TLS verification of the upstream.
	InsecureSkipVerify bool
}

// HTTP fetches polygons from an upstream HTTP service.
type HTTP struct {
	endpoint *url.URL
	client   *http.Client
	tlsCfg   *tls.Config
	limiter  *rate.Limiter

	mu     sync.Mutex
	health Health
	now    func() time.Time
}

// Health counts Fetch results since the fetcher was built.
type Health struct {
	OK        int       `json:"ok"`
	Network   int       `json:"network_errors"`
	Decode    int       `json:"decode_errors"`
	LastError string    `json:"last_error,omitempty"`
	LastOK    time.Time `json:"last_ok"`
	LastFail  time.Time `json:"last_fail"`
}

// NewHTTP validates opts and builds the client once; it is reused for every
// Fetch call.
func NewHTTP(opts Options) (*HTTP, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch: endpoint %q must be http or https", opts.Endpoint)
	}
	tlsCfg, err := buildTLSConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("fetch: build tls config: %w", err)
	}
	return &HTTP{
		endpoint: u,
		client:   buildHTTPClient(opts, tlsCfg),
		tlsCfg:   tlsCfg,
		limiter:  newLimiter(opts.RateLimit, opts.Burst),
		now:      time.Now,
	}, nil
}

// Endpoint returns the configured polygons URL.
func (h *HTTP) Endpoint() string { return h.endpoint.String() }

// Health returns a snapshot of the result counters.
func (h *HTTP) Health() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.health
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, box geo.BoundingBox) ([]polygon.Record, error) {
	recs, err := h.fetch(ctx, box)
	h.record(err)
	return recs, err
}

func (h *HTTP) record(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now().UTC()
	switch {
	case err == nil:
		h.health.OK++
		h.health.LastOK = now
		return
	case errors.Is(err, ErrDecode):
		h.health.Decode++
	default:
		h.health.Network++
	}
	h.health.LastError = err.Error()
	h.health.LastFail = now
}

func (h *HTTP) fetch(ctx context.Context, box geo.BoundingBox) ([]polygon.Record, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.requestURL(box), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http get: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrNetwork, resp.StatusCode)
	}

	recs, err := polygon.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return recs, nil
}

// requestURL appends the box as query parameters, keeping any query the
// endpoint already carries.
func (h *HTTP) requestURL(box geo.BoundingBox) string {
	u := *h.endpoint
	q := u.Query()
	q.Set("minLat", formatCoord(box.MinLat))
	q.Set("minLng", formatCoord(box.MinLng))
	q.Set("maxLat", formatCoord(box.MaxLat))
	q.Set("maxLng", formatCoord(box.MaxLng))
	u.RawQuery = q.Encode()
	return u.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth Auth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key)
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token)
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password)
	}
	return t.base.RoundTrip(req)
}

// buildTLSConfig loads the client certificate and CA pool for mTLS. The
// same config backs both Fetch and ProbeTLS.
func buildTLSConfig(opts Options) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if opts.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(opts.Auth.CertFile, opts.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if opts.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(opts.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", opts.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}
	return tlsCfg, nil
}

// buildHTTPClient wraps the transport with the auth round-tripper.
func buildHTTPClient(opts Options, tlsCfg *tls.Config) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{
				TLSClientConfig:     tlsCfg,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
			auth: opts.Auth,
		},
		Timeout: timeout,
	}
}
