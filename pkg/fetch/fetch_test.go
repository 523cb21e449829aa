package fetch

import (
	"context"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/polyview/polyview/pkg/geo"
	"github.com/polyview/polyview/pkg/polygon"
)

const twoPolygons = `[
  {"geometry": {"type": "Polygon", "coordinates": [[[-81.4, 28.5], [-81.3, 28.5], [-81.3, 28.6], [-81.4, 28.5]]]}, "status": 2, "id": "a"},
  {"geometry": {"type": "Polygon", "coordinates": [[[-81.2, 28.4], [-81.1, 28.4], [-81.1, 28.45], [-81.2, 28.4]]]}, "status": 4, "id": "b"}
]`

var testBox = geo.BoundingBox{MinLat: 28.39, MinLng: -81.53, MaxLat: 28.68, MaxLng: -81.22}

func newTestFetcher(t *testing.T, h http.HandlerFunc, opts Options) *HTTP {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.Endpoint = srv.URL + "/polygons"
	f, err := NewHTTP(opts)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	return f
}

func TestHTTP_Fetch(t *testing.T) {
	var gotQuery map[string]string
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/polygons" {
			t.Errorf("path = %q, want /polygons", r.URL.Path)
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"minLat": q.Get("minLat"), "minLng": q.Get("minLng"),
			"maxLat": q.Get("maxLat"), "maxLng": q.Get("maxLng"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(twoPolygons))
	}, Options{})

	recs, err := f.Fetch(context.Background(), testBox)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, polygon.IDs(recs)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	wantQuery := map[string]string{"minLat": "28.39", "minLng": "-81.53", "maxLat": "28.68", "maxLng": "-81.22"}
	if diff := cmp.Diff(wantQuery, gotQuery); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTP_Fetch_NonOKIsNetworkError(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, Options{})

	_, err := f.Fetch(context.Background(), testBox)
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Fetch() error = %v, want ErrNetwork", err)
	}
}

func TestHTTP_Fetch_BadBodyIsDecodeError(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"oops": true}`))
	}, Options{})

	_, err := f.Fetch(context.Background(), testBox)
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Fetch() error = %v, want ErrDecode", err)
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("decode failure must not also match ErrNetwork")
	}
}

func TestHTTP_Fetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f, err := NewHTTP(Options{Endpoint: url, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	if _, err := f.Fetch(context.Background(), testBox); !errors.Is(err, ErrNetwork) {
		t.Errorf("Fetch() error = %v, want ErrNetwork", err)
	}
}

func TestHTTP_AuthModes(t *testing.T) {
	tests := []struct {
		name  string
		auth  Auth
		check func(t *testing.T, r *http.Request)
	}{
		{
			name: "apikey",
			auth: Auth{Mode: "apikey", Header: "X-API-Key", Key: "k1"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("X-API-Key"); got != "k1" {
					t.Errorf("X-API-Key = %q, want k1", got)
				}
			},
		},
		{
			name: "bearer",
			auth: Auth{Mode: "bearer", Token: "tok"},
			check: func(t *testing.T, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer tok" {
					t.Errorf("Authorization = %q, want Bearer tok", got)
				}
			},
		},
		{
			name: "basic",
			auth: Auth{Mode: "basic", Username: "u", Password: "p"},
			check: func(t *testing.T, r *http.Request) {
				user, pass, ok := r.BasicAuth()
				if !ok || user != "u" || pass != "p" {
					t.Errorf("BasicAuth() = %q, %q, %v", user, pass, ok)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				tc.check(t, r)
				_, _ = w.Write([]byte(`[]`))
			}, Options{Auth: tc.auth})
			if _, err := f.Fetch(context.Background(), testBox); err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
		})
	}
}

func TestNewHTTP_RejectsBadEndpoint(t *testing.T) {
	for _, ep := range []string{"", "ftp://example.com/polygons", "://bad"} {
		if _, err := NewHTTP(Options{Endpoint: ep}); err == nil {
			t.Errorf("NewHTTP(%q): expected error", ep)
		}
	}
}

func TestHTTP_RateLimitHonoursContext(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}, Options{RateLimit: 0.001, Burst: 1})

	if _, err := f.Fetch(context.Background(), testBox); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Fetch(ctx, testBox); !errors.Is(err, ErrNetwork) {
		t.Errorf("second Fetch() error = %v, want ErrNetwork from limiter", err)
	}
}

// --- All --------------------------------------------------------------------

type flag struct{ v atomic.Bool }

func (f *flag) Active() bool { return f.v.Load() }

func rec(id string) polygon.Record {
	return polygon.NewRecord(id, 1, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}})
}

func TestAll_MergesInBoxOrder(t *testing.T) {
	boxes := geo.Split(geo.BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 4, MaxLng: 4}, 3)
	f := FetcherFunc(func(_ context.Context, b geo.BoundingBox) ([]polygon.Record, error) {
		// Later boxes answer first.
		time.Sleep(time.Duration(4-int(b.MinLat)-int(b.MinLng)/2) * 5 * time.Millisecond)
		return []polygon.Record{rec(b.String())}, nil
	})

	res := All(context.Background(), f, boxes, FanOut{})
	want := make([]string, len(boxes))
	for i, b := range boxes {
		want[i] = b.String()
	}
	if diff := cmp.Diff(want, polygon.IDs(res.Records)); diff != "" {
		t.Errorf("merge order mismatch (-want +got):\n%s", diff)
	}
	if res.Failed != 0 || res.Discarded != 0 {
		t.Errorf("Failed=%d Discarded=%d, want 0/0", res.Failed, res.Discarded)
	}
}

func TestAll_FailedBoxContributesNothing(t *testing.T) {
	boxes := geo.Split(geo.BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 2, MaxLng: 2}, 3)
	f := FetcherFunc(func(_ context.Context, b geo.BoundingBox) ([]polygon.Record, error) {
		if b == boxes[1] {
			return nil, ErrNetwork
		}
		if b == boxes[2] {
			return nil, ErrDecode
		}
		return []polygon.Record{rec(b.String())}, nil
	})

	res := All(context.Background(), f, boxes, FanOut{Concurrency: 2})
	if res.Failed != 2 {
		t.Errorf("Failed = %d, want 2", res.Failed)
	}
	want := []string{boxes[0].String(), boxes[3].String()}
	if diff := cmp.Diff(want, polygon.IDs(res.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestAll_DiscardsWhileGateActive(t *testing.T) {
	boxes := geo.Split(geo.BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 2, MaxLng: 2}, 3)
	gate := &flag{}
	gate.v.Store(true)
	f := FetcherFunc(func(_ context.Context, b geo.BoundingBox) ([]polygon.Record, error) {
		return []polygon.Record{rec(b.String())}, nil
	})

	res := All(context.Background(), f, boxes, FanOut{Gate: gate})
	if len(res.Records) != 0 {
		t.Errorf("got %d records, want 0 while gate active", len(res.Records))
	}
	if res.Discarded != len(boxes) {
		t.Errorf("Discarded = %d, want %d", res.Discarded, len(boxes))
	}
}

func TestAll_RespectsConcurrency(t *testing.T) {
	boxes := geo.Split(geo.BoundingBox{MinLat: 0, MinLng: 0, MaxLat: 3, MaxLng: 3}, 9)
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	f := FetcherFunc(func(_ context.Context, _ geo.BoundingBox) ([]polygon.Record, error) {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	All(context.Background(), f, boxes, FanOut{Concurrency: 2})
	if p := peak.Load(); p > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", p)
	}
}

func TestHTTP_HealthCounts(t *testing.T) {
	var n atomic.Int32
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		switch n.Add(1) {
		case 1:
			_, _ = w.Write([]byte(twoPolygons))
		case 2:
			http.Error(w, "down", http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}, Options{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		_, _ = f.Fetch(context.Background(), testBox)
	}
	h := f.Health()
	if h.OK != 1 || h.Network != 1 || h.Decode != 1 {
		t.Errorf("Health = %+v, want 1 ok, 1 network, 1 decode", h)
	}
	if !h.LastOK.Equal(fixed) || !h.LastFail.Equal(fixed) {
		t.Errorf("timestamps = %v / %v, want %v", h.LastOK, h.LastFail, fixed)
	}
	if h.LastError == "" {
		t.Error("LastError is empty after a failure")
	}
}

func TestProbeTLS_PlainHTTP(t *testing.T) {
	f, err := NewHTTP(Options{Endpoint: "http://example.com/polygons"})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	if cs := f.ProbeTLS(context.Background()); cs != nil {
		t.Errorf("ProbeTLS(http) = %+v, want nil", cs)
	}
}

func TestProbeTLS_UsesFetcherTrust(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	tests := []struct {
		name     string
		insecure bool
		want     string
	}{
		{"self-signed rejected", false, CertUntrusted},
		{"self-signed accepted when verification is off", true, CertValid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewHTTP(Options{Endpoint: srv.URL + "/polygons", InsecureSkipVerify: tc.insecure})
			if err != nil {
				t.Fatalf("NewHTTP() error = %v", err)
			}
			cs := f.ProbeTLS(context.Background())
			if cs == nil {
				t.Fatal("ProbeTLS(https) = nil")
			}
			if cs.Status != tc.want {
				t.Errorf("Status = %q (err %q), want %q", cs.Status, cs.Error, tc.want)
			}
		})
	}
}

func TestProbeTLS_Unreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f, err := NewHTTP(Options{Endpoint: url + "/polygons"})
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	if cs := f.ProbeTLS(context.Background()); cs == nil || cs.Status != CertUnreachable {
		t.Errorf("ProbeTLS = %+v, want unreachable", cs)
	}
}

func TestCertStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		notAfter time.Time
		want     string
		days     int
	}{
		{now.Add(-time.Hour), CertExpired, -1},
		{now.Add(10 * 24 * time.Hour), CertExpiring, 10},
		{now.Add(90 * 24 * time.Hour), CertValid, 90},
	}
	for _, tc := range tests {
		leaf := &x509.Certificate{NotAfter: tc.notAfter}
		leaf.Issuer.CommonName = "Test CA"
		cs := certStatus(leaf, now)
		if cs.Status != tc.want || cs.DaysLeft != tc.days || cs.Issuer != "Test CA" {
			t.Errorf("certStatus(%v) = %+v, want %s/%d days", tc.notAfter, cs, tc.want, tc.days)
		}
	}
}
