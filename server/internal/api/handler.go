package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/polyview/polyview/pkg/fetch"
	"github.com/polyview/polyview/server/internal/metrics"
	"github.com/polyview/polyview/server/internal/store"
)

// Deps are the collaborators the API reads from.
type Deps struct {
	Store   *store.Store
	Metrics *metrics.Registry

	// Upstream is the shared polygon fetcher reported by /upstream.
	// *fetch.HTTP satisfies it. Nil disables the route.
	Upstream Upstream

	// Started is the process start time. Zero means now.
	Started time.Time

	// Middleware wraps /api/v1 and /metrics, e.g. API key auth.
	Middleware []func(http.Handler) http.Handler
}

// Upstream is the view of the polygon fetcher the API reports on.
type Upstream interface {
	Endpoint() string
	Health() fetch.Health
	ProbeTLS(ctx context.Context) *fetch.CertStatus
}

// Handler serves the REST API and the metrics endpoint.
type Handler struct {
	deps Deps
}

// New creates the router with every route registered.
func New(deps Deps) *chi.Mux {
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	h := &Handler{deps: deps}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		for _, mw := range deps.Middleware {
			r.Use(mw)
		}
		r.Get("/api/v1/health", h.health)
		r.Get("/api/v1/sessions", h.listSessions)
		r.Get("/api/v1/sessions/{id}", h.getSession)
		if deps.Upstream != nil {
			r.Get("/api/v1/upstream", h.upstream)
		}
		if deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
		}
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		SessionsActive: h.deps.Store.Active(),
		SessionsTotal:  h.deps.Store.Count(),
		UptimeSeconds:  int64(time.Since(h.deps.Started).Seconds()),
	})
}

// listSessions returns GET /api/v1/sessions, oldest first.
func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.deps.Store.List())
}

// getSession returns GET /api/v1/sessions/{id}.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.deps.Store.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "session not found")
		return
	}
	jsonResp(w, http.StatusOK, sess)
}

// upstream returns GET /api/v1/upstream: the fetch result counters and,
// for https endpoints, a handshake made with the fetcher's TLS settings.
// Status is "degraded" when the most recent fetch failed or the handshake
// did not yield a usable certificate.
func (h *Handler) upstream(w http.ResponseWriter, r *http.Request) {
	up := h.deps.Upstream
	resp := UpstreamResponse{
		Endpoint: up.Endpoint(),
		Health:   up.Health(),
		TLS:      up.ProbeTLS(r.Context()),
	}
	resp.Status = upstreamStatus(resp.Health, resp.TLS)
	jsonResp(w, http.StatusOK, resp)
}

func upstreamStatus(hl fetch.Health, cs *fetch.CertStatus) string {
	if cs != nil {
		switch cs.Status {
		case fetch.CertExpired, fetch.CertUntrusted, fetch.CertUnreachable:
			return "degraded"
		}
	}
	if !hl.LastFail.IsZero() && hl.LastFail.After(hl.LastOK) {
		return "degraded"
	}
	return "ok"
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, ErrorResponse{Error: msg})
}
