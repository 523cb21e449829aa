package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/polyview/polyview/pkg/viewport"
)

// Metric names.
const (
	CyclesTotal        = "polyview_cycles_total"
	SubBoxFetchesTotal = "polyview_subbox_fetches_total"
	DeliveredTotal     = "polyview_polygons_delivered_total"
	SessionsActive     = "polyview_sessions_active"
)

// Sub-box result labels.
const (
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultDiscarded = "discarded"
)

// Registry holds the process-wide collectors on a private
// prometheus.Registry. The zero value is not usable; call New.
type Registry struct {
	reg *prometheus.Registry

	cycles    *prometheus.CounterVec
	subBoxes  *prometheus.CounterVec
	delivered prometheus.Counter
	sessions  prometheus.Gauge

	mu   sync.Mutex
	open int
}

// New returns a Registry with every outcome and result label present at 0.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: CyclesTotal,
			Help: "Fetch cycles by outcome.",
		}, []string{"outcome"}),
		subBoxes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SubBoxFetchesTotal,
			Help: "Sub-box fetches by result.",
		}, []string{"result"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: DeliveredTotal,
			Help: "Polygons handed to the display layer.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: SessionsActive,
			Help: "Open map sessions.",
		}),
	}
	r.reg.MustRegister(r.cycles, r.subBoxes, r.delivered, r.sessions)

	for _, o := range viewport.Outcomes() {
		r.cycles.WithLabelValues(o.String())
	}
	for _, res := range []string{ResultOK, ResultFailed, ResultDiscarded} {
		r.subBoxes.WithLabelValues(res)
	}
	return r
}

// ObserveCycle folds one cycle report into the counters.
func (r *Registry) ObserveCycle(rep viewport.Report) {
	r.cycles.WithLabelValues(rep.Outcome.String()).Inc()
	if rep.SubBoxes > 0 {
		ok := rep.SubBoxes - rep.Failed - rep.Discarded
		if ok < 0 {
			ok = 0
		}
		r.subBoxes.WithLabelValues(ResultOK).Add(float64(ok))
		r.subBoxes.WithLabelValues(ResultFailed).Add(float64(rep.Failed))
		r.subBoxes.WithLabelValues(ResultDiscarded).Add(float64(rep.Discarded))
	}
	r.delivered.Add(float64(rep.Delivered))
}

// SessionOpened increments the active sessions gauge.
func (r *Registry) SessionOpened() {
	r.mu.Lock()
	r.open++
	r.sessions.Set(float64(r.open))
	r.mu.Unlock()
}

// SessionClosed decrements the active sessions gauge, stopping at zero.
func (r *Registry) SessionClosed() {
	r.mu.Lock()
	if r.open > 0 {
		r.open--
	}
	r.sessions.Set(float64(r.open))
	r.mu.Unlock()
}

// Gather returns the current metric families sorted by name.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// WriteText encodes every family in the text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	mfs, err := r.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the private registry for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
