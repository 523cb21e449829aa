package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/polyview/polyview/pkg/viewport"
)

func parse(t *testing.T, b []byte) map[string]*dto.MetricFamily {
	t.Helper()
	var p expfmt.TextParser
	mfs, err := p.TextToMetricFamilies(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("parse exposition: %v\n%s", err, b)
	}
	return mfs
}

func labelled(mf *dto.MetricFamily, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func TestWriteText_RoundTrip(t *testing.T) {
	r := New()
	r.ObserveCycle(viewport.Report{Outcome: viewport.Completed, SubBoxes: 4, Delivered: 120})
	r.ObserveCycle(viewport.Report{Outcome: viewport.Partial, SubBoxes: 4, Failed: 1, Delivered: 30})
	r.ObserveCycle(viewport.Report{Outcome: viewport.SkippedCached})
	r.SessionOpened()
	r.SessionOpened()
	r.SessionClosed()

	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	mfs := parse(t, buf.Bytes())

	cycles := mfs[CyclesTotal]
	if cycles == nil {
		t.Fatalf("%s missing", CyclesTotal)
	}
	if got := labelled(cycles, "completed"); got != 1 {
		t.Errorf("completed: got %v", got)
	}
	if got := labelled(cycles, "skipped_cached"); got != 1 {
		t.Errorf("skipped_cached: got %v", got)
	}
	if got := labelled(cycles, "skipped_zoom"); got != 0 {
		t.Errorf("skipped_zoom should be present at 0, got %v", got)
	}

	sub := mfs[SubBoxFetchesTotal]
	if labelled(sub, ResultOK) != 7 || labelled(sub, ResultFailed) != 1 {
		t.Errorf("sub-box results: ok=%v failed=%v", labelled(sub, ResultOK), labelled(sub, ResultFailed))
	}
	if got := mfs[DeliveredTotal].GetMetric()[0].GetCounter().GetValue(); got != 150 {
		t.Errorf("delivered: got %v", got)
	}
	if got := mfs[SessionsActive].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("sessions: got %v", got)
	}
}

func TestSessionClosed_NeverNegative(t *testing.T) {
	r := New()
	r.SessionClosed()
	mfs, err := r.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == SessionsActive && mf.GetMetric()[0].GetGauge().GetValue() != 0 {
			t.Error("gauge went negative")
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	// promhttp negotiates; without an Accept header it answers in text.
	if len(parse(t, rec.Body.Bytes())) != 4 {
		t.Errorf("families: got %s", rec.Body.String())
	}
}
