package source

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/polyview/polyview/pkg/geo"
	"github.com/polyview/polyview/pkg/polygon"
)

// Handler returns the polysource router.
func Handler(idx *Index) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/polygons", func(w http.ResponseWriter, r *http.Request) {
		box, err := parseBox(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		recs := idx.Query(box)
		out := make([]polygon.Response, len(recs))
		for i, rec := range recs {
			out[i] = polygon.Encode(rec)
		}
		slog.Debug("source: query", "box", box.String(), "count", len(out))
		writeJSON(w, http.StatusOK, out)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"polygons": idx.Len()})
	})
	return r
}

func parseBox(r *http.Request) (geo.BoundingBox, error) {
	q := r.URL.Query()
	var v [4]float64
	for i, name := range []string{"minLat", "minLng", "maxLat", "maxLng"} {
		raw := q.Get(name)
		if raw == "" {
			return geo.BoundingBox{}, fmt.Errorf("missing %s", name)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return geo.BoundingBox{}, fmt.Errorf("bad %s: %w", name, err)
		}
		v[i] = f
	}
	return geo.New(v[0], v[1], v[2], v[3]), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
