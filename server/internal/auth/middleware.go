package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// QueryParam is the query parameter checked when the header is absent.
// Browsers cannot set headers on a WebSocket handshake.
const QueryParam = "api_key"

// APIKey returns HTTP middleware that enforces API key authentication.
//
// Behaviour:
//   - If mode != "apikey" or key == "", every request passes through.
//   - Otherwise the key is read from header, falling back to the api_key
//     query parameter, and compared in constant time.
//   - A missing or incorrect key gets 401 with a JSON error body.
func APIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != "apikey" || key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get(QueryParam)
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
