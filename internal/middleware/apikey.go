package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// APIKeyHeader carries the backend's anonymous key, mirroring the hosted
// backend convention the web client was written against.
const APIKeyHeader = "apikey"

// APIKey rejects requests whose apikey header does not match key. Browsers
// cannot set headers on WebSocket upgrades, so an apikey query parameter is
// accepted as well. An empty key disables the check, which is the
// local-development default.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)
			if presented == "" {
				presented = r.URL.Query().Get(APIKeyHeader)
			}
			got := []byte(presented)
			if subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "invalid_api_key",
					"message": "Missing or invalid API key.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
