package request

import (
	"net/http"
)

// DefaultBodyLimit caps request bodies; every endpoint takes small JSON.
const DefaultBodyLimit int64 = 1 << 20

// BodyLimit wraps the body in http.MaxBytesReader, so decoders fail once
// maxBytes is exceeded.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
