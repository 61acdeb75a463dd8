// Package middleware holds the HTTP middleware chain shared by all API routes.
package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.code = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// RequestLogger tags each request with a short id and logs the outcome.
// When verbose is false only error responses are logged.
func RequestLogger(verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := uuid.NewString()[:8]
			w.Header().Set("X-Request-Id", id)

			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			if !verbose && rec.code < 400 {
				return
			}
			log.Printf("http id=%s %s %s status=%d bytes=%d remote=%s elapsed=%s",
				id, r.Method, r.URL.Path, rec.code, rec.bytes, r.RemoteAddr,
				time.Since(start).Round(time.Millisecond))
		})
	}
}
