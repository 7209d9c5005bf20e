package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
	"time"
)

// quietPaths are polled by probes and scrapers and only logged on failure.
var quietPaths = map[string]bool{"/healthz": true, "/metrics": true}

// statusRecorder remembers the status and body size a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += n
	return n, err
}

// LoggingMiddleware writes one [HTTP] line per request. 4xx lines carry WARN
// and 5xx lines carry ERROR so /sync/logs can filter them.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sr, r)

		if quietPaths[r.URL.Path] && sr.status < http.StatusBadRequest {
			return
		}
		level := ""
		switch {
		case sr.status >= http.StatusInternalServerError:
			level = "ERROR: "
		case sr.status >= http.StatusBadRequest:
			level = "WARN: "
		}
		log.Printf("[HTTP] %s%s %s %d %dB %s from %s", level, r.Method, r.URL.Path, sr.status, sr.bytes, time.Since(start), r.RemoteAddr)
	})
}

// Recover turns a handler panic into a 500 instead of dropping the connection.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[HTTP] ERROR: panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
