package metrics

import (
	"net/http"
)

// responseWriter captures the status code for metrics. A handler that writes
// the body without an explicit WriteHeader gets the implicit 200, and only
// the first status written counts.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// RequestMiddleware returns chi-compatible middleware that records request count
// and error count (status >= 400) in the given Metrics.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrap := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(wrap, r)
			status := wrap.status
			if status == 0 {
				status = http.StatusOK
			}
			m.IncRequests()
			if status >= 400 {
				m.IncErrors()
			}
		})
	}
}
