package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/platform/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records request count and latency under the route pattern, so
// ids in the path do not explode label cardinality.
func Instrument(route string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next(rec, r)

			elapsed := time.Since(start)
			status := strconv.Itoa(rec.status)
			metrics.HTTPRequests.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, route, status).Observe(elapsed.Seconds())

			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", elapsed).
				Msg("request")
		}
	}
}
