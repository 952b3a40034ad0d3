package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedPath = "unmatched"

// PrometheusMiddleware counts and times requests per route pattern.
type PrometheusMiddleware struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewPrometheusMiddleware(reg prometheus.Registerer) (*PrometheusMiddleware, error) {
	m := &PrometheusMiddleware{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	for _, c := range []prometheus.Collector{m.requestCount, m.requestDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler must sit directly in front of the ServeMux: the mux records the
// matched pattern on the request it is handed, which is read back here.
func (m *PrometheusMiddleware) Handler() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := wrapWriter(w)
			next.ServeHTTP(rw, r)

			m.observe(r, rw.status, time.Since(start))
		})
	}
}

func (m *PrometheusMiddleware) observe(r *http.Request, status int, d time.Duration) {
	// patterns read "GET /api/records"; the method has its own label
	path := r.Pattern
	if _, rest, ok := strings.Cut(path, " "); ok {
		path = rest
	}
	if path == "" {
		path = unmatchedPath
	}

	m.requestCount.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(r.Method, path).Observe(d.Seconds())
}
