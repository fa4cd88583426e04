package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(apiRequests, apiLatencyMs, authRejections)
}

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmlc_api_requests_total",
			Help: "API requests sent, by method, route and response code.",
		},
		[]string{"method", "route", "code"},
	)

	apiLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kmlc_api_request_latency_ms",
			Help:    "API request latency in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000},
		},
		[]string{"method", "route"},
	)

	authRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kmlc_auth_rejections_total",
			Help: "Bearer-carrying requests the server answered with 401.",
		},
	)
)

// ObserveRequest records one completed API exchange. code is 0 when no response arrived.
func ObserveRequest(method, route string, code int, elapsed time.Duration) {
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	apiRequests.WithLabelValues(norm(method), norm(route), label).Inc()
	apiLatencyMs.WithLabelValues(norm(method), norm(route)).Observe(float64(elapsed.Milliseconds()))
}

func AuthRejected() { authRejections.Inc() }

func norm(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
