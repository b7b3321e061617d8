package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Publisher
	publishRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_runs_total",
			Help: "Total number of publish runs by result.",
		},
		[]string{"result"},
	)
	publishRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "publisher_run_duration_seconds",
			Help:    "Duration of a publish run in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)
	publishPosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_posts_total",
			Help: "Due posts handled by the publisher, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)
	pollAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publisher_poll_attempts",
			Help:    "Status checks made while waiting for platform media processing.",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
		[]string{"platform"},
	)

	// Token refresh
	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Connection token refreshes by provider and result.",
		},
		[]string{"provider", "result"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			publishRuns,
			publishRunDuration,
			publishPosts,
			pollAttempts,

			tokenRefreshes,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c := strconv.Itoa(code)
	httpRequests.WithLabelValues(method, route, c).Inc()
	httpDuration.WithLabelValues(method, route, c).Observe(d.Seconds())
}

// --- Publisher ---
func ObserveRun(result string, d time.Duration) {
	publishRuns.WithLabelValues(result).Inc()
	publishRunDuration.Observe(d.Seconds())
}

func IncPost(channel, outcome string) { publishPosts.WithLabelValues(channel, outcome).Inc() }

func ObservePollAttempts(platform string, n int) {
	if n <= 0 {
		return
	}
	pollAttempts.WithLabelValues(platform).Observe(float64(n))
}

// --- Token refresh ---
func IncTokenRefresh(provider, result string) {
	tokenRefreshes.WithLabelValues(provider, result).Inc()
}
