package httpx

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

type routerMetrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	wsSubscribers  prometheus.Gauge
}

func newRouterMetrics(reg prometheus.Registerer) routerMetrics {
	return routerMetrics{
		requestTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "karoba",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})),
		requestLatency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "karoba",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})),
		rateLimitHits: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "karoba",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "key"})),
		wsSubscribers: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "karoba",
			Subsystem: "api",
			Name:      "account_feed_subscribers",
			Help:      "Open websocket connections on the account event feed",
		})),
	}
}

// register adds c to reg, reusing an identical collector registered by an earlier router.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.metrics.requestTotal.With(labels).Inc()
	r.metrics.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, key string) {
	r.metrics.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}
