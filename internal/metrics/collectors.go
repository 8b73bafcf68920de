package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "balancebeam"
	subsystem = "proxy"
)

// Collectors tracked across the lifetime of the process. Mirrors
// caddy's adminMetrics struct: defined once, registered via
// promauto, referenced directly by the code paths that update them.
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Total client requests accepted by the proxy, by sanitized method.",
	}, []string{"method"})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected with 429 by the fixed-window rate limiter.",
	})

	UpstreamResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "upstream_responses_total",
		Help:      "Responses received from upstreams, by status code.",
	}, []string{"code"})

	UpstreamLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "upstream_live",
		Help:      "1 if the upstream is currently selectable, 0 if dead.",
	}, []string{"upstream"})
)
