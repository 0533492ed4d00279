package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the service-wide registry served at /metrics. A private
// registry keeps third party libraries from leaking collectors into it.
var Registry = prometheus.NewRegistry()

var registerOnce sync.Once

var (
    HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "railopt",
        Name:      "http_requests_total",
        Help:      "HTTP requests by path, method and status code.",
    }, []string{"path", "method", "status"})

    HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "railopt",
        Name:      "http_request_duration_seconds",
        Help:      "HTTP request latency by path.",
        Buckets:   []float64{0.005, 0.02, 0.1, 0.5, 1, 2.5, 5, 10, 15},
    }, []string{"path"})

    OptimizeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "railopt",
        Name:      "optimize_runs_total",
        Help:      "Optimization runs by result status and backend.",
    }, []string{"status", "backend"})

    SolveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "railopt",
        Name:      "solve_duration_seconds",
        Help:      "Solver wall time by backend.",
        Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 12, 15},
    }, []string{"backend"})

    FeedClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: "railopt",
        Name:      "feed_clients",
        Help:      "Connected live feed clients by transport.",
    }, []string{"transport"})

    FeedEvents = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "railopt",
        Name:      "feed_events_total",
        Help:      "Position events published to the feed.",
    })

    WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "railopt",
        Name:      "webhook_deliveries_total",
        Help:      "Webhook delivery attempts by outcome.",
    }, []string{"outcome"})

    WebhookLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "railopt",
        Name:      "webhook_latency_seconds",
        Help:      "Webhook endpoint latency.",
        Buckets:   prometheus.DefBuckets,
    })
)

// RegisterDefault wires every collector into Registry exactly once.
func RegisterDefault() {
    registerOnce.Do(func() {
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
        Registry.MustRegister(
            HTTPRequests,
            HTTPDuration,
            OptimizeRuns,
            SolveDuration,
            FeedClients,
            FeedEvents,
            WebhookDeliveries,
            WebhookLatency,
        )
    })
}
