package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated registry served on /metrics
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hookrelay_http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "hookrelay_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Notifications counts classified notifications by event and whether any hook matched
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hookrelay_notifications_total", Help: "Notifications that resolved to a catalog event."},
		[]string{"event", "matched"},
	)

	// WebhookDeliveries counts finished delivery jobs by event and outcome
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hookrelay_webhook_deliveries_total", Help: "Webhook deliveries by event and outcome."},
		[]string{"event", "outcome"},
	)
	WebhookAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hookrelay_webhook_attempts_total", Help: "HTTP attempts made for webhook deliveries."},
		[]string{"event"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "hookrelay_webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms, retries included.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 30000}},
		[]string{"event", "outcome"},
	)
	WebhookQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "hookrelay_webhook_queue_depth", Help: "Deliveries waiting in the in-process queue."},
		[]string{"backend"},
	)
)

var regOnce sync.Once

// RegisterDefault registers every collector on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Notifications)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookAttempts)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(WebhookQueueDepth)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
