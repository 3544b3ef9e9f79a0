// Package metrics holds the Prometheus collectors shared by the chat and
// mailer services. Labels are limited to small closed sets.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeDelivered = "delivered"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"

	OutcomeSent       = "sent"
	OutcomeRetried    = "retried"
	OutcomeDeadLetter = "dead_lettered"
)

var (
	QueueEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hellochat_queue_enqueued_total",
			Help: "Delivery jobs accepted by a queue backend.",
		},
		[]string{"backend"},
	)

	QueueRedirected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hellochat_queue_redirected_total",
			Help: "Jobs redirected to the in-memory backend after a durable push failed.",
		},
	)

	QueueDequeued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hellochat_queue_dequeued_total",
			Help: "Delivery jobs taken from a queue backend.",
		},
		[]string{"backend"},
	)

	// QueueActiveBackend is 1 for the backend currently receiving enqueues.
	QueueActiveBackend = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hellochat_queue_active_backend",
			Help: "Active queue backend (1 = active).",
		},
		[]string{"backend"},
	)

	DeliveryJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hellochat_delivery_jobs_total",
			Help: "Delivery jobs processed by outcome.",
		},
		[]string{"outcome"},
	)

	GatewayConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hellochat_gateway_connections",
			Help: "Open websocket connections.",
		},
	)

	MailDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hellochat_mail_deliveries_total",
			Help: "Transactional mail attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hellochat_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hellochat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		QueueEnqueued,
		QueueRedirected,
		QueueDequeued,
		QueueActiveBackend,
		DeliveryJobs,
		GatewayConnections,
		MailDeliveries,
		httpReqs,
		httpLat,
	)
}

// SetActiveBackend flips the active gauge to name.
func SetActiveBackend(name string, all ...string) {
	for _, b := range all {
		QueueActiveBackend.WithLabelValues(b).Set(0)
	}
	QueueActiveBackend.WithLabelValues(name).Set(1)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler registered under route. route is the mux
// pattern, never the raw URL, so the label set stays bounded.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpReqs.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpLat.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
