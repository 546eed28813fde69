package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the library counters. A nil *Collector records nothing.
type Collector struct {
	validations   *prometheus.CounterVec
	logins        *prometheus.CounterVec
	circulation   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_envelope_validations_total",
			Help: "Badge envelope validations by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_logins_total",
			Help: "Login attempts by method and result.",
		}, []string{"method", "result"}),
		circulation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_circulation_total",
			Help: "Borrow and return events.",
		}, []string{"event"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_notifications_total",
			Help: "Notifications by type and whether they were sent or deduplicated.",
		}, []string{"type", "result"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_worker_tasks_total",
			Help: "Background tasks processed by type and result.",
		}, []string{"task", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_http_requests_total",
			Help: "HTTP responses by route and status code.",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "library_http_request_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.validations,
		c.logins,
		c.circulation,
		c.notifications,
		c.tasks,
		c.requests,
		c.latency,
	)
	return c
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (c *Collector) RecordValidation(outcome string) {
	if c == nil {
		return
	}
	c.validations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLogin(method string, ok bool) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(method, result(ok)).Inc()
}

func (c *Collector) RecordCirculation(event string) {
	if c == nil {
		return
	}
	c.circulation.WithLabelValues(event).Inc()
}

func (c *Collector) RecordNotification(kind string, sent bool) {
	if c == nil {
		return
	}
	r := "sent"
	if !sent {
		r = "deduplicated"
	}
	c.notifications.WithLabelValues(kind, r).Inc()
}

func (c *Collector) RecordTask(task string, ok bool) {
	if c == nil {
		return
	}
	c.tasks.WithLabelValues(task, result(ok)).Inc()
}

func (c *Collector) RecordRequest(route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
