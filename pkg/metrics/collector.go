package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/smartworking/pkg/models"
)

// RequestLister is the store view the collector scrapes
type RequestLister interface {
	ListAllRequests(ctx context.Context) ([]*models.Request, error)
}

// Collector holds the service metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	requestsCreated      prometheus.Counter
	requestTransitions   *prometheus.CounterVec
	tokenActionFailures  prometheus.Counter
	notifications        *prometheus.CounterVec
	notificationsDropped *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewCollector creates a collector; when store is non-nil, request counts by
// status are computed from it at scrape time.
func NewCollector(store RequestLister) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartworking_requests_created_total",
			Help: "Smart working requests created",
		}),
		requestTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartworking_request_transitions_total",
			Help: "Request decisions by resulting status and channel",
		}, []string{"status", "via"}),
		tokenActionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartworking_token_action_failures_total",
			Help: "Email link actions that were refused",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartworking_notifications_total",
			Help: "Notification deliveries by kind and result",
		}, []string{"kind", "result"}),
		notificationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartworking_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full or closed",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartworking_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartworking_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.requestsCreated,
		c.requestTransitions,
		c.tokenActionFailures,
		c.notifications,
		c.notificationsDropped,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if store != nil {
		c.registry.MustRegister(&statusCollector{store: store})
	}
	return c
}

// Registry exposes the underlying registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RequestCreated counts a new request
func (c *Collector) RequestCreated() {
	if c == nil {
		return
	}
	c.requestsCreated.Inc()
}

// RequestTransitioned counts a decision; via is "api" or "token"
func (c *Collector) RequestTransitioned(status models.RequestStatus, via string) {
	if c == nil {
		return
	}
	c.requestTransitions.WithLabelValues(string(status), via).Inc()
}

// TokenActionFailed counts a refused email link
func (c *Collector) TokenActionFailed() {
	if c == nil {
		return
	}
	c.tokenActionFailures.Inc()
}

// NotificationSent counts a delivery outcome; result is "sent" or "failed"
func (c *Collector) NotificationSent(kind, result string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(kind, result).Inc()
}

// NotificationDropped counts a message that never reached the queue
func (c *Collector) NotificationDropped(kind string) {
	if c == nil {
		return
	}
	c.notificationsDropped.WithLabelValues(kind).Inc()
}

// Middleware records request count and latency per route template
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// statusCollector reports the current number of requests per status
type statusCollector struct {
	store RequestLister
}

var requestsByStatusDesc = prometheus.NewDesc(
	"smartworking_requests",
	"Current smart working requests by status",
	[]string{"status"}, nil,
)

func (s *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsByStatusDesc
}

func (s *statusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	requests, err := s.store.ListAllRequests(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(requestsByStatusDesc, err)
		return
	}

	counts := map[models.RequestStatus]int{
		models.RequestStatusPending:  0,
		models.RequestStatusApproved: 0,
		models.RequestStatusRejected: 0,
	}
	for _, r := range requests {
		counts[r.Status]++
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(requestsByStatusDesc, prometheus.GaugeValue, float64(n), string(status))
	}
}
