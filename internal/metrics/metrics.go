package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Checkouts *prometheus.CounterVec
	Events    *prometheus.CounterVec
}

// NewServerMetrics registers collectors on reg. Tests pass a fresh registry.
func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	service = strings.ReplaceAll(service, "-", "_")
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "checkouts_total",
		Help:      "Order commit attempts by payment method and outcome code.",
	}, []string{"method", "outcome"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: service,
		Name:      "events_handled_total",
		Help:      "Consumed order events by type and result.",
	}, []string{"event_type", "result"})

	reg.MustRegister(requests, latency, checkouts, events)
	return &ServerMetrics{Requests: requests, LatencyMS: latency, Checkouts: checkouts, Events: events}
}

// ObserveCheckout counts one commit attempt; outcome is "OK" or the error code.
func (m *ServerMetrics) ObserveCheckout(method, outcome string) {
	m.Checkouts.WithLabelValues(method, outcome).Inc()
}

func (m *ServerMetrics) ObserveEvent(eventType, result string) {
	m.Events.WithLabelValues(eventType, result).Inc()
}

// Middleware labels by chi route pattern so ids do not explode cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
