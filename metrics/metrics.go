// Package metrics exposes the Prometheus counters the services record.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campaignflow"

// Collector manages Prometheus metrics for the campaign services
type Collector struct {
	registry *prometheus.Registry

	writeConflicts     *prometheus.CounterVec
	transitionsDenied  *prometheus.CounterVec
	approvalDecisions  *prometheus.CounterVec
	approvalRejections *prometheus.CounterVec
	filteredItems      *prometheus.CounterVec
	signalFailures     prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector registered on its own registry
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.writeConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_conflicts_total",
			Help:      "Conditional writes rejected for a stale version",
		},
		[]string{"kind"},
	)

	c.transitionsDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_denied_total",
			Help:      "Status changes rejected by the transition guard",
		},
		[]string{"kind", "from", "to"},
	)

	c.approvalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval decisions forwarded to the workflow engine",
		},
		[]string{"decision"},
	)

	c.approvalRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_rejections_total",
			Help:      "Approval callbacks rejected before signalling, by internal reason",
		},
		[]string{"reason"},
	)

	c.filteredItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_filtered_items_total",
			Help:      "Index items dropped by list post-filters",
		},
		[]string{"kind", "reason"},
	)

	c.signalFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_failures_total",
			Help:      "Failed calls to the workflow engine",
		},
	)

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.registry.MustRegister(
		c.writeConflicts,
		c.transitionsDenied,
		c.approvalDecisions,
		c.approvalRejections,
		c.filteredItems,
		c.signalFailures,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)

	return c
}

// Registry returns the registry holding the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns the Prometheus metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) WriteConflict(kind string) {
	if c == nil {
		return
	}
	c.writeConflicts.WithLabelValues(kind).Inc()
}

func (c *Collector) TransitionDenied(kind, from, to string) {
	if c == nil {
		return
	}
	c.transitionsDenied.WithLabelValues(kind, from, to).Inc()
}

func (c *Collector) ApprovalDecision(decision string) {
	if c == nil {
		return
	}
	c.approvalDecisions.WithLabelValues(decision).Inc()
}

func (c *Collector) ApprovalRejected(reason string) {
	if c == nil {
		return
	}
	c.approvalRejections.WithLabelValues(reason).Inc()
}

// ItemsFiltered counts n index items a list dropped for reason
func (c *Collector) ItemsFiltered(kind, reason string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.filteredItems.WithLabelValues(kind, reason).Add(float64(n))
}

func (c *Collector) SignalFailed() {
	if c == nil {
		return
	}
	c.signalFailures.Inc()
}

// ObserveRequest records one served HTTP request
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
