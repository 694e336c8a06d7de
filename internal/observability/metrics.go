package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics of the canvas backend. Every method
// is safe to call on a nil *Collector, which records nothing.
type Collector struct {
	registry *prometheus.Registry

	// Gateway metrics
	GatewayOps      *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	GatewayRetries  *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec

	// Session metrics
	NodesCreated        prometheus.Counter
	NodesDeleted        prometheus.Counter
	EdgesCreated        prometheus.Counter
	EdgesDeleted        prometheus.Counter
	CoalescedWrites     prometheus.Counter
	PersistenceFailures *prometheus.CounterVec
	OutboxDepth         prometheus.Gauge
	ActiveSessions      prometheus.Gauge

	// History and template metrics
	SnapshotsCaptured     prometheus.Counter
	TemplatesInstantiated *prometheus.CounterVec
	TemplateWarnings      prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		GatewayOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_operations_total",
			Help:      "Total number of persistence gateway operations",
		}, []string{"operation", "status"}),
		GatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_operation_duration_seconds",
			Help:      "Persistence gateway operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		GatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_retries_total",
			Help:      "Total number of retried gateway operations",
		}, []string{"operation"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		NodesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Total number of nodes created",
		}),
		NodesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_deleted_total",
			Help:      "Total number of nodes deleted",
		}),
		EdgesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Total number of edges created",
		}),
		EdgesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_deleted_total",
			Help:      "Total number of edges deleted",
		}),
		CoalescedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_writes_total",
			Help:      "Total number of local mutations merged into a pending write",
		}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_persistence_failures_total",
			Help:      "Persistence failures surfaced to editing sessions",
		}, []string{"operation"}),
		OutboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_outbox_depth",
			Help:      "Pending coalesced writes across sessions",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Editing sessions currently ready",
		}),
		SnapshotsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_captured_total",
			Help:      "Total number of history snapshots captured",
		}),
		TemplatesInstantiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "templates_instantiated_total",
			Help:      "Total number of template instantiations",
		}, []string{"strategy"}),
		TemplateWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_integrity_warnings_total",
			Help:      "Blueprint connections skipped during instantiation",
		}),
	}

	c.registry.MustRegister(
		c.GatewayOps, c.GatewayDuration, c.GatewayRetries, c.BreakerState,
		c.NodesCreated, c.NodesDeleted, c.EdgesCreated, c.EdgesDeleted,
		c.CoalescedWrites, c.PersistenceFailures, c.OutboxDepth, c.ActiveSessions,
		c.SnapshotsCaptured, c.TemplatesInstantiated, c.TemplateWarnings,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveGatewayCall records one gateway operation.
func (c *Collector) ObserveGatewayCall(operation string, d time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.GatewayOps.WithLabelValues(operation, status).Inc()
	c.GatewayDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveRetry counts one retry attempt.
func (c *Collector) ObserveRetry(operation string) {
	if c == nil {
		return
	}
	c.GatewayRetries.WithLabelValues(operation).Inc()
}

// SetBreakerState publishes the state of the named breaker.
func (c *Collector) SetBreakerState(name string, state float64) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(name).Set(state)
}

// Inc increments a plain counter if the collector is set.
func (c *Collector) Inc(pick func(*Collector) prometheus.Counter) {
	if c == nil {
		return
	}
	pick(c).Inc()
}

// AddOutbox moves the outbox depth gauge by delta.
func (c *Collector) AddOutbox(delta int) {
	if c == nil || delta == 0 {
		return
	}
	c.OutboxDepth.Add(float64(delta))
}

// SessionOpened and SessionClosed track ready sessions.
func (c *Collector) SessionOpened() {
	if c != nil {
		c.ActiveSessions.Inc()
	}
}

func (c *Collector) SessionClosed() {
	if c != nil {
		c.ActiveSessions.Dec()
	}
}

// PersistenceFailed counts a failure surfaced to a session.
func (c *Collector) PersistenceFailed(operation string) {
	if c == nil {
		return
	}
	c.PersistenceFailures.WithLabelValues(operation).Inc()
}

// TemplateInstantiated counts an instantiation and its warnings.
func (c *Collector) TemplateInstantiated(strategy string, warnings int) {
	if c == nil {
		return
	}
	c.TemplatesInstantiated.WithLabelValues(strategy).Inc()
	c.TemplateWarnings.Add(float64(warnings))
}
