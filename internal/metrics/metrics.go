// Package metrics collects Prometheus metrics for directory operations
// and administrative task executions, exposed on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task outcome labels.
const (
	TaskCompleted = "completed"
	TaskRejected  = "rejected"
	TaskFailed    = "failed"
)

// Collector owns a private registry so multiple collectors can coexist
// in one process (tests construct them freely).
type Collector struct {
	reg     *prometheus.Registry
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
	tasks   *prometheus.CounterVec
}

// NewCollector creates and registers the directory metric set.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shard_directory_ops_total",
			Help: "Total directory mutations by operation",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shard_directory_op_duration_seconds",
			Help:    "Directory mutation latency by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shard_directory_tasks_total",
			Help: "Total administrative task executions by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
	c.reg.MustRegister(c.ops, c.latency, c.tasks)
	return c
}

// RecordOp records one directory mutation.
func (c *Collector) RecordOp(op string) {
	c.ops.WithLabelValues(op).Inc()
}

// ObserveOp records one directory mutation's latency.
func (c *Collector) ObserveOp(op string, d time.Duration) {
	c.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordTask records one task execution outcome.
func (c *Collector) RecordTask(kind, outcome string) {
	c.tasks.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
