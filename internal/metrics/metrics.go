// Package metrics exposes Prometheus collectors for pricing, approvals,
// numbering and the asynchronous sinks. All Recorder methods accept a nil
// receiver.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crm"

// Recalculation paths
const (
	PathPersisted = "persisted"
	PathPreview   = "preview"
)

type Recorder struct {
	registry *prometheus.Registry

	recalculations      *prometheus.CounterVec
	recalcDuration      *prometheus.HistogramVec
	approvalTransitions *prometheus.CounterVec
	numberAllocations   *prometheus.CounterVec
	sinkDropped         *prometheus.CounterVec
}

// New creates a Recorder on its own registry, with Go and process
// collectors attached.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "recalculations_total",
			Help:      "Number of quote total recalculations.",
		}, []string{"path"}),
		recalcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "recalculation_duration_seconds",
			Help:      "Time spent computing quote totals.",
			Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01},
		}, []string{"path"}),
		approvalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "transitions_total",
			Help:      "Approval workflow actions by outcome.",
		}, []string{"action", "outcome"}),
		numberAllocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "numbering",
			Name:      "allocations_total",
			Help:      "Document numbers handed out.",
		}, []string{"doc_type"}),
		sinkDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "dropped_total",
			Help:      "Audit entries and notifications that could not be delivered.",
		}, []string{"sink"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.recalculations,
		r.recalcDuration,
		r.approvalTransitions,
		r.numberAllocations,
		r.sinkDropped,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveRecalculation(path string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.recalculations.WithLabelValues(path).Inc()
	r.recalcDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ApprovalTransition counts an approval action; outcome is "ok" or the
// error code that rejected it.
func (r *Recorder) ApprovalTransition(action, outcome string) {
	if r == nil {
		return
	}
	r.approvalTransitions.WithLabelValues(action, outcome).Inc()
}

func (r *Recorder) NumberAllocated(docType string) {
	if r == nil {
		return
	}
	r.numberAllocations.WithLabelValues(docType).Inc()
}

func (r *Recorder) SinkDropped(sink string) {
	if r == nil {
		return
	}
	r.sinkDropped.WithLabelValues(sink).Inc()
}
