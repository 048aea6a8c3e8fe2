// Package metrics collects pipeline measurements of the contourtree command
// in a private Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registry and the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration   *prometheus.HistogramVec // by stage
	TreeNodes       *prometheus.GaugeVec     // by tree kind
	TreeArcs        *prometheus.GaugeVec     // by tree kind
	Branches        prometheus.Gauge
	VirtualVertices prometheus.Counter
	Vertices        prometheus.Gauge
}

// New registers the pipeline collectors in a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contourtree",
		Name:      "stage_duration_seconds",
		Help:      "Wall time of each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"stage"})
	m.TreeNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "contourtree",
		Name:      "tree_nodes",
		Help:      "Critical nodes of the generated tree.",
	}, []string{"kind"})
	m.TreeArcs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "contourtree",
		Name:      "tree_arcs",
		Help:      "Arcs of the generated tree.",
	}, []string{"kind"})
	m.Branches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "contourtree",
		Name:      "branches",
		Help:      "Branches in the simplification order.",
	})
	m.VirtualVertices = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "contourtree",
		Name:      "virtual_vertices_total",
		Help:      "Virtual extrema synthesised for degenerate global extrema.",
	})
	m.Vertices = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "contourtree",
		Name:      "input_vertices",
		Help:      "Vertices of the input scalar field.",
	})

	m.registry.MustRegister(m.StageDuration, m.TreeNodes, m.TreeArcs, m.Branches, m.VirtualVertices, m.Vertices)
	return m
}

// ObserveStage records how long stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordTree records the size of a generated tree of the given kind.
func (m *Metrics) RecordTree(kind string, nodes, arcs int) {
	m.TreeNodes.WithLabelValues(kind).Set(float64(nodes))
	m.TreeArcs.WithLabelValues(kind).Set(float64(arcs))
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the registry in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
