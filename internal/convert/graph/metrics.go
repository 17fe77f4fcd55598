package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	graphVertices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "itemconverter_graph_vertices",
		Help: "Vertices in the most recently built conversion graph",
	})
	graphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "itemconverter_graph_edges",
		Help: "Edges in the most recently built conversion graph",
	})
	graphBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itemconverter_graph_builds_total",
		Help: "Conversion graph builds",
	})
	graphBuildErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itemconverter_graph_rule_errors_total",
		Help: "Rules or edges left out of a graph build",
	})
)

func observeBuild(g *Graph, errs int) {
	graphBuilds.Inc()
	graphVertices.Set(float64(g.VertexCount()))
	graphEdges.Set(float64(g.EdgeCount()))
	graphBuildErrors.Add(float64(errs))
}
